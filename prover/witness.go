package prover

import (
	"fmt"
	"math/big"

	"zeth/zeth-prover/prover/commitment"
)

// MerkleTree is the read side of the note commitment tree.
type MerkleTree interface {
	Root() big.Int
	Path(index uint32) ([]big.Int, error)
}

// SpendInput names a note to spend, the key that owns it and its leaf index.
type SpendInput struct {
	Note        commitment.Note
	SpendingKey big.Int
	Index       uint32
}

// BuildJoinSplitParameters computes every commitment, nullifier and authentication
// path natively. Balance is not checked here: an unbalanced transaction yields
// parameters that the prover rejects.
func BuildJoinSplitParameters(
	tree MerkleTree,
	inputs []SpendInput,
	outputs []commitment.Note,
	publicValueIn uint64,
	publicValueOut uint64,
) (*JoinSplitParameters, error) {
	params := &JoinSplitParameters{
		Root:           tree.Root(),
		Inputs:         make([]JoinSplitInput, len(inputs)),
		Outputs:        make([]JoinSplitOutput, len(outputs)),
		PublicValueIn:  publicValueIn,
		PublicValueOut: publicValueOut,
	}

	for i, in := range inputs {
		path, err := tree.Path(in.Index)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		params.Inputs[i] = JoinSplitInput{
			Note:         in.Note,
			SpendingKey:  in.SpendingKey,
			Nullifier:    commitment.DeriveNullifier(in.SpendingKey, in.Note.Rho),
			PathIndex:    in.Index,
			PathElements: path,
		}
	}

	for i, out := range outputs {
		params.Outputs[i] = JoinSplitOutput{
			Note:       out,
			Commitment: out.Commitment(),
		}
	}
	return params, nil
}
