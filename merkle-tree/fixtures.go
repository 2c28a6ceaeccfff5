package merkle_tree

import (
	"fmt"
	"math/big"
	"math/rand"

	"zeth/zeth-prover/prover"
	"zeth/zeth-prover/prover/commitment"
)

// TestWallet owns every note a fixture spends.
type TestWallet struct {
	SpendingKey big.Int
	PublicKey   big.Int
}

func NewTestWallet() (*TestWallet, error) {
	sk, err := commitment.NewSpendingKey()
	if err != nil {
		return nil, err
	}
	return &TestWallet{SpendingKey: sk, PublicKey: commitment.DerivePublicKey(sk)}, nil
}

func newFixtureNote(publicKey big.Int, value uint64) (*commitment.Note, error) {
	if value == 0 {
		return commitment.NewDummyNote(publicKey)
	}
	return commitment.NewNote(publicKey, value)
}

// leafIndices picks n distinct leaves, at random when requested.
func leafIndices(depth int, n int, random bool) []uint32 {
	indices := make([]uint32, 0, n)
	if !random {
		for i := 0; i < n; i++ {
			indices = append(indices, uint32(i))
		}
		return indices
	}
	capacity := int64(1) << depth
	seen := make(map[uint32]bool)
	for len(indices) < n {
		index := uint32(rand.Int63n(capacity))
		if seen[index] {
			continue
		}
		seen[index] = true
		indices = append(indices, index)
	}
	return indices
}

// BuildTestJoinSplit inserts notes of inValues into a fresh tree and spends them into
// notes of outValues. Zero-valued inputs are dummies and never enter the tree.
// Balance is not enforced, so unbalanced fixtures are possible.
func BuildTestJoinSplit(depth int, inValues []uint64, outValues []uint64, publicValueIn uint64, publicValueOut uint64, random bool) (*prover.JoinSplitParameters, *Tree, error) {
	if depth < 32 && len(inValues) > 1<<depth {
		return nil, nil, fmt.Errorf("tree of depth %d cannot hold %d notes", depth, len(inValues))
	}
	tree, err := NewTree(depth)
	if err != nil {
		return nil, nil, err
	}
	wallet, err := NewTestWallet()
	if err != nil {
		return nil, nil, err
	}

	indices := leafIndices(depth, len(inValues), random)
	spends := make([]prover.SpendInput, len(inValues))
	for i, value := range inValues {
		note, err := newFixtureNote(wallet.PublicKey, value)
		if err != nil {
			return nil, nil, err
		}
		if !note.IsZeroValued() {
			if _, err := tree.SetValue(indices[i], note.Commitment()); err != nil {
				return nil, nil, err
			}
		}
		spends[i] = prover.SpendInput{Note: *note, SpendingKey: wallet.SpendingKey, Index: indices[i]}
	}

	recipient, err := NewTestWallet()
	if err != nil {
		return nil, nil, err
	}
	outputs := make([]commitment.Note, len(outValues))
	for i, value := range outValues {
		note, err := newFixtureNote(recipient.PublicKey, value)
		if err != nil {
			return nil, nil, err
		}
		outputs[i] = *note
	}

	params, err := prover.BuildJoinSplitParameters(tree, spends, outputs, publicValueIn, publicValueOut)
	if err != nil {
		return nil, nil, err
	}
	return params, tree, nil
}
