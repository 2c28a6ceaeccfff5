package prover

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

type JoinSplitCircuit struct {
	// public inputs, declared in protocol order
	Root           frontend.Variable   `gnark:",public"`
	Nullifiers     []frontend.Variable `gnark:",public"`
	Commitments    []frontend.Variable `gnark:",public"`
	PublicValueIn  frontend.Variable   `gnark:",public"`
	PublicValueOut frontend.Variable   `gnark:",public"`

	// spent notes
	InSpendingKeys []frontend.Variable   `gnark:"input"`
	InValues       []frontend.Variable   `gnark:"input"`
	InRhos         []frontend.Variable   `gnark:"input"`
	InTrapdoors    []frontend.Variable   `gnark:"input"`
	InMasks        []frontend.Variable   `gnark:"input"`
	InPathIndices  []frontend.Variable   `gnark:"input"`
	InPathElements [][]frontend.Variable `gnark:"input"`

	// created notes
	OutPublicKeys []frontend.Variable `gnark:"input"`
	OutValues     []frontend.Variable `gnark:"input"`
	OutRhos       []frontend.Variable `gnark:"input"`
	OutTrapdoors  []frontend.Variable `gnark:"input"`
	OutMasks      []frontend.Variable `gnark:"input"`

	NumberOfInputs  int
	NumberOfOutputs int
	Depth           int
}

// newJoinSplitCircuit allocates an empty circuit of the given shape.
func newJoinSplitCircuit(shape CircuitShape) JoinSplitCircuit {
	nIn := int(shape.NumberOfInputs)
	nOut := int(shape.NumberOfOutputs)

	inPathElements := make([][]frontend.Variable, nIn)
	for i := 0; i < nIn; i++ {
		inPathElements[i] = make([]frontend.Variable, shape.TreeDepth)
	}

	return JoinSplitCircuit{
		Nullifiers:  make([]frontend.Variable, nIn),
		Commitments: make([]frontend.Variable, nOut),

		InSpendingKeys: make([]frontend.Variable, nIn),
		InValues:       make([]frontend.Variable, nIn),
		InRhos:         make([]frontend.Variable, nIn),
		InTrapdoors:    make([]frontend.Variable, nIn),
		InMasks:        make([]frontend.Variable, nIn),
		InPathIndices:  make([]frontend.Variable, nIn),
		InPathElements: inPathElements,

		OutPublicKeys: make([]frontend.Variable, nOut),
		OutValues:     make([]frontend.Variable, nOut),
		OutRhos:       make([]frontend.Variable, nOut),
		OutTrapdoors:  make([]frontend.Variable, nOut),
		OutMasks:      make([]frontend.Variable, nOut),

		NumberOfInputs:  nIn,
		NumberOfOutputs: nOut,
		Depth:           int(shape.TreeDepth),
	}
}

func (circuit *JoinSplitCircuit) checkShape() error {
	nIn, nOut := circuit.NumberOfInputs, circuit.NumberOfOutputs
	inputs := [][]frontend.Variable{
		circuit.Nullifiers, circuit.InSpendingKeys, circuit.InValues, circuit.InRhos,
		circuit.InTrapdoors, circuit.InMasks, circuit.InPathIndices,
	}
	for _, column := range inputs {
		if len(column) != nIn {
			return fmt.Errorf("%w: expected %d input notes, got %d", ErrInvalidShape, nIn, len(column))
		}
	}
	if len(circuit.InPathElements) != nIn {
		return fmt.Errorf("%w: expected %d merkle paths, got %d", ErrInvalidShape, nIn, len(circuit.InPathElements))
	}
	for i, path := range circuit.InPathElements {
		if len(path) != circuit.Depth {
			return fmt.Errorf("%w: merkle path %d has length %d, want %d", ErrInvalidShape, i, len(path), circuit.Depth)
		}
	}
	outputs := [][]frontend.Variable{
		circuit.Commitments, circuit.OutPublicKeys, circuit.OutValues, circuit.OutRhos,
		circuit.OutTrapdoors, circuit.OutMasks,
	}
	for _, column := range outputs {
		if len(column) != nOut {
			return fmt.Errorf("%w: expected %d output notes, got %d", ErrInvalidShape, nOut, len(column))
		}
	}
	return nil
}

func (circuit *JoinSplitCircuit) Define(api frontend.API) error {
	if err := circuit.checkShape(); err != nil {
		return err
	}

	abstractor.CallVoid(api, AssertValueRange{Value: circuit.PublicValueIn, N: ValueBits})
	abstractor.CallVoid(api, AssertValueRange{Value: circuit.PublicValueOut, N: ValueBits})

	totalIn := circuit.PublicValueIn
	for i := 0; i < circuit.NumberOfInputs; i++ {
		nullifier := abstractor.Call(api, InputNoteGadget{
			Root:        circuit.Root,
			SpendingKey: circuit.InSpendingKeys[i],
			Value:       circuit.InValues[i],
			Rho:         circuit.InRhos[i],
			Trapdoor:    circuit.InTrapdoors[i],
			Mask:        circuit.InMasks[i],
			PathIndex:   circuit.InPathIndices[i],
			Path:        circuit.InPathElements[i],
			Depth:       circuit.Depth,
		})
		api.AssertIsEqual(nullifier, circuit.Nullifiers[i])
		totalIn = api.Add(totalIn, circuit.InValues[i])
	}

	totalOut := circuit.PublicValueOut
	for i := 0; i < circuit.NumberOfOutputs; i++ {
		cm := abstractor.Call(api, OutputNoteGadget{
			PublicKey: circuit.OutPublicKeys[i],
			Value:     circuit.OutValues[i],
			Rho:       circuit.OutRhos[i],
			Trapdoor:  circuit.OutTrapdoors[i],
			Mask:      circuit.OutMasks[i],
		})
		api.AssertIsEqual(cm, circuit.Commitments[i])
		totalOut = api.Add(totalOut, circuit.OutValues[i])
	}

	api.AssertIsEqual(totalIn, totalOut)
	return nil
}
