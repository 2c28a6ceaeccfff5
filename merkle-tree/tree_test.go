package merkle_tree

import (
	"math/big"
	"testing"

	"zeth/zeth-prover/prover"
	"zeth/zeth-prover/prover/mimc"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
	"github.com/stretchr/testify/require"
)

type membershipCircuit struct {
	Root  frontend.Variable `gnark:",public"`
	Leaf  frontend.Variable
	Index frontend.Variable
	Path  []frontend.Variable

	Depth int
}

func (circuit *membershipCircuit) Define(api frontend.API) error {
	bits := api.ToBinary(circuit.Index, circuit.Depth)
	root := abstractor.Call(api, prover.MerkleRootGadget{
		Hash:   circuit.Leaf,
		Index:  bits,
		Path:   circuit.Path,
		Height: circuit.Depth,
	})
	api.AssertIsEqual(root, circuit.Root)
	return nil
}

func membershipAssignment(root big.Int, leaf big.Int, index uint32, path []big.Int) *membershipCircuit {
	assigned := make([]frontend.Variable, len(path))
	for i := range path {
		assigned[i] = path[i]
	}
	return &membershipCircuit{Root: root, Leaf: leaf, Index: index, Path: assigned, Depth: len(path)}
}

func TestEmptyTree(t *testing.T) {
	tree, err := NewTree(3)
	require.NoError(t, err)

	var zero big.Int
	e1 := mimc.HashValues(zero, zero)
	e2 := mimc.HashValues(e1, e1)
	e3 := mimc.HashValues(e2, e2)
	root := tree.Root()
	require.Equal(t, 0, root.Cmp(&e3))

	path, err := tree.Path(5)
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, 0, path[0].Sign())
	require.Equal(t, 0, path[1].Cmp(&e1))
	require.Equal(t, 0, path[2].Cmp(&e2))
}

func TestNewTreeRejectsDepth(t *testing.T) {
	_, err := NewTree(0)
	require.Error(t, err)
	_, err = NewTree(33)
	require.Error(t, err)
}

func TestSetValueRecomputesRoot(t *testing.T) {
	tree, err := NewTree(4)
	require.NoError(t, err)

	leaves := map[uint32]big.Int{}
	for _, index := range []uint32{0, 3, 7, 8, 15} {
		leaf := mimc.HashValues(*big.NewInt(int64(index) + 1))
		path, err := tree.SetValue(index, leaf)
		require.NoError(t, err)
		root := tree.Root()
		computed := ComputeRoot(leaf, index, path)
		require.Equal(t, 0, computed.Cmp(&root), "leaf %d", index)
		leaves[index] = leaf
	}

	// older leaves stay provable against the latest root
	root := tree.Root()
	for index, leaf := range leaves {
		path, err := tree.Path(index)
		require.NoError(t, err)
		computed := ComputeRoot(leaf, index, path)
		require.Equal(t, 0, computed.Cmp(&root), "leaf %d", index)
	}
}

func TestIndexOutOfRange(t *testing.T) {
	tree, err := NewTree(2)
	require.NoError(t, err)
	_, err = tree.Path(4)
	require.Error(t, err)
	_, err = tree.SetValue(4, *big.NewInt(1))
	require.Error(t, err)
}

func TestSiblingMutationChangesRoot(t *testing.T) {
	tree, err := NewTree(4)
	require.NoError(t, err)
	leaf := *big.NewInt(12345)
	path, err := tree.SetValue(6, leaf)
	require.NoError(t, err)
	root := tree.Root()

	for i := range path {
		mutated := make([]big.Int, len(path))
		for j := range path {
			mutated[j].Set(&path[j])
		}
		mutated[i].Add(&mutated[i], big.NewInt(1))
		computed := ComputeRoot(leaf, 6, mutated)
		require.NotEqual(t, 0, computed.Cmp(&root), "sibling %d", i)
	}
}

func TestMembershipGadget(t *testing.T) {
	assert := test.NewAssert(t)
	const depth = 4

	tree, err := NewTree(depth)
	require.NoError(t, err)
	_, err = tree.SetValue(2, *big.NewInt(99))
	require.NoError(t, err)
	leaf := *big.NewInt(4242)
	path, err := tree.SetValue(11, leaf)
	require.NoError(t, err)
	root := tree.Root()

	circuit := &membershipCircuit{Path: make([]frontend.Variable, depth), Depth: depth}
	assert.ProverSucceeded(circuit, membershipAssignment(root, leaf, 11, path),
		test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks())

	for i := 0; i < depth; i++ {
		mutated := make([]big.Int, depth)
		for j := range path {
			mutated[j].Set(&path[j])
		}
		mutated[i].Add(&mutated[i], big.NewInt(1))
		err := test.IsSolved(circuit, membershipAssignment(root, leaf, 11, mutated), ecc.BN254.ScalarField())
		require.Error(t, err, "mutated sibling %d accepted", i)
	}

	err = test.IsSolved(circuit, membershipAssignment(root, leaf, 10, path), ecc.BN254.ScalarField())
	require.Error(t, err)
}

func TestBuildTestJoinSplit(t *testing.T) {
	params, tree, err := BuildTestJoinSplit(4, []uint64{100, 0}, []uint64{75, 0}, 0, 25, true)
	require.NoError(t, err)
	require.Len(t, params.Inputs, 2)
	require.Len(t, params.Outputs, 2)

	root := tree.Root()
	require.Equal(t, 0, params.Root.Cmp(&root))

	spent := params.Inputs[0]
	cm := spent.Note.Commitment()
	computed := ComputeRoot(cm, spent.PathIndex, spent.PathElements)
	require.Equal(t, 0, computed.Cmp(&root))
	require.NoError(t, params.ValidateShape(prover.CircuitShape{NumberOfInputs: 2, NumberOfOutputs: 2, TreeDepth: 4}))

	_, _, err = BuildTestJoinSplit(1, []uint64{1, 2, 3}, []uint64{6}, 0, 0, false)
	require.Error(t, err)
}
