package prover_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	merkletree "zeth/zeth-prover/merkle-tree"
	"zeth/zeth-prover/prover"
	"zeth/zeth-prover/prover/commitment"
	"zeth/zeth-prover/prover/mimc"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"
)

const testDepth = 4

var shape = prover.CircuitShape{NumberOfInputs: 2, NumberOfOutputs: 2, TreeDepth: testDepth}

type scenario struct {
	name           string
	inValues       []uint64
	outValues      []uint64
	publicValueIn  uint64
	publicValueOut uint64
	valid          bool
}

var scenarios = []scenario{
	{"withdraw with dummies", []uint64{100, 0}, []uint64{75, 0}, 0, 25, true},
	{"split", []uint64{100, 0}, []uint64{70, 20}, 0, 10, true},
	{"deposit", []uint64{0, 0}, []uint64{80, 20}, 100, 0, true},
	{"imbalance", []uint64{0, 0}, []uint64{80, 70}, 100, 0, false},
	{"two real inputs", []uint64{60, 40}, []uint64{100, 0}, 0, 0, true},
}

func buildScenario(t *testing.T, s scenario) *prover.JoinSplitParameters {
	params, _, err := merkletree.BuildTestJoinSplit(testDepth, s.inValues, s.outValues, s.publicValueIn, s.publicValueOut, true)
	require.NoError(t, err)
	return params
}

func TestJoinSplitScenarios(t *testing.T) {
	assert := test.NewAssert(t)

	for _, s := range scenarios {
		params := buildScenario(t, s)
		circuit := prover.NewJoinSplitCircuit(shape)
		assignment := params.Assignment()

		assert.Run(func(assert *test.Assert) {
			if s.valid {
				assert.ProverSucceeded(&circuit, &assignment,
					test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks())
			} else {
				assert.ProverFailed(&circuit, &assignment,
					test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks())
			}
		}, s.name)
	}
}

func TestJoinSplitProveVerify(t *testing.T) {
	ps, err := prover.SetupJoinSplit(shape)
	require.NoError(t, err)

	for _, s := range scenarios {
		if !s.valid {
			continue
		}
		t.Run(s.name, func(t *testing.T) {
			params := buildScenario(t, s)
			proof, err := ps.ProveJoinSplit(params)
			require.NoError(t, err)
			public := params.PublicInputs()
			require.NoError(t, ps.VerifyJoinSplit(&public, proof))
		})
	}

	params := buildScenario(t, scenarios[0])
	proof, err := ps.ProveJoinSplit(params)
	require.NoError(t, err)

	public := params.PublicInputs()
	require.NoError(t, ps.VerifyJoinSplit(&public, proof))

	tampered := params.PublicInputs()
	tampered.PublicValueOut++
	err = ps.VerifyJoinSplit(&tampered, proof)
	require.ErrorIs(t, err, prover.ErrVerification)

	swapped := params.PublicInputs()
	swapped.Nullifiers[0], swapped.Nullifiers[1] = swapped.Nullifiers[1], swapped.Nullifiers[0]
	require.ErrorIs(t, ps.VerifyJoinSplit(&swapped, proof), prover.ErrVerification)

	t.Run("imbalance is rejected by the backend", func(t *testing.T) {
		invalid := buildScenario(t, scenarios[3])
		_, err := ps.ProveJoinSplit(invalid)
		require.Error(t, err)
		require.ErrorIs(t, err, prover.ErrProofGeneration)
		require.False(t, errors.Is(err, prover.ErrInvalidShape))
	})

	t.Run("proof json round trip", func(t *testing.T) {
		data, err := json.Marshal(proof)
		require.NoError(t, err)
		var decoded prover.Proof
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.NoError(t, ps.VerifyJoinSplit(&public, &decoded))
	})

	t.Run("proving system round trip", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := ps.WriteTo(&buf)
		require.NoError(t, err)

		var loaded prover.ProvingSystem
		_, err = loaded.UnsafeReadFrom(&buf)
		require.NoError(t, err)
		require.Equal(t, shape, loaded.CircuitShape)

		another := buildScenario(t, scenarios[1])
		proof, err := loaded.ProveJoinSplit(another)
		require.NoError(t, err)
		anotherPublic := another.PublicInputs()
		require.NoError(t, ps.VerifyJoinSplit(&anotherPublic, proof))
	})

	t.Run("public inputs outside the field", func(t *testing.T) {
		shifted := params.PublicInputs()
		shifted.Nullifiers[0].Add(&shifted.Nullifiers[0], fr.Modulus())
		require.ErrorIs(t, ps.VerifyJoinSplit(&shifted, proof), prover.ErrNotInField)

		data, err := json.Marshal(&shifted)
		require.NoError(t, err)
		var decoded prover.JoinSplitPublicInputs
		require.ErrorIs(t, json.Unmarshal(data, &decoded), prover.ErrNotInField)

		negative := params.PublicInputs()
		negative.Root.Neg(&negative.Root)
		require.ErrorIs(t, ps.VerifyJoinSplit(&negative, proof), prover.ErrNotInField)
	})

	t.Run("witness outside the field", func(t *testing.T) {
		shiftedParams := buildScenario(t, scenarios[0])
		shiftedParams.Inputs[0].Nullifier.Add(&shiftedParams.Inputs[0].Nullifier, fr.Modulus())
		shiftedParams.Inputs[0].Note.Rho.Add(&shiftedParams.Inputs[0].Note.Rho, fr.Modulus())
		_, err := ps.ProveJoinSplit(shiftedParams)
		require.ErrorIs(t, err, prover.ErrNotInField)

		data, err := json.Marshal(shiftedParams)
		require.NoError(t, err)
		_, err = prover.ParseInput(string(data))
		require.ErrorIs(t, err, prover.ErrNotInField)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		params, _, err := merkletree.BuildTestJoinSplit(testDepth, []uint64{5}, []uint64{5, 0}, 0, 0, false)
		require.NoError(t, err)
		_, err = ps.ProveJoinSplit(params)
		require.ErrorIs(t, err, prover.ErrInvalidShape)

		short := params.PublicInputs()
		require.ErrorIs(t, ps.VerifyJoinSplit(&short, proof), prover.ErrInvalidShape)
	})
}

func TestJoinSplitMerkleMutation(t *testing.T) {
	params := buildScenario(t, scenarios[0])
	circuit := prover.NewJoinSplitCircuit(shape)

	assignment := params.Assignment()
	require.NoError(t, test.IsSolved(&circuit, &assignment, ecc.BN254.ScalarField()))

	for level := 0; level < testDepth; level++ {
		mutated := params.Assignment()
		var sibling big.Int
		sibling.Add(&params.Inputs[0].PathElements[level], big.NewInt(1))
		path := make([]frontend.Variable, testDepth)
		copy(path, mutated.InPathElements[0])
		path[level] = sibling
		mutated.InPathElements[0] = path

		err := test.IsSolved(&circuit, &mutated, ecc.BN254.ScalarField())
		require.Error(t, err, "mutated sibling at level %d accepted", level)
	}

	// the dummy input carries no membership obligation
	dummy := params.Assignment()
	path := make([]frontend.Variable, testDepth)
	for i := range path {
		path[i] = 7
	}
	dummy.InPathElements[1] = path
	require.NoError(t, test.IsSolved(&circuit, &dummy, ecc.BN254.ScalarField()))

	wrongRoot := params.Assignment()
	wrongRoot.Root = 12345
	require.Error(t, test.IsSolved(&circuit, &wrongRoot, ecc.BN254.ScalarField()))
}

func TestJoinSplitRejectsForeignSpendingKey(t *testing.T) {
	params := buildScenario(t, scenarios[1])
	circuit := prover.NewJoinSplitCircuit(shape)

	other, err := commitment.NewSpendingKey()
	require.NoError(t, err)
	assignment := params.Assignment()
	assignment.InSpendingKeys[0] = other
	assignment.Nullifiers[0] = commitment.DeriveNullifier(other, params.Inputs[0].Note.Rho)

	require.Error(t, test.IsSolved(&circuit, &assignment, ecc.BN254.ScalarField()))
}

func TestJoinSplitRejectsWrappedValues(t *testing.T) {
	params := buildScenario(t, scenario{"", []uint64{0, 0}, []uint64{0, 0}, 0, 0, true})
	circuit := prover.NewJoinSplitCircuit(shape)
	balanced := params.Assignment()
	require.NoError(t, test.IsSolved(&circuit, &balanced, ecc.BN254.ScalarField()))

	// -1 + 1 balances in the field but -1 is not a 64-bit value
	minusOne := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
	assignment := params.Assignment()
	assignment.OutValues[0] = minusOne
	assignment.OutValues[1] = 1
	assignment.Commitments[0] = mimc.HashValues(params.Outputs[0].Note.OuterCommitment(), *minusOne)
	assignment.Commitments[1] = mimc.HashValues(params.Outputs[1].Note.OuterCommitment(), *big.NewInt(1))

	require.Error(t, test.IsSolved(&circuit, &assignment, ecc.BN254.ScalarField()))
}

func TestPublicInputOrder(t *testing.T) {
	params := buildScenario(t, scenarios[1])
	assignment := params.Assignment()

	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	require.NoError(t, err)
	vector, ok := witness.Vector().(fr.Vector)
	require.True(t, ok)

	public := params.PublicInputs()
	expected := public.Vector()
	require.Len(t, vector, 3+int(shape.NumberOfInputs)+int(shape.NumberOfOutputs))
	require.Len(t, expected, len(vector))

	for i := range vector {
		var got big.Int
		vector[i].BigInt(&got)
		require.Equal(t, 0, got.Cmp(&expected[i]), "public input %d", i)
	}

	require.Equal(t, 0, expected[0].Cmp(&params.Root))
	require.Equal(t, 0, expected[1].Cmp(&params.Inputs[0].Nullifier))
	require.Equal(t, 0, expected[3].Cmp(&params.Outputs[0].Commitment))
	require.Equal(t, int64(0), expected[5].Int64())
	require.Equal(t, int64(10), expected[6].Int64())
}

func TestCircuitShape(t *testing.T) {
	require.NoError(t, shape.Validate())
	require.Equal(t, "joinsplit_2_2_4", shape.String())

	for _, bad := range []prover.CircuitShape{
		{NumberOfInputs: 0, NumberOfOutputs: 2, TreeDepth: 4},
		{NumberOfInputs: 2, NumberOfOutputs: 0, TreeDepth: 4},
		{NumberOfInputs: 2, NumberOfOutputs: 2, TreeDepth: 0},
		{NumberOfInputs: 2, NumberOfOutputs: 2, TreeDepth: 33},
	} {
		require.ErrorIs(t, bad.Validate(), prover.ErrInvalidShape, "%v", bad)
		_, err := prover.R1CSJoinSplit(bad)
		require.ErrorIs(t, err, prover.ErrInvalidShape)
	}

	_, err := prover.SetupCircuit("inclusion", shape)
	require.Error(t, err)

	parsed, err := prover.NewCircuitShape(2, 2, testDepth)
	require.NoError(t, err)
	require.Equal(t, shape, parsed)
	_, err = prover.NewCircuitShape(1<<32+2, 2, testDepth)
	require.ErrorIs(t, err, prover.ErrInvalidShape)
	_, err = prover.NewCircuitShape(2, 1<<32, testDepth)
	require.ErrorIs(t, err, prover.ErrInvalidShape)
	_, err = prover.NewCircuitShape(2, 2, 1<<32+4)
	require.ErrorIs(t, err, prover.ErrInvalidShape)

	keys := prover.GetKeys("circuits", []prover.CircuitShape{shape})
	require.Equal(t, []string{"circuits/joinsplit_2_2_4.key"}, keys)
}

func TestJoinSplitParametersJSON(t *testing.T) {
	params := buildScenario(t, scenarios[1])
	data, err := json.Marshal(params)
	require.NoError(t, err)

	parsed, err := prover.ParseInput(string(data))
	require.NoError(t, err)
	require.Equal(t, 0, parsed.Root.Cmp(&params.Root))
	require.Equal(t, params.PublicValueOut, parsed.PublicValueOut)
	require.Len(t, parsed.Inputs, 2)
	require.Equal(t, params.Inputs[1].PathIndex, parsed.Inputs[1].PathIndex)
	require.Equal(t, 0, parsed.Inputs[0].Nullifier.Cmp(&params.Inputs[0].Nullifier))

	circuit := prover.NewJoinSplitCircuit(shape)
	assignment := parsed.Assignment()
	require.NoError(t, test.IsSolved(&circuit, &assignment, ecc.BN254.ScalarField()))

	public := params.PublicInputs()
	data, err = json.Marshal(&public)
	require.NoError(t, err)
	var decoded prover.JoinSplitPublicInputs
	require.NoError(t, json.Unmarshal(data, &decoded))
	expected := public.Vector()
	got := decoded.Vector()
	require.Len(t, got, len(expected))
	for i := range expected {
		require.Equal(t, 0, got[i].Cmp(&expected[i]), "public input %d", i)
	}

	_, err = prover.ParseInput(`{"root": "0xnothex"}`)
	require.Error(t, err)
}
