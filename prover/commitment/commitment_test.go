package commitment

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
	"github.com/stretchr/testify/require"
)

type noteCircuit struct {
	SpendingKey frontend.Variable
	Value       frontend.Variable
	Rho         frontend.Variable
	Trapdoor    frontend.Variable
	Mask        frontend.Variable

	Commitment frontend.Variable `gnark:",public"`
	Nullifier  frontend.Variable `gnark:",public"`
}

func (circuit *noteCircuit) Define(api frontend.API) error {
	publicKey := abstractor.Call(api, PublicKey{SpendingKey: circuit.SpendingKey})
	cm := abstractor.Call(api, Commitment{
		PublicKey: publicKey,
		Value:     circuit.Value,
		Rho:       circuit.Rho,
		Trapdoor:  circuit.Trapdoor,
		Mask:      circuit.Mask,
	})
	api.AssertIsEqual(cm, circuit.Commitment)
	nf := abstractor.Call(api, Nullifier{SpendingKey: circuit.SpendingKey, Rho: circuit.Rho})
	api.AssertIsEqual(nf, circuit.Nullifier)
	return nil
}

func newOwnedNote(t *testing.T, value uint64) (big.Int, *Note) {
	sk, err := NewSpendingKey()
	require.NoError(t, err)
	note, err := NewNote(DerivePublicKey(sk), value)
	require.NoError(t, err)
	return sk, note
}

func assignment(sk big.Int, note *Note) *noteCircuit {
	cm := note.Commitment()
	nf := DeriveNullifier(sk, note.Rho)
	return &noteCircuit{
		SpendingKey: sk,
		Value:       note.Value,
		Rho:         note.Rho,
		Trapdoor:    note.Trapdoor,
		Mask:        note.Mask,
		Commitment:  cm,
		Nullifier:   nf,
	}
}

func TestCommitmentGadgetMatchesNative(t *testing.T) {
	assert := test.NewAssert(t)
	sk, note := newOwnedNote(t, 100)

	assert.ProverSucceeded(&noteCircuit{}, assignment(sk, note),
		test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks())
}

func TestCommitmentGadgetRejectsForeignKey(t *testing.T) {
	assert := test.NewAssert(t)
	_, note := newOwnedNote(t, 100)
	other, err := NewSpendingKey()
	require.NoError(t, err)

	witness := assignment(other, note)
	witness.Nullifier = DeriveNullifier(other, note.Rho)
	assert.ProverFailed(&noteCircuit{}, witness,
		test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks())
}

func TestCommitmentBindsValue(t *testing.T) {
	_, note := newOwnedNote(t, 100)
	other := *note
	other.Value = 101

	a := note.Commitment()
	b := other.Commitment()
	require.NotEqual(t, 0, a.Cmp(&b))
}

func TestCommitmentBindsEveryAttribute(t *testing.T) {
	_, note := newOwnedNote(t, 42)
	base := note.Commitment()
	one := big.NewInt(1)

	mutations := []func(n *Note){
		func(n *Note) { n.PublicKey.Add(&n.PublicKey, one) },
		func(n *Note) { n.Rho.Add(&n.Rho, one) },
		func(n *Note) { n.Trapdoor.Add(&n.Trapdoor, one) },
		func(n *Note) { n.Mask.Add(&n.Mask, one) },
		func(n *Note) { n.Value++ },
	}
	for i, mutate := range mutations {
		mutated := Note{Value: note.Value}
		mutated.PublicKey.Set(&note.PublicKey)
		mutated.Rho.Set(&note.Rho)
		mutated.Trapdoor.Set(&note.Trapdoor)
		mutated.Mask.Set(&note.Mask)
		mutate(&mutated)

		cm := mutated.Commitment()
		require.NotEqual(t, 0, base.Cmp(&cm), "mutation %d kept the commitment", i)
	}
}

func TestCommitmentIsDeterministic(t *testing.T) {
	_, note := newOwnedNote(t, 5)
	a := note.Commitment()
	b := note.Commitment()
	require.Equal(t, 0, a.Cmp(&b))

	outer := note.OuterCommitment()
	require.NotEqual(t, 0, outer.Cmp(&a))
}

func TestNullifierAndAddressDiffer(t *testing.T) {
	sk, err := NewSpendingKey()
	require.NoError(t, err)
	var zero big.Int

	address := DerivePublicKey(sk)
	nullifier := DeriveNullifier(sk, zero)
	require.NotEqual(t, 0, address.Cmp(&nullifier))

	rho1 := big.NewInt(1)
	rho2 := big.NewInt(2)
	nf1 := DeriveNullifier(sk, *rho1)
	nf2 := DeriveNullifier(sk, *rho2)
	require.NotEqual(t, 0, nf1.Cmp(&nf2))
}

func TestDummyNote(t *testing.T) {
	sk, err := NewSpendingKey()
	require.NoError(t, err)
	a, err := NewDummyNote(DerivePublicKey(sk))
	require.NoError(t, err)
	b, err := NewDummyNote(DerivePublicKey(sk))
	require.NoError(t, err)

	require.True(t, a.IsZeroValued())
	require.NotEqual(t, 0, a.Rho.Cmp(&b.Rho))
}

func TestNoteJSON(t *testing.T) {
	_, note := newOwnedNote(t, 75)
	data, err := json.Marshal(note)
	require.NoError(t, err)
	require.Contains(t, string(data), `"value":75`)

	var decoded Note
	require.NoError(t, json.Unmarshal(data, &decoded))
	cm := decoded.Commitment()
	expected := note.Commitment()
	require.Equal(t, 0, cm.Cmp(&expected))

	require.Error(t, json.Unmarshal([]byte(`{"a_pk":"0xzz","value":1,"rho":"0x1","r_trap":"0x1","r_mask":"0x1"}`), &decoded))
}
