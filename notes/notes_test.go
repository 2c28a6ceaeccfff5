package notes

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"zeth/zeth-prover/prover/commitment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNote(t *testing.T, value uint64) *commitment.Note {
	sk, err := commitment.NewSpendingKey()
	require.NoError(t, err)
	note, err := commitment.NewNote(commitment.DerivePublicKey(sk), value)
	require.NoError(t, err)
	return note
}

func TestSealOpen(t *testing.T) {
	identity, recipient, err := GenerateIdentity()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(recipient, "age1"))

	note := newTestNote(t, 42)
	envelope, err := Seal(note, recipient)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(envelope), "-----BEGIN AGE ENCRYPTED FILE-----"))

	opened, err := Open(envelope, identity)
	require.NoError(t, err)
	assert.Equal(t, note.Value, opened.Value)
	assert.Equal(t, 0, note.Rho.Cmp(&opened.Rho))
	assert.Equal(t, 0, note.Trapdoor.Cmp(&opened.Trapdoor))
	assert.Equal(t, 0, note.Mask.Cmp(&opened.Mask))

	cm := note.Commitment()
	_, err = OpenAndCheck(envelope, identity, &cm)
	require.NoError(t, err)

	other := big.NewInt(7)
	_, err = OpenAndCheck(envelope, identity, other)
	assert.True(t, errors.Is(err, ErrCommitmentCheck))
}

func TestOpenWithWrongIdentity(t *testing.T) {
	_, recipient, err := GenerateIdentity()
	require.NoError(t, err)
	otherIdentity, _, err := GenerateIdentity()
	require.NoError(t, err)

	envelope, err := Seal(newTestNote(t, 1), recipient)
	require.NoError(t, err)

	_, err = Open(envelope, otherIdentity)
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestInvalidKeys(t *testing.T) {
	_, err := Seal(newTestNote(t, 1), "not-a-recipient")
	assert.True(t, errors.Is(err, ErrInvalidKey))

	_, err = Open([]byte("x"), "not-an-identity")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}
