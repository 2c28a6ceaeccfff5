// Package notes delivers note openings to recipients out of band.
//
// A sender seals the plaintext note to the recipient's age X25519 key and
// publishes only the commitment. The recipient opens the envelope, recomputes
// the commitment and can later spend the note.
package notes

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"zeth/zeth-prover/prover/commitment"

	"filippo.io/age"
	"filippo.io/age/armor"
)

var (
	ErrInvalidKey      = errors.New("invalid key")
	ErrDecrypt         = errors.New("cannot decrypt note")
	ErrCommitmentCheck = errors.New("note does not open the expected commitment")
)

// GenerateIdentity returns a fresh age identity ("AGE-SECRET-KEY-1...") and its recipient ("age1...").
func GenerateIdentity() (identity string, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", err
	}
	return id.String(), id.Recipient().String(), nil
}

// Seal encrypts note to recipient and returns an armored envelope.
func Seal(note *commitment.Note, recipient string) ([]byte, error) {
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	plaintext, err := json.Marshal(note)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	armorWriter := armor.NewWriter(&out)
	w, err := age.Encrypt(armorWriter, r)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := armorWriter.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Open decrypts an envelope produced by Seal. Both armored and binary envelopes are accepted.
func Open(envelope []byte, identity string) (*commitment.Note, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	bufReader := bufio.NewReader(bytes.NewReader(envelope))
	var reader io.Reader = bufReader
	if peek, _ := bufReader.Peek(len(armor.Header)); string(peek) == armor.Header {
		reader = armor.NewReader(bufReader)
	}

	plaintext, err := age.Decrypt(reader, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	data, err := io.ReadAll(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	var note commitment.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return &note, nil
}

// OpenAndCheck is Open followed by a check that the note hashes to cm.
func OpenAndCheck(envelope []byte, identity string, cm *big.Int) (*commitment.Note, error) {
	note, err := Open(envelope, identity)
	if err != nil {
		return nil, err
	}
	got := note.Commitment()
	if got.Cmp(cm) != 0 {
		return nil, ErrCommitmentCheck
	}
	return note, nil
}
