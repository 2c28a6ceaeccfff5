package commitment

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"zeth/zeth-prover/prover/mimc"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Note is a shielded coin. Only its commitment is ever published.
type Note struct {
	PublicKey big.Int
	Value     uint64
	Rho       big.Int
	Trapdoor  big.Int
	Mask      big.Int
}

// OuterCommitment mirrors the OuterCommitment gadget.
func (n *Note) OuterCommitment() big.Int {
	inner := mimc.HashValues(n.PublicKey, n.Rho)
	var masked big.Int
	masked.Add(&inner, &n.Mask)
	masked.Mod(&masked, fr.Modulus())
	return mimc.HashValues(n.Trapdoor, masked)
}

// Commitment mirrors the Commitment gadget.
func (n *Note) Commitment() big.Int {
	outer := n.OuterCommitment()
	return mimc.HashValues(outer, *new(big.Int).SetUint64(n.Value))
}

func (n *Note) IsZeroValued() bool {
	return n.Value == 0
}

// DeriveNullifier mirrors the Nullifier gadget.
func DeriveNullifier(spendingKey, rho big.Int) big.Int {
	return mimc.HashValues(spendingKey, rho)
}

// DerivePublicKey mirrors the PublicKey gadget.
func DerivePublicKey(spendingKey big.Int) big.Int {
	return mimc.HashValues(spendingKey)
}

func randomFieldElement() (big.Int, error) {
	var e fr.Element
	var out big.Int
	if _, err := e.SetRandom(); err != nil {
		return out, err
	}
	e.BigInt(&out)
	return out, nil
}

func NewSpendingKey() (big.Int, error) {
	return randomFieldElement()
}

// NewNote creates a note paying value to publicKey with fresh rho, trapdoor and mask.
func NewNote(publicKey big.Int, value uint64) (*Note, error) {
	note := &Note{PublicKey: publicKey, Value: value}
	var err error
	if note.Rho, err = randomFieldElement(); err != nil {
		return nil, err
	}
	if note.Trapdoor, err = randomFieldElement(); err != nil {
		return nil, err
	}
	if note.Mask, err = randomFieldElement(); err != nil {
		return nil, err
	}
	return note, nil
}

// NewDummyNote is a zero-valued note used to fill unused JoinSplit slots.
func NewDummyNote(publicKey big.Int) (*Note, error) {
	return NewNote(publicKey, 0)
}

type NoteJSON struct {
	PublicKey string `json:"a_pk"`
	Value     uint64 `json:"value"`
	Rho       string `json:"rho"`
	Trapdoor  string `json:"r_trap"`
	Mask      string `json:"r_mask"`
}

func toHex(i *big.Int) string {
	return fmt.Sprintf("0x%064x", i)
}

func fromHex(i *big.Int, s string) error {
	s = strings.TrimPrefix(s, "0x")
	_, ok := i.SetString(s, 16)
	if !ok {
		return fmt.Errorf("invalid number: %s", s)
	}
	return nil
}

func (n *Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(NoteJSON{
		PublicKey: toHex(&n.PublicKey),
		Value:     n.Value,
		Rho:       toHex(&n.Rho),
		Trapdoor:  toHex(&n.Trapdoor),
		Mask:      toHex(&n.Mask),
	})
}

func (n *Note) UnmarshalJSON(data []byte) error {
	var noteJson NoteJSON
	if err := json.Unmarshal(data, &noteJson); err != nil {
		return err
	}
	if err := fromHex(&n.PublicKey, noteJson.PublicKey); err != nil {
		return err
	}
	if err := fromHex(&n.Rho, noteJson.Rho); err != nil {
		return err
	}
	if err := fromHex(&n.Trapdoor, noteJson.Trapdoor); err != nil {
		return err
	}
	if err := fromHex(&n.Mask, noteJson.Mask); err != nil {
		return err
	}
	n.Value = noteJson.Value
	return nil
}
