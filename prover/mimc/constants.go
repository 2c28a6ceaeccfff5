package mimc

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/keccak256"
)

const (
	// Rounds is the number of MiMC-e7 rounds for a 254-bit field.
	Rounds = 91
	// Exponent of the round power map. gcd(7, r-1) = 1 on BN254.
	Exponent = 7

	constantsSeed = "mimc"
	ivSeed        = "Clearmatics"
)

var (
	roundConstants   = deriveRoundConstants()
	roundConstantsFr = toElements(roundConstants)
	iv               = deriveIV()
	ivFr             = toElement(&iv)
	inverseExponent  = deriveInverseExponent()
)

// deriveRoundConstants builds the keccak chain c[i] = keccak256(c[i-1]) seeded
// with keccak256("mimc"). The first round has no constant.
func deriveRoundConstants() []big.Int {
	cts := make([]big.Int, Rounds)
	c := new(big.Int).SetBytes(keccak256.Hash([]byte(constantsSeed)))
	for i := 1; i < Rounds; i++ {
		c = new(big.Int).SetBytes(keccak256.Hash(c.Bytes()))
		cts[i].Mod(c, constants.Q)
	}
	return cts
}

func deriveIV() big.Int {
	var v big.Int
	v.SetBytes(keccak256.Hash([]byte(ivSeed)))
	v.Mod(&v, constants.Q)
	return v
}

func deriveInverseExponent() *big.Int {
	order := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
	d := new(big.Int).ModInverse(big.NewInt(Exponent), order)
	if d == nil {
		panic("mimc: exponent is not invertible modulo r-1")
	}
	return d
}

func toElement(v *big.Int) fr.Element {
	var e fr.Element
	e.SetBigInt(v)
	return e
}

func toElements(vs []big.Int) []fr.Element {
	out := make([]fr.Element, len(vs))
	for i := range vs {
		out[i] = toElement(&vs[i])
	}
	return out
}

// RoundConstant returns a copy of the constant added in round i.
func RoundConstant(i int) big.Int {
	var c big.Int
	c.Set(&roundConstants[i])
	return c
}

// IV returns the protocol-wide hash initialisation value, keccak256("Clearmatics") mod r.
func IV() big.Int {
	var v big.Int
	v.Set(&iv)
	return v
}

// IVElement is IV as a field element.
func IVElement() fr.Element {
	return ivFr
}
