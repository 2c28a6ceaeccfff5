package mimc

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/utils"
)

// NativeRound evaluates Round outside the constraint system.
func NativeRound(x, k fr.Element, index int) fr.Element {
	var t, t2, t4, t6 fr.Element
	t.Add(&x, &k).Add(&t, &roundConstantsFr[index])
	t2.Square(&t)
	t4.Square(&t2)
	t6.Mul(&t4, &t2)
	var t7 fr.Element
	t7.Mul(&t6, &t)
	if index == Rounds-1 {
		t7.Add(&t7, &k)
	}
	return t7
}

// NativePermute evaluates Permutation outside the constraint system.
func NativePermute(x, k fr.Element) fr.Element {
	current := x
	for i := 0; i < Rounds; i++ {
		current = NativeRound(current, k, i)
	}
	return current
}

// NativeInversePermute undoes NativePermute for a known key by taking
// 7th roots (exponent 7^-1 mod r-1) round by round.
func NativeInversePermute(y, k fr.Element) fr.Element {
	current := y
	for i := Rounds - 1; i >= 0; i-- {
		if i == Rounds-1 {
			current.Sub(&current, &k)
		}
		var t fr.Element
		t.Exp(current, inverseExponent)
		t.Sub(&t, &k).Sub(&t, &roundConstantsFr[i])
		current = t
	}
	return current
}

// NativeHash evaluates Hash outside the constraint system.
func NativeHash(iv fr.Element, messages ...fr.Element) fr.Element {
	h := iv
	for i := range messages {
		c := NativePermute(messages[i], h)
		h.Add(&h, &c).Add(&h, &messages[i])
	}
	return h
}

// HashBigInts hashes integers that must already be canonical field elements.
func HashBigInts(iv *big.Int, messages []*big.Int) (*big.Int, error) {
	if !utils.CheckBigIntInField(iv) {
		return nil, fmt.Errorf("iv is not inside the finite field")
	}
	elements := make([]fr.Element, len(messages))
	for i, m := range messages {
		if !utils.CheckBigIntInField(m) {
			return nil, fmt.Errorf("message %d is not inside the finite field", i)
		}
		elements[i] = toElement(m)
	}
	h := NativeHash(toElement(iv), elements...)
	return h.BigInt(new(big.Int)), nil
}

// HashValues hashes big.Int values under the protocol IV, reducing each one into the field first.
func HashValues(values ...big.Int) big.Int {
	elements := make([]fr.Element, len(values))
	for i := range values {
		elements[i] = toElement(&values[i])
	}
	h := NativeHash(ivFr, elements...)
	var out big.Int
	h.BigInt(&out)
	return out
}

// Reduce maps any integer into the canonical range [0, r).
func Reduce(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, fr.Modulus())
}
