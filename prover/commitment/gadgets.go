package commitment

import (
	"zeth/zeth-prover/prover/mimc"

	"github.com/consensys/gnark/frontend"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

// Layer is the building block of the note commitment: H(IV, [First, Second]) + Mask.
// Passing a zero Mask yields a plain pair hash.
type Layer struct {
	First  frontend.Variable
	Second frontend.Variable
	Mask   frontend.Variable
}

func (gadget Layer) DefineGadget(api frontend.API) interface{} {
	digest := abstractor.Call(api, mimc.Hash2{In1: gadget.First, In2: gadget.Second})
	return api.Add(digest, gadget.Mask)
}

// OuterCommitment binds the trapdoor to the masked inner commitment H(a_pk, rho) + r_mask.
type OuterCommitment struct {
	PublicKey frontend.Variable
	Rho       frontend.Variable
	Trapdoor  frontend.Variable
	Mask      frontend.Variable
}

func (gadget OuterCommitment) DefineGadget(api frontend.API) interface{} {
	masked := abstractor.Call(api, Layer{First: gadget.PublicKey, Second: gadget.Rho, Mask: gadget.Mask})
	return abstractor.Call(api, Layer{First: gadget.Trapdoor, Second: masked, Mask: 0})
}

// Commitment computes the note commitment used as a Merkle leaf.
type Commitment struct {
	PublicKey frontend.Variable
	Value     frontend.Variable
	Rho       frontend.Variable
	Trapdoor  frontend.Variable
	Mask      frontend.Variable
}

func (gadget Commitment) DefineGadget(api frontend.API) interface{} {
	outer := abstractor.Call(api, OuterCommitment{
		PublicKey: gadget.PublicKey,
		Rho:       gadget.Rho,
		Trapdoor:  gadget.Trapdoor,
		Mask:      gadget.Mask,
	})
	return abstractor.Call(api, Layer{First: outer, Second: gadget.Value, Mask: 0})
}

// Nullifier is H(IV, [a_sk, rho]).
type Nullifier struct {
	SpendingKey frontend.Variable
	Rho         frontend.Variable
}

func (gadget Nullifier) DefineGadget(api frontend.API) interface{} {
	return abstractor.Call(api, mimc.Hash2{In1: gadget.SpendingKey, In2: gadget.Rho})
}

// PublicKey derives the paying address a_pk = H(IV, [a_sk]).
type PublicKey struct {
	SpendingKey frontend.Variable
}

func (gadget PublicKey) DefineGadget(api frontend.API) interface{} {
	return abstractor.Call(api, mimc.Hash1{In: gadget.SpendingKey})
}
