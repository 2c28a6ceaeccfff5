package mimc

import (
	"github.com/consensys/gnark/frontend"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

// Round is one MiMC-e7 round: (X + K + c[Index])^7, plus K on the final round.
type Round struct {
	X     frontend.Variable
	K     frontend.Variable
	Index int
}

func (gadget Round) DefineGadget(api frontend.API) interface{} {
	t := api.Add(gadget.X, gadget.K, roundConstants[gadget.Index])
	t2 := api.Mul(t, t)
	t4 := api.Mul(t2, t2)
	t6 := api.Mul(t4, t2)
	t7 := api.Mul(t6, t)
	if gadget.Index == Rounds-1 {
		return api.Add(t7, gadget.K)
	}
	return t7
}

// Permutation is the keyed MiMC-e7 permutation E_K(X).
type Permutation struct {
	X frontend.Variable
	K frontend.Variable
}

func (gadget Permutation) DefineGadget(api frontend.API) interface{} {
	current := gadget.X
	for i := 0; i < Rounds; i++ {
		current = abstractor.Call(api, Round{X: current, K: gadget.K, Index: i})
	}
	return current
}

// Hash is MiMC in Miyaguchi-Preneel mode:
// h_0 = IV, h_i = E_{h_{i-1}}(m_i) + h_{i-1} + m_i.
type Hash struct {
	IV       frontend.Variable
	Messages []frontend.Variable
}

func (gadget Hash) DefineGadget(api frontend.API) interface{} {
	h := gadget.IV
	for _, m := range gadget.Messages {
		c := abstractor.Call(api, Permutation{X: m, K: h})
		h = api.Add(c, h, m)
	}
	return h
}

// Hash2 hashes a pair under the protocol IV.
type Hash2 struct {
	In1, In2 frontend.Variable
}

func (gadget Hash2) DefineGadget(api frontend.API) interface{} {
	return abstractor.Call(api, Hash{IV: iv, Messages: []frontend.Variable{gadget.In1, gadget.In2}})
}

// Hash1 hashes a single element under the protocol IV.
type Hash1 struct {
	In frontend.Variable
}

func (gadget Hash1) DefineGadget(api frontend.API) interface{} {
	return abstractor.Call(api, Hash{IV: iv, Messages: []frontend.Variable{gadget.In}})
}
