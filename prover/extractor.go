package prover

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/reilabs/gnark-lean-extractor/v3/extractor"
)

func ExtractLean(shape CircuitShape) (string, error) {
	if err := shape.Validate(); err != nil {
		return "", err
	}
	circuit := newJoinSplitCircuit(shape)
	return extractor.ExtractCircuits("ZethJoinSplit", ecc.BN254, &circuit)
}
