package prover

import (
	"fmt"
	"path/filepath"
)

type CircuitType string

const (
	JoinSplitCircuitType CircuitType = "joinsplit"
)

func SetupCircuit(circuit CircuitType, shape CircuitShape) (*ProvingSystem, error) {
	switch circuit {
	case JoinSplitCircuitType:
		return SetupJoinSplit(shape)
	default:
		return nil, fmt.Errorf("invalid circuit: %s", circuit)
	}
}

// KeyFile is where setup output for shape is expected under circuitDir.
func KeyFile(circuitDir string, shape CircuitShape) string {
	return filepath.Join(circuitDir, shape.String()+".key")
}

// GetKeys lists the proving system files for shapes.
func GetKeys(circuitDir string, shapes []CircuitShape) []string {
	keys := make([]string, 0, len(shapes))
	for _, shape := range shapes {
		keys = append(keys, KeyFile(circuitDir, shape))
	}
	return keys
}
