package prover

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"

	"zeth/zeth-prover/logging"
	"zeth/zeth-prover/prover/commitment"
	"zeth/zeth-prover/prover/mimc"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

// ValueBits bounds every note value and public value.
const ValueBits = 64

// MaxTreeDepth keeps leaf indices representable as uint32.
const MaxTreeDepth = 32

var (
	ErrInvalidShape    = errors.New("invalid circuit shape")
	ErrCurveMismatch   = errors.New("curve mismatch")
	ErrProofGeneration = errors.New("proof generation failed")
	ErrVerification    = errors.New("verification failed")
	ErrNotInField      = errors.New("value is not a canonical field element")
)

type Proof struct {
	Proof groth16.Proof
}

type ProvingSystem struct {
	CircuitShape
	ProvingKey       groth16.ProvingKey
	VerifyingKey     groth16.VerifyingKey
	ConstraintSystem constraint.ConstraintSystem
}

// CircuitShape fixes the arity and tree depth of a JoinSplit statement.
type CircuitShape struct {
	NumberOfInputs  uint32
	NumberOfOutputs uint32
	TreeDepth       uint32
}

// NewCircuitShape builds a validated shape from unsized integers, such as command line flags.
func NewCircuitShape(inputs, outputs, treeDepth uint64) (CircuitShape, error) {
	for name, v := range map[string]uint64{"inputs": inputs, "outputs": outputs, "tree depth": treeDepth} {
		if v > math.MaxUint32 {
			return CircuitShape{}, fmt.Errorf("%w: %s %d does not fit in 32 bits", ErrInvalidShape, name, v)
		}
	}
	shape := CircuitShape{
		NumberOfInputs:  uint32(inputs),
		NumberOfOutputs: uint32(outputs),
		TreeDepth:       uint32(treeDepth),
	}
	return shape, shape.Validate()
}

func (shape CircuitShape) Validate() error {
	if shape.NumberOfInputs == 0 {
		return fmt.Errorf("%w: at least one input note is required", ErrInvalidShape)
	}
	if shape.NumberOfOutputs == 0 {
		return fmt.Errorf("%w: at least one output note is required", ErrInvalidShape)
	}
	if shape.TreeDepth == 0 || shape.TreeDepth > MaxTreeDepth {
		return fmt.Errorf("%w: tree depth must be in [1, %d], got %d", ErrInvalidShape, MaxTreeDepth, shape.TreeDepth)
	}
	return nil
}

func (shape CircuitShape) String() string {
	return fmt.Sprintf("joinsplit_%d_%d_%d", shape.NumberOfInputs, shape.NumberOfOutputs, shape.TreeDepth)
}

// ProveParentHash orders (Hash, Sibling) by Bit and hashes the pair.
type ProveParentHash struct {
	Bit     frontend.Variable
	Hash    frontend.Variable
	Sibling frontend.Variable
}

func (gadget ProveParentHash) DefineGadget(api frontend.API) interface{} {
	api.AssertIsBoolean(gadget.Bit)
	d1 := api.Select(gadget.Bit, gadget.Sibling, gadget.Hash)
	d2 := api.Select(gadget.Bit, gadget.Hash, gadget.Sibling)
	return abstractor.Call(api, mimc.Hash2{In1: d1, In2: d2})
}

type MerkleRootGadget struct {
	Hash   frontend.Variable
	Index  []frontend.Variable
	Path   []frontend.Variable
	Height int
}

func (gadget MerkleRootGadget) DefineGadget(api frontend.API) interface{} {
	currentHash := gadget.Hash
	for i := 0; i < gadget.Height; i++ {
		currentHash = abstractor.Call(api, ProveParentHash{
			Bit:     gadget.Index[i],
			Hash:    currentHash,
			Sibling: gadget.Path[i],
		})
	}
	return currentHash
}

// AssertValueRange constrains Value to N bits.
type AssertValueRange struct {
	Value frontend.Variable
	N     int
}

func (gadget AssertValueRange) DefineGadget(api frontend.API) interface{} {
	api.ToBinary(gadget.Value, gadget.N)
	return []frontend.Variable{}
}

// InputNoteGadget checks ownership, membership and the nullifier of one spent note
// and returns its nullifier.
type InputNoteGadget struct {
	Root        frontend.Variable
	SpendingKey frontend.Variable
	Value       frontend.Variable
	Rho         frontend.Variable
	Trapdoor    frontend.Variable
	Mask        frontend.Variable
	PathIndex   frontend.Variable
	Path        []frontend.Variable
	Depth       int
}

func (gadget InputNoteGadget) DefineGadget(api frontend.API) interface{} {
	abstractor.CallVoid(api, AssertValueRange{Value: gadget.Value, N: ValueBits})

	publicKey := abstractor.Call(api, commitment.PublicKey{SpendingKey: gadget.SpendingKey})
	cm := abstractor.Call(api, commitment.Commitment{
		PublicKey: publicKey,
		Value:     gadget.Value,
		Rho:       gadget.Rho,
		Trapdoor:  gadget.Trapdoor,
		Mask:      gadget.Mask,
	})

	index := api.ToBinary(gadget.PathIndex, gadget.Depth)
	root := abstractor.Call(api, MerkleRootGadget{
		Hash:   cm,
		Index:  index,
		Path:   gadget.Path,
		Height: gadget.Depth,
	})
	// zero-valued notes skip membership
	api.AssertIsEqual(api.Mul(api.Sub(root, gadget.Root), gadget.Value), 0)

	return abstractor.Call(api, commitment.Nullifier{SpendingKey: gadget.SpendingKey, Rho: gadget.Rho})
}

// OutputNoteGadget range-checks a created note and returns its commitment.
type OutputNoteGadget struct {
	PublicKey frontend.Variable
	Value     frontend.Variable
	Rho       frontend.Variable
	Trapdoor  frontend.Variable
	Mask      frontend.Variable
}

func (gadget OutputNoteGadget) DefineGadget(api frontend.API) interface{} {
	abstractor.CallVoid(api, AssertValueRange{Value: gadget.Value, N: ValueBits})
	return abstractor.Call(api, commitment.Commitment{
		PublicKey: gadget.PublicKey,
		Value:     gadget.Value,
		Rho:       gadget.Rho,
		Trapdoor:  gadget.Trapdoor,
		Mask:      gadget.Mask,
	})
}

func LoadProvingKey(filepath string) (pk groth16.ProvingKey, err error) {
	logging.Logger().Info().Str("filepath", filepath).Msg("start reading proving key")
	pk = groth16.NewProvingKey(ecc.BN254)
	f, err := os.Open(filepath)
	if err != nil {
		return pk, fmt.Errorf("error opening proving key file: %w", err)
	}
	defer f.Close()

	n, err := pk.ReadFrom(f)
	if err != nil {
		return pk, fmt.Errorf("error reading proving key: %w", err)
	}
	if pk.CurveID() != ecc.BN254 {
		return pk, fmt.Errorf("%w: proving key is on %s", ErrCurveMismatch, pk.CurveID())
	}
	logging.Logger().Info().Str("filepath", filepath).Int64("bytesRead", n).Msg("successfully read proving key")
	return pk, nil
}

func LoadVerifyingKey(filepath string) (verifyingKey groth16.VerifyingKey, err error) {
	logging.Logger().Info().Str("filepath", filepath).Msg("start reading verifying key")
	verifyingKey = groth16.NewVerifyingKey(ecc.BN254)
	f, err := os.Open(filepath)
	if err != nil {
		return verifyingKey, fmt.Errorf("error opening verifying key file: %w", err)
	}
	defer f.Close()

	_, err = verifyingKey.ReadFrom(f)
	if err != nil {
		return verifyingKey, fmt.Errorf("error reading verifying key: %w", err)
	}
	if verifyingKey.CurveID() != ecc.BN254 {
		return verifyingKey, fmt.Errorf("%w: verifying key is on %s", ErrCurveMismatch, verifyingKey.CurveID())
	}
	return verifyingKey, nil
}

// checkCurve rejects a proving system whose artefacts were not produced for BN254.
func (ps *ProvingSystem) checkCurve() error {
	if ps.ProvingKey != nil && ps.ProvingKey.CurveID() != ecc.BN254 {
		return fmt.Errorf("%w: proving key is on %s", ErrCurveMismatch, ps.ProvingKey.CurveID())
	}
	if ps.VerifyingKey != nil && ps.VerifyingKey.CurveID() != ecc.BN254 {
		return fmt.Errorf("%w: verifying key is on %s", ErrCurveMismatch, ps.VerifyingKey.CurveID())
	}
	if ps.ConstraintSystem != nil && ps.ConstraintSystem.Field().Cmp(ecc.BN254.ScalarField()) != 0 {
		return fmt.Errorf("%w: constraint system field is not the BN254 scalar field", ErrCurveMismatch)
	}
	return nil
}

func bigIntsToVariables(values []big.Int) []frontend.Variable {
	out := make([]frontend.Variable, len(values))
	for i := range values {
		out[i] = values[i]
	}
	return out
}
