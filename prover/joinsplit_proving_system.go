package prover

import (
	"fmt"
	"math/big"

	"zeth/zeth-prover/logging"
	"zeth/zeth-prover/prover/commitment"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/iden3/go-iden3-crypto/utils"
)

// JoinSplitInput is the full witness of one spent note.
type JoinSplitInput struct {
	Note         commitment.Note
	SpendingKey  big.Int
	Nullifier    big.Int
	PathIndex    uint32
	PathElements []big.Int
}

// JoinSplitOutput is a created note together with its published commitment.
type JoinSplitOutput struct {
	Note       commitment.Note
	Commitment big.Int
}

type JoinSplitParameters struct {
	Root           big.Int
	Inputs         []JoinSplitInput
	Outputs        []JoinSplitOutput
	PublicValueIn  uint64
	PublicValueOut uint64
}

// JoinSplitPublicInputs is everything a verifier sees.
type JoinSplitPublicInputs struct {
	Root           big.Int
	Nullifiers     []big.Int
	Commitments    []big.Int
	PublicValueIn  uint64
	PublicValueOut uint64
}

func (p *JoinSplitParameters) NumberOfInputs() uint32 {
	return uint32(len(p.Inputs))
}

func (p *JoinSplitParameters) NumberOfOutputs() uint32 {
	return uint32(len(p.Outputs))
}

func (p *JoinSplitParameters) ValidateShape(shape CircuitShape) error {
	if p.NumberOfInputs() != shape.NumberOfInputs {
		return fmt.Errorf("%w: wrong number of input notes: %d", ErrInvalidShape, len(p.Inputs))
	}
	if p.NumberOfOutputs() != shape.NumberOfOutputs {
		return fmt.Errorf("%w: wrong number of output notes: %d", ErrInvalidShape, len(p.Outputs))
	}
	for i, input := range p.Inputs {
		if uint32(len(input.PathElements)) != shape.TreeDepth {
			return fmt.Errorf("%w: wrong size of merkle proof for input %d: %d", ErrInvalidShape, i, len(input.PathElements))
		}
		if shape.TreeDepth < 32 && input.PathIndex >= 1<<shape.TreeDepth {
			return fmt.Errorf("%w: path index %d does not fit a tree of depth %d", ErrInvalidShape, input.PathIndex, shape.TreeDepth)
		}
	}
	return nil
}

// checkInField requires 0 <= v < r.
func checkInField(v *big.Int, format string, args ...interface{}) error {
	if v.Sign() < 0 || !utils.CheckBigIntInField(v) {
		return fmt.Errorf("%w: %s", ErrNotInField, fmt.Sprintf(format, args...))
	}
	return nil
}

func checkNoteInField(note *commitment.Note, kind string, i int) error {
	if err := checkInField(&note.PublicKey, "%s %d public key", kind, i); err != nil {
		return err
	}
	if err := checkInField(&note.Rho, "%s %d rho", kind, i); err != nil {
		return err
	}
	if err := checkInField(&note.Trapdoor, "%s %d trapdoor", kind, i); err != nil {
		return err
	}
	return checkInField(&note.Mask, "%s %d mask", kind, i)
}

// CheckField verifies that every field-valued parameter is canonical.
func (p *JoinSplitParameters) CheckField() error {
	if err := checkInField(&p.Root, "root"); err != nil {
		return err
	}
	for i := range p.Inputs {
		input := &p.Inputs[i]
		if err := checkInField(&input.SpendingKey, "input %d spending key", i); err != nil {
			return err
		}
		if err := checkInField(&input.Nullifier, "input %d nullifier", i); err != nil {
			return err
		}
		for j := range input.PathElements {
			if err := checkInField(&input.PathElements[j], "input %d path element %d", i, j); err != nil {
				return err
			}
		}
		if err := checkNoteInField(&input.Note, "input", i); err != nil {
			return err
		}
	}
	for i := range p.Outputs {
		if err := checkInField(&p.Outputs[i].Commitment, "output %d commitment", i); err != nil {
			return err
		}
		if err := checkNoteInField(&p.Outputs[i].Note, "output", i); err != nil {
			return err
		}
	}
	return nil
}

// CheckField rejects roots, nullifiers and commitments outside [0, r).
func (p *JoinSplitPublicInputs) CheckField() error {
	if err := checkInField(&p.Root, "root"); err != nil {
		return err
	}
	for i := range p.Nullifiers {
		if err := checkInField(&p.Nullifiers[i], "nullifier %d", i); err != nil {
			return err
		}
	}
	for i := range p.Commitments {
		if err := checkInField(&p.Commitments[i], "commitment %d", i); err != nil {
			return err
		}
	}
	return nil
}

func (p *JoinSplitParameters) PublicInputs() JoinSplitPublicInputs {
	public := JoinSplitPublicInputs{
		Root:           p.Root,
		Nullifiers:     make([]big.Int, len(p.Inputs)),
		Commitments:    make([]big.Int, len(p.Outputs)),
		PublicValueIn:  p.PublicValueIn,
		PublicValueOut: p.PublicValueOut,
	}
	for i := range p.Inputs {
		public.Nullifiers[i] = p.Inputs[i].Nullifier
	}
	for i := range p.Outputs {
		public.Commitments[i] = p.Outputs[i].Commitment
	}
	return public
}

// Vector lays the public inputs out as
// [root, nullifiers..., commitments..., public value in, public value out].
func (p *JoinSplitPublicInputs) Vector() []big.Int {
	out := make([]big.Int, 0, 3+len(p.Nullifiers)+len(p.Commitments))
	out = append(out, p.Root)
	out = append(out, p.Nullifiers...)
	out = append(out, p.Commitments...)
	out = append(out, *new(big.Int).SetUint64(p.PublicValueIn), *new(big.Int).SetUint64(p.PublicValueOut))
	return out
}

func (p *JoinSplitPublicInputs) assignment() JoinSplitCircuit {
	return JoinSplitCircuit{
		Root:           p.Root,
		Nullifiers:     bigIntsToVariables(p.Nullifiers),
		Commitments:    bigIntsToVariables(p.Commitments),
		PublicValueIn:  p.PublicValueIn,
		PublicValueOut: p.PublicValueOut,
	}
}

func (p *JoinSplitParameters) assignment() JoinSplitCircuit {
	nIn := len(p.Inputs)
	nOut := len(p.Outputs)
	public := p.PublicInputs()
	circuit := public.assignment()

	circuit.InSpendingKeys = make([]frontend.Variable, nIn)
	circuit.InValues = make([]frontend.Variable, nIn)
	circuit.InRhos = make([]frontend.Variable, nIn)
	circuit.InTrapdoors = make([]frontend.Variable, nIn)
	circuit.InMasks = make([]frontend.Variable, nIn)
	circuit.InPathIndices = make([]frontend.Variable, nIn)
	circuit.InPathElements = make([][]frontend.Variable, nIn)
	for i, input := range p.Inputs {
		circuit.InSpendingKeys[i] = input.SpendingKey
		circuit.InValues[i] = input.Note.Value
		circuit.InRhos[i] = input.Note.Rho
		circuit.InTrapdoors[i] = input.Note.Trapdoor
		circuit.InMasks[i] = input.Note.Mask
		circuit.InPathIndices[i] = input.PathIndex
		circuit.InPathElements[i] = bigIntsToVariables(input.PathElements)
	}

	circuit.OutPublicKeys = make([]frontend.Variable, nOut)
	circuit.OutValues = make([]frontend.Variable, nOut)
	circuit.OutRhos = make([]frontend.Variable, nOut)
	circuit.OutTrapdoors = make([]frontend.Variable, nOut)
	circuit.OutMasks = make([]frontend.Variable, nOut)
	for i, output := range p.Outputs {
		circuit.OutPublicKeys[i] = output.Note.PublicKey
		circuit.OutValues[i] = output.Note.Value
		circuit.OutRhos[i] = output.Note.Rho
		circuit.OutTrapdoors[i] = output.Note.Trapdoor
		circuit.OutMasks[i] = output.Note.Mask
	}

	circuit.NumberOfInputs = nIn
	circuit.NumberOfOutputs = nOut
	if nIn > 0 {
		circuit.Depth = len(p.Inputs[0].PathElements)
	}
	return circuit
}

func R1CSJoinSplit(shape CircuitShape) (constraint.ConstraintSystem, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	circuit := newJoinSplitCircuit(shape)
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
}

func SetupJoinSplit(shape CircuitShape) (*ProvingSystem, error) {
	ccs, err := R1CSJoinSplit(shape)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info().
		Uint32("inputs", shape.NumberOfInputs).
		Uint32("outputs", shape.NumberOfOutputs).
		Uint32("treeDepth", shape.TreeDepth).
		Int("constraints", ccs.GetNbConstraints()).
		Msg("Running groth16 setup")
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return &ProvingSystem{CircuitShape: shape, ProvingKey: pk, VerifyingKey: vk, ConstraintSystem: ccs}, nil
}

// ImportJoinSplitSetup pairs keys produced elsewhere (e.g. an MPC ceremony) with a freshly compiled circuit.
func ImportJoinSplitSetup(shape CircuitShape, pkPath string, vkPath string) (*ProvingSystem, error) {
	ccs, err := R1CSJoinSplit(shape)
	if err != nil {
		return nil, err
	}

	pk, err := LoadProvingKey(pkPath)
	if err != nil {
		return nil, err
	}

	vk, err := LoadVerifyingKey(vkPath)
	if err != nil {
		return nil, err
	}

	ps := &ProvingSystem{CircuitShape: shape, ProvingKey: pk, VerifyingKey: vk, ConstraintSystem: ccs}
	if err := ps.checkCurve(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *ProvingSystem) ProveJoinSplit(params *JoinSplitParameters) (*Proof, error) {
	if err := params.ValidateShape(ps.CircuitShape); err != nil {
		return nil, err
	}
	if err := params.CheckField(); err != nil {
		return nil, err
	}
	if err := ps.checkCurve(); err != nil {
		return nil, err
	}

	assignment := params.assignment()
	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	logging.Logger().Info().
		Uint32("inputs", ps.NumberOfInputs).
		Uint32("outputs", ps.NumberOfOutputs).
		Uint32("treeDepth", ps.TreeDepth).
		Msg("Proving joinsplit")
	proof, err := groth16.Prove(ps.ConstraintSystem, ps.ProvingKey, witness)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("joinsplit proof generation failed")
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, err)
	}

	return &Proof{proof}, nil
}

func (ps *ProvingSystem) VerifyJoinSplit(public *JoinSplitPublicInputs, proof *Proof) error {
	if uint32(len(public.Nullifiers)) != ps.NumberOfInputs || uint32(len(public.Commitments)) != ps.NumberOfOutputs {
		return fmt.Errorf("%w: expected %d nullifiers and %d commitments, got %d and %d", ErrInvalidShape,
			ps.NumberOfInputs, ps.NumberOfOutputs, len(public.Nullifiers), len(public.Commitments))
	}
	if err := public.CheckField(); err != nil {
		return err
	}

	publicAssignment := public.assignment()
	witness, err := frontend.NewWitness(&publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	if err := groth16.Verify(proof.Proof, ps.VerifyingKey, witness); err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return nil
}
