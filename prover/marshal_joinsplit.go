package prover

import (
	"encoding/json"
	"fmt"
	"math/big"

	"zeth/zeth-prover/prover/commitment"
)

type JoinSplitInputJSON struct {
	Note         commitment.Note `json:"note"`
	SpendingKey  string          `json:"a_sk"`
	Nullifier    string          `json:"nullifier"`
	PathIndex    uint32          `json:"path_index"`
	PathElements []string        `json:"path"`
}

type JoinSplitOutputJSON struct {
	Note       commitment.Note `json:"note"`
	Commitment string          `json:"commitment"`
}

type JoinSplitParametersJSON struct {
	Root           string                `json:"root"`
	Inputs         []JoinSplitInputJSON  `json:"inputs"`
	Outputs        []JoinSplitOutputJSON `json:"outputs"`
	PublicValueIn  uint64                `json:"public_value_in"`
	PublicValueOut uint64                `json:"public_value_out"`
}

type JoinSplitPublicInputsJSON struct {
	Root           string   `json:"root"`
	Nullifiers     []string `json:"nullifiers"`
	Commitments    []string `json:"commitments"`
	PublicValueIn  uint64   `json:"public_value_in"`
	PublicValueOut uint64   `json:"public_value_out"`
}

func ParseInput(inputJSON string) (JoinSplitParameters, error) {
	var params JoinSplitParameters
	err := json.Unmarshal([]byte(inputJSON), &params)
	if err != nil {
		return JoinSplitParameters{}, fmt.Errorf("error parsing JSON: %w", err)
	}
	return params, nil
}

func hexList(values []big.Int) []string {
	out := make([]string, len(values))
	for i := range values {
		out[i] = toHex(&values[i])
	}
	return out
}

func parseHexList(values []string) ([]big.Int, error) {
	out := make([]big.Int, len(values))
	for i, v := range values {
		if err := fromHex(&out[i], v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *JoinSplitParameters) MarshalJSON() ([]byte, error) {
	paramsJson := JoinSplitParametersJSON{
		Root:           toHex(&p.Root),
		Inputs:         make([]JoinSplitInputJSON, len(p.Inputs)),
		Outputs:        make([]JoinSplitOutputJSON, len(p.Outputs)),
		PublicValueIn:  p.PublicValueIn,
		PublicValueOut: p.PublicValueOut,
	}
	for i := range p.Inputs {
		input := &p.Inputs[i]
		paramsJson.Inputs[i] = JoinSplitInputJSON{
			Note:         input.Note,
			SpendingKey:  toHex(&input.SpendingKey),
			Nullifier:    toHex(&input.Nullifier),
			PathIndex:    input.PathIndex,
			PathElements: hexList(input.PathElements),
		}
	}
	for i := range p.Outputs {
		output := &p.Outputs[i]
		paramsJson.Outputs[i] = JoinSplitOutputJSON{
			Note:       output.Note,
			Commitment: toHex(&output.Commitment),
		}
	}
	return json.Marshal(paramsJson)
}

func (p *JoinSplitParameters) UnmarshalJSON(data []byte) error {
	var params JoinSplitParametersJSON
	if err := json.Unmarshal(data, &params); err != nil {
		return err
	}

	if err := fromHex(&p.Root, params.Root); err != nil {
		return err
	}
	p.PublicValueIn = params.PublicValueIn
	p.PublicValueOut = params.PublicValueOut

	p.Inputs = make([]JoinSplitInput, len(params.Inputs))
	for i, input := range params.Inputs {
		p.Inputs[i].Note = input.Note
		p.Inputs[i].PathIndex = input.PathIndex
		if err := fromHex(&p.Inputs[i].SpendingKey, input.SpendingKey); err != nil {
			return err
		}
		if err := fromHex(&p.Inputs[i].Nullifier, input.Nullifier); err != nil {
			return err
		}
		path, err := parseHexList(input.PathElements)
		if err != nil {
			return err
		}
		p.Inputs[i].PathElements = path
	}

	p.Outputs = make([]JoinSplitOutput, len(params.Outputs))
	for i, output := range params.Outputs {
		p.Outputs[i].Note = output.Note
		if err := fromHex(&p.Outputs[i].Commitment, output.Commitment); err != nil {
			return err
		}
	}
	return p.CheckField()
}

func (p *JoinSplitPublicInputs) MarshalJSON() ([]byte, error) {
	return json.Marshal(JoinSplitPublicInputsJSON{
		Root:           toHex(&p.Root),
		Nullifiers:     hexList(p.Nullifiers),
		Commitments:    hexList(p.Commitments),
		PublicValueIn:  p.PublicValueIn,
		PublicValueOut: p.PublicValueOut,
	})
}

func (p *JoinSplitPublicInputs) UnmarshalJSON(data []byte) error {
	var public JoinSplitPublicInputsJSON
	if err := json.Unmarshal(data, &public); err != nil {
		return err
	}
	if err := fromHex(&p.Root, public.Root); err != nil {
		return err
	}
	nullifiers, err := parseHexList(public.Nullifiers)
	if err != nil {
		return err
	}
	commitments, err := parseHexList(public.Commitments)
	if err != nil {
		return err
	}
	p.Nullifiers = nullifiers
	p.Commitments = commitments
	p.PublicValueIn = public.PublicValueIn
	p.PublicValueOut = public.PublicValueOut
	return p.CheckField()
}
