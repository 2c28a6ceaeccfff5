package prover

func (p *JoinSplitParameters) Assignment() JoinSplitCircuit {
	return p.assignment()
}

func NewJoinSplitCircuit(shape CircuitShape) JoinSplitCircuit {
	return newJoinSplitCircuit(shape)
}
