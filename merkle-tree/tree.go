package merkle_tree

import (
	"fmt"
	"math/big"

	"zeth/zeth-prover/prover/mimc"
)

// MiMCNode is a persistent tree node: updates return new nodes and share untouched subtrees.
type MiMCNode interface {
	depth() int
	value() big.Int
	withValue(index uint32, val big.Int) MiMCNode
	writeProof(index uint32, out []big.Int)
}

func indexIsLeft(index uint32, depth int) bool {
	return index&(1<<(depth-1)) == 0
}

type MiMCFullNode struct {
	dep   int
	val   big.Int
	left  MiMCNode
	right MiMCNode
}

type MiMCEmptyNode struct {
	dep             int
	emptyTreeValues []big.Int
}

func (node *MiMCFullNode) depth() int {
	return node.dep
}

func (node *MiMCEmptyNode) depth() int {
	return node.dep
}

func (node *MiMCFullNode) value() big.Int {
	return node.val
}

func (node *MiMCEmptyNode) value() big.Int {
	return node.emptyTreeValues[node.depth()]
}

func (node *MiMCFullNode) initHash() {
	node.val = mimc.HashValues(node.left.value(), node.right.value())
}

func (node *MiMCFullNode) withValue(index uint32, val big.Int) MiMCNode {
	result := MiMCFullNode{
		dep:   node.depth(),
		left:  node.left,
		right: node.right,
	}
	if node.depth() == 0 {
		result.val = val
	} else {
		if indexIsLeft(index, node.depth()) {
			result.left = node.left.withValue(index, val)
		} else {
			result.right = node.right.withValue(index, val)
		}
		result.initHash()
	}
	return &result
}

func (node *MiMCEmptyNode) withValue(index uint32, val big.Int) MiMCNode {
	result := MiMCFullNode{
		dep: node.depth(),
	}
	if node.depth() == 0 {
		result.val = val
	} else {
		emptyChild := MiMCEmptyNode{dep: node.depth() - 1, emptyTreeValues: node.emptyTreeValues}
		initializedChild := emptyChild.withValue(index, val)
		if indexIsLeft(index, node.depth()) {
			result.left = initializedChild
			result.right = &emptyChild
		} else {
			result.left = &emptyChild
			result.right = initializedChild
		}
		result.initHash()
	}
	return &result
}

func (node *MiMCFullNode) writeProof(index uint32, out []big.Int) {
	if node.depth() == 0 {
		return
	}
	if indexIsLeft(index, node.depth()) {
		out[node.depth()-1] = node.right.value()
		node.left.writeProof(index, out)
	} else {
		out[node.depth()-1] = node.left.value()
		node.right.writeProof(index, out)
	}
}

func (node *MiMCEmptyNode) writeProof(index uint32, out []big.Int) {
	for i := 0; i < node.depth(); i++ {
		out[i] = node.emptyTreeValues[i]
	}
}

// Tree is the note commitment tree. Empty leaves hold 0.
type Tree struct {
	root MiMCNode
}

func NewTree(depth int) (*Tree, error) {
	if depth < 1 || depth > 32 {
		return nil, fmt.Errorf("tree depth must be in [1, 32], got %d", depth)
	}
	initHashes := make([]big.Int, depth+1)
	for i := 1; i <= depth; i++ {
		initHashes[i] = mimc.HashValues(initHashes[i-1], initHashes[i-1])
	}
	return &Tree{root: &MiMCEmptyNode{dep: depth, emptyTreeValues: initHashes}}, nil
}

func (tree *Tree) Depth() int {
	return tree.root.depth()
}

func (tree *Tree) Root() big.Int {
	return tree.root.value()
}

func (tree *Tree) checkIndex(index uint32) error {
	if tree.Depth() < 32 && uint64(index) >= 1<<tree.Depth() {
		return fmt.Errorf("leaf index %d out of range for depth %d", index, tree.Depth())
	}
	return nil
}

// Path returns the sibling hashes from the leaf level up to the root's children.
func (tree *Tree) Path(index uint32) ([]big.Int, error) {
	if err := tree.checkIndex(index); err != nil {
		return nil, err
	}
	proof := make([]big.Int, tree.Depth())
	tree.root.writeProof(index, proof)
	return proof, nil
}

// SetValue stores a commitment at index and returns its new authentication path.
func (tree *Tree) SetValue(index uint32, value big.Int) ([]big.Int, error) {
	if err := tree.checkIndex(index); err != nil {
		return nil, err
	}
	tree.root = tree.root.withValue(index, value)
	return tree.Path(index)
}

// ComputeRoot folds a leaf and its path back into a root, as the circuit does.
func ComputeRoot(leaf big.Int, index uint32, path []big.Int) big.Int {
	current := leaf
	for i := range path {
		if index&(1<<i) == 0 {
			current = mimc.HashValues(current, path[i])
		} else {
			current = mimc.HashValues(path[i], current)
		}
	}
	return current
}
