// Package merkle implements the complete binary hash tree over one-time
// public key leaves. Every level is retained, so authentication paths for
// arbitrary leaves are available at the cost of O(2^depth) memory. The
// traversal package provides the logarithmic-memory alternative; both yield
// byte-identical roots and paths.
package merkle

import (
	"errors"
	"fmt"

	"github.com/verifiable-state-chains/merklesig/sponge"
)

// ErrLeafOutOfRange is returned when a leaf index does not exist in the tree.
var ErrLeafOutOfRange = errors.New("merkle: leaf index out of range")

// Tree is a fully materialized hash tree. levels[0] holds the leaves,
// levels[depth] the single root.
type Tree struct {
	hash   sponge.Hash
	depth  int
	levels [][][]byte
}

// Build constructs the tree bottom-up. The leaf count must be a power of
// two; tree depth is the configuration parameter upstream, so uneven levels
// never occur and no odd-node policy is needed.
func Build(h sponge.Hash, leaves [][]byte) (*Tree, error) {
	n := len(leaves)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("merkle: leaf count %d is not a power of two", n)
	}

	depth := 0
	for 1<<depth < n {
		depth++
	}

	levels := make([][][]byte, depth+1)
	levels[0] = make([][]byte, n)
	for i, leaf := range leaves {
		levels[0][i] = append([]byte(nil), leaf...)
	}

	for lvl := 1; lvl <= depth; lvl++ {
		below := levels[lvl-1]
		levels[lvl] = make([][]byte, len(below)/2)
		for i := range levels[lvl] {
			levels[lvl][i] = h.Node(below[2*i], below[2*i+1])
		}
	}

	return &Tree{hash: h, depth: depth, levels: levels}, nil
}

// Root returns the tree root.
func (t *Tree) Root() []byte {
	return append([]byte(nil), t.levels[t.depth][0]...)
}

// Depth returns the height of the tree.
func (t *Tree) Depth() int {
	return t.depth
}

// AuthPath collects the sibling hash at each level on the way from the leaf
// to the root, leaf level first.
func (t *Tree) AuthPath(leaf uint32) ([][]byte, error) {
	if leaf >= uint32(len(t.levels[0])) {
		return nil, ErrLeafOutOfRange
	}
	path := make([][]byte, t.depth)
	idx := leaf
	for lvl := 0; lvl < t.depth; lvl++ {
		path[lvl] = append([]byte(nil), t.levels[lvl][idx^1]...)
		idx >>= 1
	}
	return path, nil
}

// Fold recomputes a root candidate from a leaf value and its authentication
// path. Bit lvl of the leaf index selects the combine order at each level.
// Builders and verifiers share this folding, so the left-right convention
// can never drift between them.
func Fold(h sponge.Hash, leaf []byte, index uint32, path [][]byte) []byte {
	node := append([]byte(nil), leaf...)
	for lvl, sibling := range path {
		if index>>uint(lvl)&1 == 0 {
			node = h.Node(node, sibling)
		} else {
			node = h.Node(sibling, node)
		}
	}
	return node
}
