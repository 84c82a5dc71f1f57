// Package traversal produces successive Merkle authentication paths in
// logarithmic memory. Instead of materializing the tree, it keeps one
// treehash stack per level plus the current path, and spends a bounded
// number of stack updates per advance so every future node completes just
// before it is needed. Paths and root are byte-identical to the complete
// construction in the merkle package for the same leaf sequence.
package traversal

import (
	"fmt"
	"math"

	"github.com/verifiable-state-chains/merklesig/sponge"
)

// LeafFunc computes the leaf hash for an index. It must be deterministic;
// the traverser calls it once per leaf subtree node it schedules.
type LeafFunc func(leaf uint32) []byte

type node struct {
	hash   []byte
	height uint32
	index  uint32
}

// treehash incrementally computes one subtree node of a target height,
// consuming leaves in order and collapsing equal-height pairs.
type treehash struct {
	nodes  []*node
	height uint32
	leaf   uint32
}

func (s *treehash) top() *node {
	return s.nodes[len(s.nodes)-1]
}

func (s *treehash) nextTop() *node {
	return s.nodes[len(s.nodes)-2]
}

func (s *treehash) push(n *node) {
	s.nodes = append(s.nodes, n)
}

func (s *treehash) pop(count int) {
	for i := 0; i < count; i++ {
		s.nodes[len(s.nodes)-1-i] = nil
	}
	s.nodes = s.nodes[:len(s.nodes)-count]
}

func (s *treehash) complete() bool {
	return len(s.nodes) > 0 && s.top().height == s.height
}

// low reports the urgency of this stack for the update scheduler: the
// minimum height of any pending node, the target height when the stack is
// empty, and MaxUint32 once the stack has completed or has nothing left to
// consume.
func (s *treehash) low(maxLeaf uint32) uint32 {
	if len(s.nodes) == 0 {
		if s.leaf >= maxLeaf {
			return math.MaxUint32
		}
		return s.height
	}
	if s.complete() {
		return math.MaxUint32
	}
	min := uint32(math.MaxUint32)
	for _, n := range s.nodes {
		if n.height < min {
			min = n.height
		}
	}
	return min
}

func (s *treehash) initialize(start, height uint32) {
	s.leaf = start
	s.height = height
	s.nodes = s.nodes[:0]
}

// update performs count stack operations: a combine when the two top nodes
// share a height, otherwise a new leaf. Stops early once the target height
// is reached.
func (s *treehash) update(count int, hash sponge.Hash, leafFn LeafFunc) {
	for i := 0; i < count; i++ {
		if s.complete() {
			return
		}
		if len(s.nodes) >= 2 {
			right := s.top()
			left := s.nextTop()
			if left.height == right.height {
				parent := &node{
					hash:   hash.Node(left.hash, right.hash),
					height: right.height + 1,
					index:  right.index >> 1,
				}
				s.pop(2)
				s.push(parent)
				continue
			}
		}
		s.push(&node{hash: leafFn(s.leaf), height: 0, index: s.leaf})
		s.leaf++
	}
}

// Traverser walks the leaves of a height-depth tree in order, emitting the
// authentication path for each. Peak storage is O(depth) nodes.
type Traverser struct {
	hash    sponge.Hash
	depth   uint32
	cursor  uint32
	stacks  []*treehash
	auth    [][]byte
	root    []byte
	leafFn  LeafFunc
	maxLeaf uint32
}

// New computes the root and the authentication path for leaf 0 with a
// single build stack, seeding each level's treehash with the first node it
// will hand out and scheduling the next subtree behind it.
func New(h sponge.Hash, depth uint32, leafFn LeafFunc) (*Traverser, error) {
	if depth < 1 || depth > 31 {
		return nil, fmt.Errorf("traversal: depth %d out of range [1, 31]", depth)
	}

	t := &Traverser{
		hash:    h,
		depth:   depth,
		stacks:  make([]*treehash, depth),
		auth:    make([][]byte, depth),
		leafFn:  leafFn,
		maxLeaf: 1 << depth,
	}

	build := &treehash{height: depth, nodes: make([]*node, 0, depth+1)}
	for i := uint32(0); i < depth; i++ {
		build.update(1, h, leafFn)

		// The node now on top covers leaves [0, 2^i); it becomes the
		// auth node at level i once the cursor crosses into the right
		// half of its parent.
		t.stacks[i] = &treehash{
			height: i,
			leaf:   1 << i,
			nodes:  make([]*node, 0, i+1),
		}
		t.stacks[i].push(build.top())

		build.update(1<<(i+1)-1, h, leafFn)
		t.auth[i] = append([]byte(nil), build.top().hash...)
	}
	build.update(1, h, leafFn)
	t.root = append([]byte(nil), build.top().hash...)

	return t, nil
}

// Root returns the tree root.
func (t *Traverser) Root() []byte {
	return append([]byte(nil), t.root...)
}

// Depth returns the height of the tree.
func (t *Traverser) Depth() int {
	return int(t.depth)
}

// NextIndex returns the leaf whose path AuthPath will emit next.
func (t *Traverser) NextIndex() uint32 {
	return t.cursor
}

// AuthPath emits the authentication path for the given leaf and advances
// the traversal state. Leaves must be consumed strictly in order; the tree
// layer above guarantees this by advancing its cursor atomically with key
// derivation.
func (t *Traverser) AuthPath(leaf uint32) ([][]byte, error) {
	if leaf != t.cursor {
		return nil, fmt.Errorf("traversal: paths are sequential: requested leaf %d, cursor at %d", leaf, t.cursor)
	}
	if leaf >= t.maxLeaf {
		return nil, fmt.Errorf("traversal: leaf %d beyond capacity %d", leaf, t.maxLeaf)
	}

	path := make([][]byte, t.depth)
	for i := range t.auth {
		path[i] = append([]byte(nil), t.auth[i]...)
	}

	if t.cursor+1 < t.maxLeaf {
		t.advance()
	} else {
		t.cursor++
	}
	return path, nil
}

// advance rotates auth nodes whose subtree boundary the cursor is crossing,
// restarts the freed stacks at the next subtree each level will need, and
// distributes 2*depth-1 stack updates to the lowest incomplete node.
func (t *Traverser) advance() {
	for h := uint32(0); h < t.depth; h++ {
		pow := uint32(1) << h
		if (t.cursor+1)&(pow-1) == 0 {
			t.auth[h] = t.stacks[h].top().hash
			start := ((t.cursor + 1) + pow) ^ pow
			t.stacks[h].initialize(start, h)
		}
	}

	for i := uint32(0); i < 2*t.depth-1; i++ {
		min := uint32(math.MaxUint32)
		focus := uint32(0)
		for h := uint32(0); h < t.depth; h++ {
			if low := t.stacks[h].low(t.maxLeaf); low < min {
				min = low
				focus = h
			}
		}
		if min == math.MaxUint32 {
			break
		}
		t.stacks[focus].update(1, t.hash, t.leafFn)
	}

	t.cursor++
}
