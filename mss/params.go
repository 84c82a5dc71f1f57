package mss

import (
	"fmt"

	"github.com/verifiable-state-chains/merklesig/sponge"
	"github.com/verifiable-state-chains/merklesig/wots"
)

// Strategy selects how the tree behind a private key is held.
type Strategy uint8

const (
	// StrategyComplete materializes the full tree: O(2^depth) memory,
	// instant paths for any leaf.
	StrategyComplete Strategy = iota
	// StrategyTraversal keeps O(depth) nodes and computes each path
	// incrementally as leaves are consumed.
	StrategyTraversal
)

func (s Strategy) String() string {
	switch s {
	case StrategyComplete:
		return "complete"
	case StrategyTraversal:
		return "traversal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Params configures a key. Depth bounds the number of signatures at
// 2^Depth; W trades signature size against chain computation; Strategy
// trades memory against per-signature latency. Strategies are
// interchangeable: roots and signatures are byte-identical for the same
// seed and depth.
type Params struct {
	Depth    int
	W        int
	Hash     sponge.Hash
	Strategy Strategy
}

// DefaultParams returns a mid-size configuration: 1024 signatures, w=16,
// SHAKE256, full tree in memory.
func DefaultParams() Params {
	return Params{Depth: 10, W: 16, Hash: sponge.SHAKE256, Strategy: StrategyComplete}
}

// Validate checks the configuration without deriving any key material.
func (p Params) Validate() error {
	if p.Depth < 1 || p.Depth > 31 {
		return fmt.Errorf("mss: tree depth %d out of range [1, 31]", p.Depth)
	}
	if _, err := wots.NewParams(p.W, p.Hash); err != nil {
		return err
	}
	if p.Strategy != StrategyComplete && p.Strategy != StrategyTraversal {
		return fmt.Errorf("mss: unknown tree strategy %d", p.Strategy)
	}
	return nil
}

// MaxSignatures returns the leaf capacity 2^Depth.
func (p Params) MaxSignatures() uint64 {
	return 1 << uint(p.Depth)
}

// SignatureSize returns the fixed wire size of a signature under p.
func (p Params) SignatureSize() int {
	wp, err := wots.NewParams(p.W, p.Hash)
	if err != nil {
		return 0
	}
	return 4 + wp.SignatureSize() + p.Depth*wots.N
}

func (p Params) wotsParams() (wots.Params, error) {
	return wots.NewParams(p.W, p.Hash)
}

// Digest hashes a message to the fixed width the scheme signs over.
func Digest(h sponge.Hash, msg []byte) []byte {
	return h.Sum(msg)
}
