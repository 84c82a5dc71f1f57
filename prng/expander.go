// Package prng expands a secret seed into the deterministic pseudo-random
// material the one-time chains start from. Outputs for distinct indices are
// domain-separated, so leaking material for one leaf reveals nothing about
// another.
package prng

import (
	"encoding/binary"

	"github.com/verifiable-state-chains/merklesig/sponge"
)

// SeedSize is the required length of a secret seed in bytes.
const SeedSize = 32

// Expander derives pseudo-random byte strings from a seed and an index.
type Expander struct {
	hash sponge.Hash
}

// NewExpander returns an Expander backed by the given sponge.
func NewExpander(h sponge.Hash) *Expander {
	return &Expander{hash: h}
}

// Expand returns n deterministic bytes for (seed, index). The index frames
// the derivation, never the seed length, so equal-prefix seeds of different
// lengths still diverge inside the sponge.
func (e *Expander) Expand(seed []byte, index uint64, n int) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	s := e.hash.New()
	s.Absorb(seed)
	s.Absorb(idx[:])
	return s.Squeeze(n)
}

// ChainIndex packs a leaf and chain position into a single expansion index.
// The leaf occupies the high 32 bits, so chain starts never collide across
// leaves.
func ChainIndex(leaf, chain uint32) uint64 {
	return uint64(leaf)<<32 | uint64(chain)
}
