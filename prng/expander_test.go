package prng

import (
	"bytes"
	"testing"

	"github.com/verifiable-state-chains/merklesig/sponge"
)

func TestExpandDeterministic(t *testing.T) {
	e := NewExpander(sponge.SHAKE256)
	seed := bytes.Repeat([]byte{0xA5}, SeedSize)

	a := e.Expand(seed, 7, 64)
	b := e.Expand(seed, 7, 64)
	if !bytes.Equal(a, b) {
		t.Fatal("same (seed, index) produced different output")
	}
}

func TestExpandIndexSeparation(t *testing.T) {
	e := NewExpander(sponge.SHAKE256)
	seed := bytes.Repeat([]byte{0x01}, SeedSize)

	a := e.Expand(seed, 0, 32)
	b := e.Expand(seed, 1, 32)
	if bytes.Equal(a, b) {
		t.Fatal("distinct indices produced identical output")
	}
}

func TestExpandSeedSeparation(t *testing.T) {
	e := NewExpander(sponge.SHAKE256)
	a := e.Expand(bytes.Repeat([]byte{0x00}, SeedSize), 3, 32)
	b := e.Expand(bytes.Repeat([]byte{0xFF}, SeedSize), 3, 32)
	if bytes.Equal(a, b) {
		t.Fatal("distinct seeds produced identical output")
	}
}

func TestChainIndexUnique(t *testing.T) {
	seen := make(map[uint64]struct{})
	for leaf := uint32(0); leaf < 8; leaf++ {
		for chain := uint32(0); chain < 8; chain++ {
			idx := ChainIndex(leaf, chain)
			if _, dup := seen[idx]; dup {
				t.Fatalf("ChainIndex(%d, %d) collides", leaf, chain)
			}
			seen[idx] = struct{}{}
		}
	}
	if ChainIndex(1, 0) != 1<<32 {
		t.Fatal("leaf not in high 32 bits")
	}
}
