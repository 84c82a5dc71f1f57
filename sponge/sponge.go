// Package sponge provides the fixed-output-length hash primitive the
// signature engine is built on. Every backend exposes the same absorb/squeeze
// surface so the chain and tree logic stays agnostic of the permutation
// underneath.
package sponge

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Size is the output width in bytes shared by all registered backends.
// Chain elements, tree nodes and message digests are all Size bytes.
const Size = 32

// Sponge is a one-way absorb/squeeze primitive with a fixed output width.
type Sponge interface {
	// Absorb feeds input into the sponge state.
	Absorb(p []byte)
	// Squeeze extracts n bytes of output. Multiple calls continue the
	// output stream.
	Squeeze(n int) []byte
	// Reset restores the sponge to its initial state.
	Reset()
}

// Hash identifies a concrete sponge backend. The zero value is SHAKE256.
type Hash uint8

const (
	// SHAKE256 is the default backend, built on the Keccak permutation.
	SHAKE256 Hash = iota
	// BLAKE2bXOF uses the BLAKE2b extendable-output mode.
	BLAKE2bXOF
)

func (h Hash) String() string {
	switch h {
	case SHAKE256:
		return "shake256"
	case BLAKE2bXOF:
		return "blake2b-xof"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(h))
	}
}

// Valid reports whether h names a registered backend.
func (h Hash) Valid() bool {
	return h == SHAKE256 || h == BLAKE2bXOF
}

// New returns a fresh sponge instance for the backend.
func (h Hash) New() Sponge {
	switch h {
	case SHAKE256:
		return &shakeSponge{state: sha3.NewShake256()}
	case BLAKE2bXOF:
		xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
		if err != nil {
			// NewXOF only fails for invalid key or size arguments;
			// both are fixed here.
			panic("sponge: blake2b init: " + err.Error())
		}
		return &blakeSponge{state: xof}
	default:
		panic("sponge: unknown hash backend " + h.String())
	}
}

// F applies the one-way chain step: absorb in, squeeze Size bytes.
func (h Hash) F(in []byte) []byte {
	s := h.New()
	s.Absorb(in)
	return s.Squeeze(Size)
}

// Node combines two child hashes into their parent, in left-right order.
func (h Hash) Node(left, right []byte) []byte {
	s := h.New()
	s.Absorb(left)
	s.Absorb(right)
	return s.Squeeze(Size)
}

// Sum absorbs msg and squeezes a Size-byte digest.
func (h Hash) Sum(msg []byte) []byte {
	return h.F(msg)
}

type shakeSponge struct {
	state sha3.ShakeHash
}

func (s *shakeSponge) Absorb(p []byte) {
	s.state.Write(p)
}

func (s *shakeSponge) Squeeze(n int) []byte {
	out := make([]byte, n)
	s.state.Read(out)
	return out
}

func (s *shakeSponge) Reset() {
	s.state.Reset()
}

type blakeSponge struct {
	state blake2b.XOF
}

func (s *blakeSponge) Absorb(p []byte) {
	s.state.Write(p)
}

func (s *blakeSponge) Squeeze(n int) []byte {
	out := make([]byte, n)
	s.state.Read(out)
	return out
}

func (s *blakeSponge) Reset() {
	s.state.Reset()
}
