package wots

import (
	"fmt"

	"github.com/verifiable-state-chains/merklesig/sponge"
)

// N is the width in bytes of chain elements and message digests.
const N = sponge.Size

// Params fixes the Winternitz configuration. Len1 chains cover the digest,
// Len2 chains cover the checksum; every chain is W elements long.
type Params struct {
	W    int // chain length, one of 4, 16, 256
	LogW int // bits per base-W symbol
	Len1 int // digest chains
	Len2 int // checksum chains
	Len  int // Len1 + Len2
	Hash sponge.Hash
}

// NewParams derives the chain counts for a Winternitz parameter w.
// Only w values whose symbol width divides a byte are supported, which keeps
// the base-w split of the digest byte-aligned.
func NewParams(w int, h sponge.Hash) (Params, error) {
	var logW int
	switch w {
	case 4:
		logW = 2
	case 16:
		logW = 4
	case 256:
		logW = 8
	default:
		return Params{}, fmt.Errorf("wots: unsupported winternitz parameter %d (want 4, 16 or 256)", w)
	}
	if !h.Valid() {
		return Params{}, fmt.Errorf("wots: unknown hash backend %s", h)
	}

	len1 := 8 * N / logW
	len2 := baseWDigits(len1*(w-1), w)

	return Params{
		W:    w,
		LogW: logW,
		Len1: len1,
		Len2: len2,
		Len:  len1 + len2,
		Hash: h,
	}, nil
}

// SignatureSize returns the byte length of a one-time signature.
func (p Params) SignatureSize() int {
	return p.Len * N
}

// baseWDigits returns the number of base-w digits needed to represent v.
func baseWDigits(v, w int) int {
	digits := 1
	for v >= w {
		v /= w
		digits++
	}
	return digits
}
