// Package wots implements the Winternitz one-time signature over a fixed
// width message digest. Key material is derived deterministically from a
// seed and a leaf index; each key pair must sign exactly once, which the
// tree layer above enforces by consuming leaf indices atomically.
package wots

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/verifiable-state-chains/merklesig/prng"
)

// ErrInvalidDigestLength is returned when a digest does not match the
// configured width. Callers must hash or pad the message before signing.
var ErrInvalidDigestLength = errors.New("wots: digest length does not match configured width")

// PrivateKey holds the secret chain starts for one leaf.
type PrivateKey struct {
	params Params
	chains [][]byte
}

// PublicKey holds the chain ends for one leaf.
type PublicKey struct {
	params Params
	chains [][]byte
}

// GenerateKeyPair derives the one-time key pair for a leaf. The private
// chain starts come from the expander, the public chain ends from walking
// each chain W-1 steps. Deterministic for a fixed (seed, leaf).
func GenerateKeyPair(exp *prng.Expander, seed []byte, leaf uint32, p Params) (*PrivateKey, *PublicKey) {
	priv := make([][]byte, p.Len)
	pub := make([][]byte, p.Len)
	for i := 0; i < p.Len; i++ {
		priv[i] = exp.Expand(seed, prng.ChainIndex(leaf, uint32(i)), N)
		pub[i] = chainWalk(p, priv[i], p.W-1)
	}
	return &PrivateKey{params: p, chains: priv}, &PublicKey{params: p, chains: pub}
}

// Sign walks each private chain by the corresponding digest symbol. The
// result reveals intermediate chain values, which is why a chain must never
// sign twice.
func (sk *PrivateKey) Sign(digest []byte) ([][]byte, error) {
	lengths, err := sk.params.chainLengths(digest)
	if err != nil {
		return nil, err
	}
	sig := make([][]byte, sk.params.Len)
	for i, steps := range lengths {
		sig[i] = chainWalk(sk.params, sk.chains[i], int(steps))
	}
	return sig, nil
}

// RecoverPublicKey walks each signature element the remaining steps to the
// chain end. The caller compares the result (or its leaf hash) against the
// published public key; a mismatch means the signature is invalid.
func RecoverPublicKey(p Params, sig [][]byte, digest []byte) (*PublicKey, error) {
	lengths, err := p.chainLengths(digest)
	if err != nil {
		return nil, err
	}
	if len(sig) != p.Len {
		return nil, fmt.Errorf("wots: signature has %d chain elements, want %d", len(sig), p.Len)
	}
	pub := make([][]byte, p.Len)
	for i, steps := range lengths {
		if len(sig[i]) != N {
			return nil, fmt.Errorf("wots: chain element %d is %d bytes, want %d", i, len(sig[i]), N)
		}
		pub[i] = chainWalk(p, sig[i], p.W-1-int(steps))
	}
	return &PublicKey{params: p, chains: pub}, nil
}

// Leaf hashes the chain ends into the single value published as a tree leaf.
func (pk *PublicKey) Leaf() []byte {
	s := pk.params.Hash.New()
	for _, c := range pk.chains {
		s.Absorb(c)
	}
	return s.Squeeze(N)
}

// Chains returns the raw chain elements of the key.
func (pk *PublicKey) Chains() [][]byte {
	return pk.chains
}

// Chains returns the raw chain elements of the key.
func (sk *PrivateKey) Chains() [][]byte {
	return sk.chains
}

// chainWalk applies the chain hash steps times to in, leaving in untouched.
func chainWalk(p Params, in []byte, steps int) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	for i := 0; i < steps; i++ {
		out = p.Hash.F(out)
	}
	return out
}

// chainLengths splits the digest into base-W symbols and appends the
// checksum symbols. The checksum sums the distance of every digest symbol
// from the chain end, so raising any symbol forces lowering another.
func (p Params) chainLengths(digest []byte) ([]uint8, error) {
	if len(digest) != N {
		return nil, ErrInvalidDigestLength
	}

	lengths := make([]uint8, p.Len)
	toBaseW(digest, p.LogW, lengths[:p.Len1])

	csum := 0
	for _, v := range lengths[:p.Len1] {
		csum += p.W - 1 - int(v)
	}
	// Left-align the checksum so toBaseW consumes exactly Len2 symbols
	// from the top bits.
	csum <<= (8 - (p.Len2*p.LogW)%8) % 8

	csumBytes := make([]byte, (p.Len2*p.LogW+7)/8)
	putUintBE(csumBytes, uint64(csum))
	toBaseW(csumBytes, p.LogW, lengths[p.Len1:])

	return lengths, nil
}

// toBaseW splits input bytes into base-2^logW symbols, most significant
// bits first. Requires logW to divide 8.
func toBaseW(input []byte, logW int, output []uint8) {
	in := 0
	var total uint8
	bits := 0
	for out := range output {
		if bits == 0 {
			total = input[in]
			in++
			bits = 8
		}
		bits -= logW
		output[out] = (total >> bits) & uint8(1<<logW-1)
	}
}

// putUintBE writes v big-endian into the full width of buf.
func putUintBE(buf []byte, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	copy(buf, tmp[8-len(buf):])
}
