package mss

import (
	"encoding/binary"
	"fmt"

	"github.com/verifiable-state-chains/merklesig/sponge"
	"github.com/verifiable-state-chains/merklesig/wots"
)

// Signature is one consumed leaf: its index, the one-time chain elements
// and the sibling hashes up to the root. Immutable once produced and
// verifiable with the public root alone.
type Signature struct {
	LeafIndex uint32
	Chains    [][]byte
	Path      [][]byte
}

// MarshalBinary encodes the fixed wire layout: big-endian leaf index,
// then the chain elements, then the path hashes. Total size is fixed for
// a given configuration.
func (s *Signature) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 4+(len(s.Chains)+len(s.Path))*wots.N)

	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], s.LeafIndex)
	out = append(out, idx[:]...)

	for i, c := range s.Chains {
		if len(c) != wots.N {
			return nil, fmt.Errorf("mss: chain element %d is %d bytes, want %d", i, len(c), wots.N)
		}
		out = append(out, c...)
	}
	for i, p := range s.Path {
		if len(p) != wots.N {
			return nil, fmt.Errorf("mss: path element %d is %d bytes, want %d", i, len(p), wots.N)
		}
		out = append(out, p...)
	}
	return out, nil
}

// ParseSignature decodes a signature for the given configuration. Any
// deviation from the fixed layout is rejected as ErrMalformedSignature
// before anything is hashed.
func ParseSignature(p Params, data []byte) (*Signature, error) {
	wp, err := p.wotsParams()
	if err != nil {
		return nil, err
	}
	if len(data) != p.SignatureSize() {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedSignature, len(data), p.SignatureSize())
	}

	sig := &Signature{
		LeafIndex: binary.BigEndian.Uint32(data[:4]),
		Chains:    make([][]byte, wp.Len),
		Path:      make([][]byte, p.Depth),
	}
	if uint64(sig.LeafIndex) >= p.MaxSignatures() {
		return nil, fmt.Errorf("%w: leaf index %d beyond capacity %d", ErrMalformedSignature, sig.LeafIndex, p.MaxSignatures())
	}

	off := 4
	for i := range sig.Chains {
		sig.Chains[i] = append([]byte(nil), data[off:off+wots.N]...)
		off += wots.N
	}
	for i := range sig.Path {
		sig.Path[i] = append([]byte(nil), data[off:off+wots.N]...)
		off += wots.N
	}
	return sig, nil
}

// publicKeySize is the wire size of an encoded public key: depth byte,
// log2(w) byte, hash identifier byte, root.
const publicKeySize = 3 + wots.N

// MarshalBinary encodes the public key with its configuration prefix.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	if len(pk.Root) != wots.N {
		return nil, fmt.Errorf("mss: root is %d bytes, want %d", len(pk.Root), wots.N)
	}
	logW := 0
	for 1<<uint(logW) < pk.W {
		logW++
	}
	out := make([]byte, 0, publicKeySize)
	out = append(out, byte(pk.Depth), byte(logW), byte(pk.Hash))
	out = append(out, pk.Root...)
	return out, nil
}

// ParsePublicKey decodes a public key and validates its configuration.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) != publicKeySize {
		return nil, fmt.Errorf("mss: public key is %d bytes, want %d", len(data), publicKeySize)
	}
	pk := &PublicKey{
		Depth: int(data[0]),
		W:     1 << uint(data[1]),
		Hash:  sponge.Hash(data[2]),
		Root:  append([]byte(nil), data[3:]...),
	}
	if err := pk.Params().Validate(); err != nil {
		return nil, err
	}
	return pk, nil
}
