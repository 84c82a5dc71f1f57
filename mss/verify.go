package mss

import (
	"bytes"

	"github.com/verifiable-state-chains/merklesig/merkle"
	"github.com/verifiable-state-chains/merklesig/wots"
)

// Verify checks a signature against the public root. It recovers the
// one-time public key from the signature and digest, hashes it to a leaf
// value, folds the leaf up the authentication path and compares the result
// to the root. A mismatch is an ordinary false, never an error; structural
// defects also verify false.
func Verify(pk *PublicKey, digest []byte, sig *Signature) bool {
	if pk == nil || sig == nil {
		return false
	}
	wp, err := wots.NewParams(pk.W, pk.Hash)
	if err != nil {
		return false
	}
	if len(digest) != wots.N || len(pk.Root) != wots.N {
		return false
	}
	if pk.Depth < 1 || pk.Depth > 31 {
		return false
	}
	if uint64(sig.LeafIndex) >= 1<<uint(pk.Depth) {
		return false
	}
	if len(sig.Path) != pk.Depth {
		return false
	}
	for _, sibling := range sig.Path {
		if len(sibling) != wots.N {
			return false
		}
	}

	recovered, err := wots.RecoverPublicKey(wp, sig.Chains, digest)
	if err != nil {
		return false
	}
	root := merkle.Fold(pk.Hash, recovered.Leaf(), sig.LeafIndex, sig.Path)
	return bytes.Equal(root, pk.Root)
}
