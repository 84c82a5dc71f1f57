package mss

import (
	"errors"

	"github.com/verifiable-state-chains/merklesig/wots"
)

// ErrKeyExhausted means every leaf under the key has signed. The key is
// spent for good; a fresh key must be generated. Failed calls leave the
// cursor untouched.
var ErrKeyExhausted = errors.New("mss: all one-time leaves consumed, key exhausted")

// ErrMalformedSignature means a serialized signature has the wrong element
// count or sizes. It is rejected before any hashing.
var ErrMalformedSignature = errors.New("mss: malformed signature encoding")

// ErrInvalidDigestLength mirrors the one-time layer: the digest must match
// the configured width before signing.
var ErrInvalidDigestLength = wots.ErrInvalidDigestLength
