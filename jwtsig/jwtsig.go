// Package jwtsig exposes the signature engine as a JWT signing method, so
// tokens can carry hash-based signatures instead of HMAC or ECDSA. The
// stateful nature of the key carries over: each issued token consumes one
// leaf, and an exhausted key stops issuing.
package jwtsig

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verifiable-state-chains/merklesig/mss"
)

// Alg is the algorithm name carried in the JWT header.
const Alg = "MSS"

// SigningMethodMSS signs with an *mss.PrivateKey and verifies with an
// *mss.PublicKey.
type SigningMethodMSS struct{}

// Method is the shared instance, registered with the jwt package under Alg.
var Method = &SigningMethodMSS{}

func init() {
	jwt.RegisterSigningMethod(Alg, func() jwt.SigningMethod {
		return Method
	})
}

// Alg returns the algorithm identifier.
func (m *SigningMethodMSS) Alg() string {
	return Alg
}

// Sign consumes the key's next leaf to sign the token's signing string.
func (m *SigningMethodMSS) Sign(signingString string, key interface{}) ([]byte, error) {
	sk, ok := key.(*mss.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	digest := mss.Digest(sk.Params().Hash, []byte(signingString))
	sig, err := sk.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("jwtsig: %w", err)
	}
	return sig.MarshalBinary()
}

// Verify checks the token signature against the public root.
func (m *SigningMethodMSS) Verify(signingString string, sig []byte, key interface{}) error {
	pk, ok := key.(*mss.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	parsed, err := mss.ParseSignature(pk.Params(), sig)
	if err != nil {
		return jwt.ErrSignatureInvalid
	}
	digest := mss.Digest(pk.Hash, []byte(signingString))
	if !mss.Verify(pk, digest, parsed) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
