package jwtsig

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verifiable-state-chains/merklesig/mss"
	"github.com/verifiable-state-chains/merklesig/prng"
	"github.com/verifiable-state-chains/merklesig/sponge"
)

func testKey(t *testing.T) (*mss.PrivateKey, *mss.PublicKey) {
	t.Helper()
	seed := bytes.Repeat([]byte{0x77}, prng.SeedSize)
	p := mss.Params{Depth: 3, W: 16, Hash: sponge.SHAKE256, Strategy: mss.StrategyComplete}
	sk, pk, err := mss.GenerateKey(seed, p)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return sk, pk
}

func TestTokenRoundTrip(t *testing.T) {
	sk, pk := testKey(t)

	claims := jwt.RegisteredClaims{
		Subject:   "user1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(Method, claims)
	signed, err := token.SignedString(sk)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	parsed, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != Alg {
			return nil, errors.New("unexpected signing method")
		}
		return pk, nil
	}, jwt.WithValidMethods([]string{Alg}))
	if err != nil {
		t.Fatalf("ParseWithClaims: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token reported invalid")
	}
	got, err := parsed.Claims.GetSubject()
	if err != nil || got != "user1" {
		t.Fatalf("subject = %q, %v", got, err)
	}
}

func TestEachTokenConsumesOneLeaf(t *testing.T) {
	sk, _ := testKey(t)
	before := sk.NextIndex()

	token := jwt.NewWithClaims(Method, jwt.MapClaims{"n": 1})
	if _, err := token.SignedString(sk); err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if sk.NextIndex() != before+1 {
		t.Fatalf("cursor moved from %d to %d, want +1", before, sk.NextIndex())
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	sk, pk := testKey(t)

	token := jwt.NewWithClaims(Method, jwt.MapClaims{"role": "user"})
	signed, err := token.SignedString(sk)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	// Flip one byte inside the signature segment.
	raw := []byte(signed)
	raw[len(raw)-2] ^= 0x01

	_, err = jwt.Parse(string(raw), func(token *jwt.Token) (interface{}, error) {
		return pk, nil
	}, jwt.WithValidMethods([]string{Alg}))
	if err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestWrongKeyTypes(t *testing.T) {
	if _, err := Method.Sign("x", "not a key"); !errors.Is(err, jwt.ErrInvalidKeyType) {
		t.Fatalf("Sign with wrong key type: %v", err)
	}
	if err := Method.Verify("x", nil, 42); !errors.Is(err, jwt.ErrInvalidKeyType) {
		t.Fatalf("Verify with wrong key type: %v", err)
	}
}

func TestExhaustedKeyStopsIssuing(t *testing.T) {
	seed := bytes.Repeat([]byte{0x09}, prng.SeedSize)
	p := mss.Params{Depth: 1, W: 16, Hash: sponge.SHAKE256, Strategy: mss.StrategyComplete}
	sk, _, err := mss.GenerateKey(seed, p)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	for i := 0; i < 2; i++ {
		token := jwt.NewWithClaims(Method, jwt.MapClaims{"i": i})
		if _, err := token.SignedString(sk); err != nil {
			t.Fatalf("SignedString %d: %v", i, err)
		}
	}

	token := jwt.NewWithClaims(Method, jwt.MapClaims{"i": 2})
	if _, err := token.SignedString(sk); !errors.Is(err, mss.ErrKeyExhausted) {
		t.Fatalf("expected ErrKeyExhausted, got %v", err)
	}
}
