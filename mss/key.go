// Package mss composes the one-time signature, seed expansion and tree
// layers into a many-time signature scheme: one long-lived public key (the
// tree root) covering 2^depth one-time leaves. The signer owns the seed and
// a forward-only leaf cursor; verifiers hold only the root.
package mss

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/verifiable-state-chains/merklesig/merkle"
	"github.com/verifiable-state-chains/merklesig/prng"
	"github.com/verifiable-state-chains/merklesig/sponge"
	"github.com/verifiable-state-chains/merklesig/traversal"
	"github.com/verifiable-state-chains/merklesig/wots"
)

// State describes the signing lifecycle of a private key. Transitions run
// forward only; Exhausted is terminal.
type State uint8

const (
	StateFresh State = iota
	StateSigning
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateSigning:
		return "signing"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// PublicKey is everything a verifier needs: the tree root plus the
// configuration that fixes signature sizes.
type PublicKey struct {
	Root  []byte
	Depth int
	W     int
	Hash  sponge.Hash
}

// Params reconstructs the wire-relevant configuration of the key. The tree
// strategy is a signer-side choice and does not affect verification.
func (pk *PublicKey) Params() Params {
	return Params{Depth: pk.Depth, W: pk.W, Hash: pk.Hash, Strategy: StrategyComplete}
}

// pathSource abstracts the two tree constructions. Both produce identical
// roots and paths; only memory and scheduling differ.
type pathSource interface {
	Root() []byte
	AuthPath(leaf uint32) ([][]byte, error)
}

// PrivateKey is the signer state: seed, cursor and tree. It is safe for
// concurrent use; the cursor advances atomically with key derivation so a
// leaf can never sign twice.
type PrivateKey struct {
	mu     sync.Mutex
	seed   []byte
	params Params
	wp     wots.Params
	exp    *prng.Expander
	tree   pathSource
	next   uint32
}

// GenerateKey derives the full key pair from a seed. All leaf public keys
// are computed (in parallel for the complete strategy) and folded into the
// root that becomes the public key.
func GenerateKey(seed []byte, p Params) (*PrivateKey, *PublicKey, error) {
	return RestoreKey(seed, p, 0)
}

// RestoreKey rebuilds a signer whose cursor had already advanced to next,
// as when loading persisted key state. The tree is reconstructed from the
// seed; for the traversal strategy it is replayed to the cursor position.
func RestoreKey(seed []byte, p Params, next uint32) (*PrivateKey, *PublicKey, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if len(seed) != prng.SeedSize {
		return nil, nil, fmt.Errorf("mss: seed is %d bytes, want %d", len(seed), prng.SeedSize)
	}
	if uint64(next) > p.MaxSignatures() {
		return nil, nil, fmt.Errorf("mss: cursor %d beyond capacity %d", next, p.MaxSignatures())
	}

	wp, err := p.wotsParams()
	if err != nil {
		return nil, nil, err
	}
	exp := prng.NewExpander(p.Hash)

	sk := &PrivateKey{
		seed:   append([]byte(nil), seed...),
		params: p,
		wp:     wp,
		exp:    exp,
		next:   next,
	}

	switch p.Strategy {
	case StrategyComplete:
		leaves := deriveLeaves(exp, sk.seed, wp, int(p.MaxSignatures()))
		tree, err := merkle.Build(p.Hash, leaves)
		if err != nil {
			return nil, nil, err
		}
		sk.tree = tree
	case StrategyTraversal:
		tr, err := traversal.New(p.Hash, uint32(p.Depth), func(leaf uint32) []byte {
			return leafValue(exp, sk.seed, leaf, wp)
		})
		if err != nil {
			return nil, nil, err
		}
		for i := uint32(0); i < next; i++ {
			if _, err := tr.AuthPath(i); err != nil {
				return nil, nil, fmt.Errorf("mss: replaying traversal to cursor %d: %w", next, err)
			}
		}
		sk.tree = tr
	}

	pub := &PublicKey{
		Root:  sk.tree.Root(),
		Depth: p.Depth,
		W:     p.W,
		Hash:  p.Hash,
	}
	return sk, pub, nil
}

// Sign consumes the next leaf: derive its one-time key, sign the digest,
// fetch the authentication path and advance the cursor, all under one lock.
// Failed calls mutate nothing.
func (sk *PrivateKey) Sign(digest []byte) (*Signature, error) {
	if len(digest) != wots.N {
		return nil, ErrInvalidDigestLength
	}

	sk.mu.Lock()
	defer sk.mu.Unlock()

	if uint64(sk.next) >= sk.params.MaxSignatures() {
		return nil, ErrKeyExhausted
	}

	leaf := sk.next
	otsPriv, _ := wots.GenerateKeyPair(sk.exp, sk.seed, leaf, sk.wp)
	chains, err := otsPriv.Sign(digest)
	if err != nil {
		return nil, err
	}
	path, err := sk.tree.AuthPath(leaf)
	if err != nil {
		return nil, fmt.Errorf("mss: authentication path for leaf %d: %w", leaf, err)
	}

	sk.next = leaf + 1
	return &Signature{LeafIndex: leaf, Chains: chains, Path: path}, nil
}

// PublicKey returns the public half of the key.
func (sk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{
		Root:  sk.tree.Root(),
		Depth: sk.params.Depth,
		W:     sk.params.W,
		Hash:  sk.params.Hash,
	}
}

// Params returns the key configuration.
func (sk *PrivateKey) Params() Params {
	return sk.params
}

// NextIndex returns the leaf the next Sign call will consume.
func (sk *PrivateKey) NextIndex() uint32 {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	return sk.next
}

// Remaining returns how many signatures the key can still issue.
func (sk *PrivateKey) Remaining() uint64 {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	return sk.params.MaxSignatures() - uint64(sk.next)
}

// State reports the lifecycle position of the key.
func (sk *PrivateKey) State() State {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	switch {
	case sk.next == 0:
		return StateFresh
	case uint64(sk.next) < sk.params.MaxSignatures():
		return StateSigning
	default:
		return StateExhausted
	}
}

// Seed exposes the secret seed for persistence. Handle with care; anyone
// holding the seed holds the key.
func (sk *PrivateKey) Seed() []byte {
	return append([]byte(nil), sk.seed...)
}

// leafValue derives the one-time public key for a leaf and hashes it to
// the tree leaf value.
func leafValue(exp *prng.Expander, seed []byte, leaf uint32, wp wots.Params) []byte {
	_, pub := wots.GenerateKeyPair(exp, seed, leaf, wp)
	return pub.Leaf()
}

// deriveLeaves computes every leaf value, fanning the work across
// GOMAXPROCS workers. Leaf order in the result is canonical regardless of
// completion order, so the merge is deterministic.
func deriveLeaves(exp *prng.Expander, seed []byte, wp wots.Params, count int) [][]byte {
	leaves := make([][]byte, count)

	workers := runtime.GOMAXPROCS(0)
	if workers > count {
		workers = count
	}
	chunk := (count + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > count {
			end = count
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				leaves[i] = leafValue(exp, seed, uint32(i), wp)
			}
		}(start, end)
	}
	wg.Wait()

	return leaves
}
