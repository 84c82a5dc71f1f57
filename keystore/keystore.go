// Package keystore persists signer state in bbolt so the one-time leaf
// cursor survives restarts. A stateful scheme lives or dies on this: losing
// the cursor means reusing a leaf, so every sign advances the stored index
// transactionally before the signature is released.
package keystore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/verifiable-state-chains/merklesig/mss"
	"github.com/verifiable-state-chains/merklesig/prng"
	"github.com/verifiable-state-chains/merklesig/sponge"
)

const keyBucket = "mss_keys"

var (
	// ErrKeyNotFound means no key is stored under the requested ID.
	ErrKeyNotFound = errors.New("keystore: key not found")
	// ErrKeyExists means a key is already stored under the requested ID.
	ErrKeyExists = errors.New("keystore: key already exists")
)

// Record is the JSON envelope stored per key. The seed never leaves the
// store; callers only ever see public keys and signatures.
type Record struct {
	KeyID     string    `json:"key_id"`
	Seed      []byte    `json:"seed"`
	Depth     int       `json:"depth"`
	W         int       `json:"w"`
	Hash      uint8     `json:"hash"`
	Strategy  uint8     `json:"strategy"`
	NextIndex uint32    `json:"next_index"`
	Root      []byte    `json:"root"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Record) params() mss.Params {
	return mss.Params{
		Depth:    r.Depth,
		W:        r.W,
		Hash:     sponge.Hash(r.Hash),
		Strategy: mss.Strategy(r.Strategy),
	}
}

// Store manages named MSS keys in a single bbolt database. Signing is
// serialized per store; the cursor in the database is the source of truth.
type Store struct {
	db  *bbolt.DB
	log *zap.Logger

	mu      sync.Mutex
	signers map[string]*mss.PrivateKey
}

// Open creates or opens a key database at path. A nil logger disables
// logging.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("keystore: create db directory: %v", err)
		}
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: open database: %v", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(keyBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore: create bucket: %v", err)
	}

	return &Store{
		db:      db,
		log:     logger,
		signers: make(map[string]*mss.PrivateKey),
	}, nil
}

// Generate creates a new key under keyID from a fresh random seed and
// returns its public key.
func (s *Store) Generate(keyID string, p mss.Params) (*mss.PublicKey, error) {
	seed := make([]byte, prng.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("keystore: seed generation: %v", err)
	}
	return s.Import(keyID, seed, p)
}

// Import stores a key derived from a caller-provided seed, as when moving a
// key between stores. Fails if keyID is taken.
func (s *Store) Import(keyID string, seed []byte, p mss.Params) (*mss.PublicKey, error) {
	if keyID == "" {
		return nil, errors.New("keystore: empty key ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sk, pk, err := mss.RestoreKey(seed, p, 0)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		KeyID:     keyID,
		Seed:      append([]byte(nil), seed...),
		Depth:     p.Depth,
		W:         p.W,
		Hash:      uint8(p.Hash),
		Strategy:  uint8(p.Strategy),
		NextIndex: 0,
		Root:      pk.Root,
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(keyBucket))
		if b.Get([]byte(keyID)) != nil {
			return ErrKeyExists
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("keystore: encode record: %v", err)
		}
		return b.Put([]byte(keyID), data)
	})
	if err != nil {
		return nil, err
	}

	s.signers[keyID] = sk
	s.log.Info("key stored",
		zap.String("key_id", keyID),
		zap.Int("depth", p.Depth),
		zap.Uint64("capacity", p.MaxSignatures()),
		zap.String("strategy", p.Strategy.String()))
	return pk, nil
}

// Sign signs a digest with the next leaf of the named key. The new cursor
// is committed to the database before the signature is returned; if the
// commit fails the signature is withheld and the in-memory signer is
// discarded, so the burned leaf is never revealed.
func (s *Store) Sign(keyID string, digest []byte) (*mss.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, err := s.signerLocked(keyID)
	if err != nil {
		return nil, err
	}

	sig, err := sk.Sign(digest)
	if err != nil {
		if errors.Is(err, mss.ErrKeyExhausted) {
			s.log.Warn("key exhausted", zap.String("key_id", keyID))
		}
		return nil, err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, keyID)
		if err != nil {
			return err
		}
		if rec.NextIndex != sig.LeafIndex {
			return fmt.Errorf("keystore: stored cursor %d does not match signed leaf %d", rec.NextIndex, sig.LeafIndex)
		}
		rec.NextIndex = sig.LeafIndex + 1
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("keystore: encode record: %v", err)
		}
		return tx.Bucket([]byte(keyBucket)).Put([]byte(keyID), data)
	})
	if err != nil {
		// The in-memory cursor advanced but the database did not.
		// Dropping the signer forces a rebuild from the durable cursor;
		// the unreleased leaf is safe to reuse because its chains were
		// never exposed.
		delete(s.signers, keyID)
		return nil, err
	}

	s.log.Debug("signed",
		zap.String("key_id", keyID),
		zap.Uint32("leaf_index", sig.LeafIndex))
	return sig, nil
}

// PublicKey returns the public key of a stored key.
func (s *Store) PublicKey(keyID string) (*mss.PublicKey, error) {
	rec, err := s.record(keyID)
	if err != nil {
		return nil, err
	}
	return &mss.PublicKey{
		Root:  rec.Root,
		Depth: rec.Depth,
		W:     rec.W,
		Hash:  sponge.Hash(rec.Hash),
	}, nil
}

// Remaining returns how many signatures the named key can still issue.
func (s *Store) Remaining(keyID string) (uint64, error) {
	rec, err := s.record(keyID)
	if err != nil {
		return 0, err
	}
	return rec.params().MaxSignatures() - uint64(rec.NextIndex), nil
}

// List returns the IDs of all stored keys.
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(keyBucket)).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a key and its signer state. The key can never sign again.
func (s *Store) Delete(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(keyBucket))
		if b.Get([]byte(keyID)) == nil {
			return ErrKeyNotFound
		}
		return b.Delete([]byte(keyID))
	})
	if err != nil {
		return err
	}
	delete(s.signers, keyID)
	s.log.Info("key deleted", zap.String("key_id", keyID))
	return nil
}

// Close releases the database. Live signer state is dropped; reopening
// restores every key at its durable cursor.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signers = make(map[string]*mss.PrivateKey)
	return s.db.Close()
}

// signerLocked returns the cached signer for keyID, rebuilding it from the
// stored record if needed. Caller holds s.mu.
func (s *Store) signerLocked(keyID string) (*mss.PrivateKey, error) {
	if sk, ok := s.signers[keyID]; ok {
		return sk, nil
	}
	rec, err := s.record(keyID)
	if err != nil {
		return nil, err
	}
	sk, _, err := mss.RestoreKey(rec.Seed, rec.params(), rec.NextIndex)
	if err != nil {
		return nil, fmt.Errorf("keystore: restore key %q: %w", keyID, err)
	}
	s.signers[keyID] = sk
	s.log.Info("signer restored",
		zap.String("key_id", keyID),
		zap.Uint32("next_index", rec.NextIndex))
	return sk, nil
}

func (s *Store) record(keyID string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, keyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func getRecord(tx *bbolt.Tx, keyID string) (*Record, error) {
	data := tx.Bucket([]byte(keyBucket)).Get([]byte(keyID))
	if data == nil {
		return nil, ErrKeyNotFound
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("keystore: decode record: %v", err)
	}
	return rec, nil
}
