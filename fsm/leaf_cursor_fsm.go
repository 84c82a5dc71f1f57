// Package fsm provides a replicated state machine for leaf-cursor
// commitments. Deployments running several signer replicas under one key
// must agree on which leaf was consumed last; this FSM enforces strictly
// advancing indices and a stable root per key, so a partitioned or
// restarted replica can never replay a leaf the cluster already released.
// Hosting the raft node and its transport is the embedder's concern.
package fsm

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"
)

// CursorCommitment is one replicated log entry: the key named KeyID
// consumed leaf Index under the public root Root (hex encoded).
type CursorCommitment struct {
	KeyID string `json:"key_id"`
	Index uint64 `json:"index"`
	Root  string `json:"root"`
}

// ApplyResult is returned from Apply through raft's ApplyFuture.
type ApplyResult struct {
	Accepted bool   `json:"accepted"`
	Index    uint64 `json:"index"`
	Err      string `json:"error,omitempty"`
}

type keyState struct {
	LastIndex uint64 `json:"last_index"`
	Root      string `json:"root"`
}

// LeafCursorFSM tracks the highest committed leaf index per key ID.
type LeafCursorFSM struct {
	mu   sync.RWMutex
	keys map[string]*keyState
	log  *zap.Logger
}

// NewLeafCursorFSM returns an empty FSM. A nil logger disables logging.
func NewLeafCursorFSM(logger *zap.Logger) *LeafCursorFSM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeafCursorFSM{
		keys: make(map[string]*keyState),
		log:  logger,
	}
}

// Apply applies a raft log entry. Commitments that would move a key's
// cursor backwards, repeat an index, or change its root are rejected; the
// rejection travels back to the proposer in the ApplyResult.
func (f *LeafCursorFSM) Apply(l *raft.Log) interface{} {
	if l.Type != raft.LogCommand {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var entry CursorCommitment
	if err := json.Unmarshal(l.Data, &entry); err != nil {
		return &ApplyResult{Err: fmt.Sprintf("parse cursor commitment: %v", err)}
	}
	if entry.KeyID == "" {
		return &ApplyResult{Err: "empty key ID"}
	}
	if _, err := hex.DecodeString(entry.Root); err != nil {
		return &ApplyResult{Err: fmt.Sprintf("root is not hex: %v", err)}
	}

	state, exists := f.keys[entry.KeyID]
	if exists {
		if entry.Root != state.Root {
			f.log.Warn("root drift rejected",
				zap.String("key_id", entry.KeyID),
				zap.String("committed_root", state.Root),
				zap.String("offered_root", entry.Root))
			return &ApplyResult{Err: fmt.Sprintf("root mismatch for key %s", entry.KeyID)}
		}
		if entry.Index <= state.LastIndex {
			f.log.Warn("leaf reuse rejected",
				zap.String("key_id", entry.KeyID),
				zap.Uint64("committed_index", state.LastIndex),
				zap.Uint64("offered_index", entry.Index))
			return &ApplyResult{Err: fmt.Sprintf(
				"index %d is not greater than committed index %d for key %s",
				entry.Index, state.LastIndex, entry.KeyID)}
		}
		state.LastIndex = entry.Index
	} else {
		f.keys[entry.KeyID] = &keyState{LastIndex: entry.Index, Root: entry.Root}
	}

	f.log.Debug("cursor committed",
		zap.String("key_id", entry.KeyID),
		zap.Uint64("index", entry.Index))
	return &ApplyResult{Accepted: true, Index: entry.Index}
}

// LastIndex returns the highest committed leaf index for a key.
func (f *LeafCursorFSM) LastIndex(keyID string) (uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	state, ok := f.keys[keyID]
	if !ok {
		return 0, false
	}
	return state.LastIndex, true
}

// Root returns the committed root for a key.
func (f *LeafCursorFSM) Root(keyID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	state, ok := f.keys[keyID]
	if !ok {
		return "", false
	}
	return state.Root, true
}

// All returns a copy of every key's committed cursor.
func (f *LeafCursorFSM) All() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.keys))
	for id, state := range f.keys {
		out[id] = state.LastIndex
	}
	return out
}

// Snapshot captures the cursor map for raft log compaction.
func (f *LeafCursorFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make(map[string]*keyState, len(f.keys))
	for id, state := range f.keys {
		copied := *state
		keys[id] = &copied
	}
	return &cursorSnapshot{keys: keys}, nil
}

// Restore replaces the FSM contents from a snapshot.
func (f *LeafCursorFSM) Restore(r io.ReadCloser) error {
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("fsm: read snapshot: %v", err)
	}
	keys := make(map[string]*keyState)
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("fsm: decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = keys
	f.log.Info("fsm restored from snapshot", zap.Int("keys", len(keys)))
	return nil
}

type cursorSnapshot struct {
	keys map[string]*keyState
}

func (s *cursorSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.keys)
	if err != nil {
		sink.Cancel()
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *cursorSnapshot) Release() {}
