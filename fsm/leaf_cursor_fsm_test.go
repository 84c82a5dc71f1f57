package fsm

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
)

func commitEntry(t *testing.T, f *LeafCursorFSM, keyID string, index uint64, root string) *ApplyResult {
	t.Helper()
	data, err := json.Marshal(&CursorCommitment{KeyID: keyID, Index: index, Root: root})
	if err != nil {
		t.Fatalf("marshal commitment: %v", err)
	}
	result := f.Apply(&raft.Log{Type: raft.LogCommand, Index: 1, Term: 1, Data: data})
	applied, ok := result.(*ApplyResult)
	if !ok {
		t.Fatalf("Apply returned %T, want *ApplyResult", result)
	}
	return applied
}

const testRoot = "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"

func TestApplyAdvancesCursor(t *testing.T) {
	f := NewLeafCursorFSM(nil)

	for i := uint64(0); i < 4; i++ {
		res := commitEntry(t, f, "key1", i, testRoot)
		if !res.Accepted {
			t.Fatalf("commitment %d rejected: %s", i, res.Err)
		}
	}

	last, ok := f.LastIndex("key1")
	if !ok || last != 3 {
		t.Fatalf("LastIndex = %d, %v; want 3, true", last, ok)
	}
}

func TestApplyRejectsReuse(t *testing.T) {
	f := NewLeafCursorFSM(nil)
	commitEntry(t, f, "key1", 5, testRoot)

	for _, idx := range []uint64{5, 4, 0} {
		res := commitEntry(t, f, "key1", idx, testRoot)
		if res.Accepted {
			t.Fatalf("index %d accepted after 5 was committed", idx)
		}
	}

	last, _ := f.LastIndex("key1")
	if last != 5 {
		t.Fatalf("rejected commitments moved the cursor to %d", last)
	}
}

func TestApplyRejectsRootDrift(t *testing.T) {
	f := NewLeafCursorFSM(nil)
	commitEntry(t, f, "key1", 0, testRoot)

	otherRoot := "00" + testRoot[2:]
	res := commitEntry(t, f, "key1", 1, otherRoot)
	if res.Accepted {
		t.Fatal("commitment with a different root was accepted")
	}
}

func TestApplyRejectsGarbage(t *testing.T) {
	f := NewLeafCursorFSM(nil)

	res := f.Apply(&raft.Log{Type: raft.LogCommand, Data: []byte("not json")})
	if applied := res.(*ApplyResult); applied.Accepted {
		t.Fatal("garbage entry accepted")
	}

	res2 := commitEntry(t, f, "", 0, testRoot)
	if res2.Accepted {
		t.Fatal("empty key ID accepted")
	}
	res3 := commitEntry(t, f, "key1", 0, "zz")
	if res3.Accepted {
		t.Fatal("non-hex root accepted")
	}
}

func TestApplyIgnoresNonCommands(t *testing.T) {
	f := NewLeafCursorFSM(nil)
	if res := f.Apply(&raft.Log{Type: raft.LogConfiguration}); res != nil {
		t.Fatalf("non-command log produced result %v", res)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	f := NewLeafCursorFSM(nil)
	commitEntry(t, f, "a", 10, testRoot)
	commitEntry(t, f, "b", 2, testRoot)

	all := f.All()
	if all["a"] != 10 || all["b"] != 2 {
		t.Fatalf("All = %v", all)
	}
}

type memorySink struct {
	bytes.Buffer
	canceled bool
}

func (s *memorySink) ID() string    { return "memory" }
func (s *memorySink) Cancel() error { s.canceled = true; return nil }
func (s *memorySink) Close() error  { return nil }

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := NewLeafCursorFSM(nil)
	commitEntry(t, f, "a", 7, testRoot)
	commitEntry(t, f, "b", 3, testRoot)

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	sink := &memorySink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	snap.Release()

	restored := NewLeafCursorFSM(nil)
	if err := restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	last, ok := restored.LastIndex("a")
	if !ok || last != 7 {
		t.Fatalf("restored LastIndex(a) = %d, %v; want 7, true", last, ok)
	}
	root, ok := restored.Root("b")
	if !ok || root != testRoot {
		t.Fatalf("restored Root(b) = %q, %v", root, ok)
	}

	// The restored FSM keeps enforcing monotonicity.
	if res := commitEntry(t, restored, "a", 7, testRoot); res.Accepted {
		t.Fatal("restored FSM accepted a replayed index")
	}
}
