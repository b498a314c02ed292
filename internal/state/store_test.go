package state

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var (
	t0           = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	defaultRet   = Retention{Sent: 48 * time.Hour, Seen: 720 * time.Hour, SeenMin: 72 * time.Hour, SeenMax: 5000}
	fixedClock   = func() time.Time { return t0 }
	ctxBg        = context.Background()
	oneID        = map[string]time.Time{"id-1": t0}
	emptyEntries = map[string]time.Time{}
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), defaultRet)

	st, err := store.Load(ctxBg)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if len(st.Seen) != 0 || len(st.Sent) != 0 {
		t.Errorf("Load() should return empty state, got %+v", st)
	}
	if st.Seen == nil || st.Sent == nil {
		t.Errorf("Load() maps should be initialized")
	}
}

func TestFileStore_CommitAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path, defaultRet, WithClock(fixedClock))

	if err := store.Commit(ctxBg, oneID, oneID); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	st, err := store.Load(ctxBg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !st.Seen["id-1"].Equal(t0) || !st.Sent["id-1"].Equal(t0) {
		t.Errorf("Load() = %+v, want id-1 in seen and sent at %v", st, t0)
	}
	if !st.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt = %v, want %v", st.UpdatedAt, t0)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestFileStore_CommitKeepsEarliest(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), defaultRet, WithClock(fixedClock))

	if err := store.Commit(ctxBg, map[string]time.Time{"a": t0}, emptyEntries); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := store.Commit(ctxBg, map[string]time.Time{"a": t0.Add(time.Hour)}, emptyEntries); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	st, _ := store.Load(ctxBg)
	if !st.Seen["a"].Equal(t0) {
		t.Errorf("later commit overwrote timestamp: %v", st.Seen["a"])
	}

	if err := store.Commit(ctxBg, map[string]time.Time{"a": t0.Add(-time.Hour)}, emptyEntries); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	st, _ = store.Load(ctxBg)
	if !st.Seen["a"].Equal(t0.Add(-time.Hour)) {
		t.Errorf("earlier timestamp not kept: %v", st.Seen["a"])
	}
}

func TestFileStore_CorruptIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	corrupted := []byte("invalid json {")
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}
	store := NewFileStore(path, defaultRet, WithClock(fixedClock))

	if _, err := store.Load(ctxBg); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Load() error = %v, want ErrCorruptState", err)
	}
	if err := store.Commit(ctxBg, oneID, oneID); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Commit() error = %v, want ErrCorruptState", err)
	}

	data, _ := os.ReadFile(path)
	if !bytes.Equal(data, corrupted) {
		t.Errorf("corrupt state file was overwritten: %q", data)
	}
	if _, err := os.Stat(path + ".broken-20250310T120000Z"); err != nil {
		t.Errorf("diagnostic copy not written: %v", err)
	}
}

func TestFileStore_CorruptCopiesAreKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	now := t0
	store := NewFileStore(path, defaultRet, WithClock(func() time.Time { return now }))

	first := []byte("first {")
	if err := os.WriteFile(path, first, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load(ctxBg); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Load() error = %v, want ErrCorruptState", err)
	}

	// повтор в ту же секунду не затирает уже сохранённую копию
	if err := os.WriteFile(path, []byte("second {"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load(ctxBg); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Load() error = %v, want ErrCorruptState", err)
	}
	now = t0.Add(time.Hour)
	if _, err := store.Load(ctxBg); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Load() error = %v, want ErrCorruptState", err)
	}

	tests := []struct {
		suffix string
		want   string
	}{
		{suffix: ".broken-20250310T120000Z", want: "first {"},
		{suffix: ".broken-20250310T130000Z", want: "second {"},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(path + tt.suffix)
		if err != nil {
			t.Fatalf("read %s: %v", tt.suffix, err)
		}
		if string(data) != tt.want {
			t.Errorf("%s = %q, want %q", tt.suffix, data, tt.want)
		}
	}
}

func TestFileStore_PruneBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, defaultRet, WithClock(fixedClock))
	if err := store.Commit(ctxBg, oneID, oneID); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := store.Prune(ctxBg, t0.Add(48*time.Hour-time.Second)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	st, _ := store.Load(ctxBg)
	if _, ok := st.Sent["id-1"]; !ok {
		t.Errorf("sent entry pruned before retention elapsed")
	}

	if err := store.Prune(ctxBg, t0.Add(48*time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	st, _ = store.Load(ctxBg)
	if _, ok := st.Sent["id-1"]; ok {
		t.Errorf("sent entry kept at exactly retention")
	}
	if _, ok := st.Seen["id-1"]; !ok {
		t.Errorf("seen entry should outlive sent")
	}
}

func TestFileStore_PruneNoChangeKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, defaultRet, WithClock(fixedClock))
	if err := store.Commit(ctxBg, oneID, oneID); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	before, _ := os.ReadFile(path)

	if err := store.Prune(ctxBg, t0.Add(time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Errorf("prune without removals rewrote the file")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(emptyState(), defaultRet, WithClock(fixedClock))

	if err := store.Commit(ctxBg, oneID, oneID); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	st, _ := store.Load(ctxBg)
	st.Seen["mutated"] = t0

	again, _ := store.Load(ctxBg)
	if _, ok := again.Seen["mutated"]; ok {
		t.Errorf("Load() should return a copy")
	}
	if store.Commits() != 1 {
		t.Errorf("Commits() = %d, want 1", store.Commits())
	}
}
