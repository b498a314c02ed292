package state

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maine/latam_digest_bot/internal/news"
)

func TestDatasetStore_SaveLoad(t *testing.T) {
	store := NewDatasetStore(filepath.Join(t.TempDir(), "dataset.json"))

	written, err := store.Save(ctxBg, Dataset{CollectedAt: t0, RunID: "run-1", Items: []news.Item{{ID: "a", Title: "A", URL: "https://a"}}})
	if err != nil || !written {
		t.Fatalf("Save() = %v, %v", written, err)
	}

	ds, err := store.Load(ctxBg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(ds.Items) != 1 || ds.Items[0].ID != "a" || ds.RunID != "run-1" {
		t.Errorf("Load() = %+v", ds)
	}
}

func TestDatasetStore_EmptyDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	store := NewDatasetStore(path)

	if _, err := store.Save(ctxBg, Dataset{CollectedAt: t0, Items: []news.Item{{ID: "a"}}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	before, _ := os.ReadFile(path)

	written, err := store.Save(ctxBg, Dataset{CollectedAt: t0})
	if err != nil {
		t.Fatalf("Save(empty) error = %v", err)
	}
	if written {
		t.Errorf("Save(empty) reported a write")
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Errorf("empty pool overwrote dataset")
	}
}

func TestDatasetStore_Missing(t *testing.T) {
	store := NewDatasetStore(filepath.Join(t.TempDir(), "none.json"))
	if _, err := store.Load(ctxBg); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Load() error = %v, want ErrNoDataset", err)
	}
}
