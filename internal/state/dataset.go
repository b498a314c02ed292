package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maine/latam_digest_bot/internal/news"
)

// ErrNoDataset возвращается, если снимок ещё не собирался.
var ErrNoDataset = errors.New("dataset not found")

// Dataset - снимок собранного и классифицированного пула новостей.
type Dataset struct {
	CollectedAt time.Time   `json:"collected_at"`
	RunID       string      `json:"run_id,omitempty"`
	Items       []news.Item `json:"items"`
}

// DatasetStore хранит последний снимок пула в JSON-файле.
type DatasetStore struct {
	path string
}

// NewDatasetStore создаёт стор снимков.
func NewDatasetStore(path string) *DatasetStore {
	return &DatasetStore{path: path}
}

// Save записывает снимок. Пустой пул не перезаписывает существующий снимок;
// в этом случае возвращается false.
func (d *DatasetStore) Save(ctx context.Context, ds Dataset) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(ds.Items) == 0 {
		return false, nil
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal dataset: %w", err)
	}
	if err := writeFileAtomic(d.path, data); err != nil {
		return false, fmt.Errorf("write dataset: %w", err)
	}
	return true, nil
}

// Load читает снимок.
func (d *DatasetStore) Load(ctx context.Context) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Dataset{}, fmt.Errorf("%w: %s", ErrNoDataset, d.path)
		}
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("unmarshal dataset %s: %w", d.path, err)
	}
	return ds, nil
}
