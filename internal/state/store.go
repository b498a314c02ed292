package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maine/latam_digest_bot/internal/news"
)

// ErrCorruptState возвращается, если файл состояния не читается. Файл при этом не перезаписывается.
var ErrCorruptState = errors.New("state is corrupt")

// Option настраивает хранилище.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock подменяет источник времени для UpdatedAt.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FileStore хранит состояние в JSON-файле.
type FileStore struct {
	path      string
	retention Retention
	opts      options
}

// NewFileStore создаёт новый файловый стор.
func NewFileStore(path string, retention Retention, opts ...Option) *FileStore {
	return &FileStore{path: path, retention: retention, opts: buildOptions(opts)}
}

// Load читает состояние из файла. Отсутствующий файл - пустое состояние.
func (s *FileStore) Load(ctx context.Context) (news.State, error) {
	if err := ctx.Err(); err != nil {
		return news.State{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return news.NewState(), nil
		}
		return news.State{}, fmt.Errorf("read state file: %w", err)
	}

	var st news.State
	if err := json.Unmarshal(data, &st); err != nil {
		brokenPath := s.saveBrokenCopy(data)
		return news.State{}, fmt.Errorf("%w: %s (copy saved to %s): %v", ErrCorruptState, s.path, brokenPath, err)
	}
	if st.Seen == nil {
		st.Seen = make(map[string]time.Time)
	}
	if st.Sent == nil {
		st.Sent = make(map[string]time.Time)
	}
	return st, nil
}

// saveBrokenCopy сохраняет копию повреждённого файла для диагностики.
// Имя содержит время загрузки, существующие копии не перезаписываются.
func (s *FileStore) saveBrokenCopy(data []byte) string {
	brokenPath := s.path + ".broken-" + s.opts.clock().UTC().Format("20060102T150405Z")
	f, err := os.OpenFile(brokenPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return brokenPath
	}
	defer f.Close()
	_, _ = f.Write(data)
	return brokenPath
}

// Commit перечитывает файл, объединяет записи, применяет retention и атомарно сохраняет.
func (s *FileStore) Commit(ctx context.Context, seen, sent map[string]time.Time) error {
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	now := s.opts.clock().UTC()
	merge(&st, seen, sent)
	s.retention.Apply(&st, now)
	st.UpdatedAt = now
	return s.save(st)
}

// Prune применяет retention на момент now без добавления записей.
func (s *FileStore) Prune(ctx context.Context, now time.Time) error {
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if s.retention.Apply(&st, now) == 0 {
		return nil
	}
	st.UpdatedAt = now.UTC()
	return s.save(st)
}

func (s *FileStore) save(st news.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// writeFileAtomic пишет данные во временный файл в той же директории, делает fsync и переименовывает.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
