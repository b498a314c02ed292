package state

import (
	"context"
	"sync"
	"time"

	"github.com/maine/latam_digest_bot/internal/news"
)

// MemoryStore держит состояние в памяти. Используется в тестах пайплайна.
type MemoryStore struct {
	mu        sync.Mutex
	st        news.State
	retention Retention
	opts      options
	commits   int
}

// NewMemoryStore создаёт стор с начальным состоянием initial.
func NewMemoryStore(initial news.State, retention Retention, opts ...Option) *MemoryStore {
	st := initial.Clone()
	return &MemoryStore{st: st, retention: retention, opts: buildOptions(opts)}
}

// Load возвращает копию текущего состояния.
func (m *MemoryStore) Load(ctx context.Context) (news.State, error) {
	if err := ctx.Err(); err != nil {
		return news.State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone(), nil
}

// Commit объединяет записи и применяет retention.
func (m *MemoryStore) Commit(ctx context.Context, seen, sent map[string]time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.clock().UTC()
	merge(&m.st, seen, sent)
	m.retention.Apply(&m.st, now)
	m.st.UpdatedAt = now
	m.commits++
	return nil
}

// Prune применяет retention.
func (m *MemoryStore) Prune(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention.Apply(&m.st, now)
	return nil
}

// Commits возвращает число успешных Commit.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
