package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/maine/latam_digest_bot/internal/news"
)

//go:embed schema.sql
var schema string

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteStore хранит seen/sent в SQLite. Время - unix-наносекунды UTC.
type SQLiteStore struct {
	db        *sql.DB
	retention Retention
	opts      options
}

// OpenSQLite открывает (или создаёт) базу по пути path и применяет схему.
func OpenSQLite(path string, retention Retention, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Один писатель; для :memory: это ещё и единственная копия базы.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, retention: retention, opts: buildOptions(opts)}, nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load читает всё состояние.
func (s *SQLiteStore) Load(ctx context.Context) (news.State, error) {
	st := news.NewState()

	if err := s.loadTable(ctx, "seen", st.Seen); err != nil {
		return news.State{}, err
	}
	if err := s.loadTable(ctx, "sent", st.Sent); err != nil {
		return news.State{}, err
	}

	query, args, err := sq.Select("value").From("meta").Where(sq.Eq{"key": metaUpdatedAt}).ToSql()
	if err != nil {
		return news.State{}, fmt.Errorf("build meta query: %w", err)
	}
	var updated sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return news.State{}, fmt.Errorf("load updated_at: %w", err)
	}
	if updated.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, updated.String); perr == nil {
			st.UpdatedAt = t
		}
	}
	return st, nil
}

func (s *SQLiteStore) loadTable(ctx context.Context, table string, dst map[string]time.Time) error {
	query, args, err := sq.Select("id", "at").From(table).ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", table, err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		dst[id] = time.Unix(0, at).UTC()
	}
	return rows.Err()
}

// Commit добавляет записи и применяет retention в одной транзакции.
func (s *SQLiteStore) Commit(ctx context.Context, seen, sent map[string]time.Time) error {
	now := s.opts.clock().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsert(ctx, tx, "seen", seen); err != nil {
		return err
	}
	if err := upsert(ctx, tx, "sent", sent); err != nil {
		return err
	}
	if _, err := s.applyRetention(ctx, tx, now); err != nil {
		return err
	}
	if err := touch(ctx, tx, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// Prune применяет retention на момент now.
func (s *SQLiteStore) Prune(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := s.applyRetention(ctx, tx, now)
	if err != nil {
		return err
	}
	if removed > 0 {
		if err := touch(ctx, tx, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prune: %w", err)
	}
	return nil
}

const (
	metaUpdatedAt = "updated_at"
	// upsertBatch держит число параметров запроса далеко от лимита SQLite.
	upsertBatch = 400
)

// upsert сохраняет более раннее время, если id уже есть.
func upsert(ctx context.Context, tx *sql.Tx, table string, entries map[string]time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += upsertBatch {
		end := min(start+upsertBatch, len(ids))
		ins := sq.Insert(table).Columns("id", "at").
			Suffix("ON CONFLICT(id) DO UPDATE SET at = MIN(at, excluded.at)")
		for _, id := range ids[start:end] {
			ins = ins.Values(id, entries[id].UTC().UnixNano())
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build %s upsert: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applyRetention(ctx context.Context, tx *sql.Tx, now time.Time) (int64, error) {
	r := s.retention
	var removed int64

	exec := func(del sq.DeleteBuilder) error {
		query, args, err := del.ToSql()
		if err != nil {
			return fmt.Errorf("retention: build query: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
		return nil
	}

	if r.Sent > 0 {
		if err := exec(sq.Delete("sent").Where(sq.LtOrEq{"at": now.Add(-r.Sent).UnixNano()})); err != nil {
			return 0, err
		}
	}

	seenTTL := r.Seen
	if seenTTL > 0 && seenTTL < r.SeenMin {
		seenTTL = r.SeenMin
	}
	if seenTTL > 0 {
		if err := exec(sq.Delete("seen").Where(sq.LtOrEq{"at": now.Add(-seenTTL).UnixNano()})); err != nil {
			return 0, err
		}
	}

	if r.SeenMax > 0 {
		del := sq.Delete("seen").
			Where(sq.LtOrEq{"at": now.Add(-r.SeenMin).UnixNano()}).
			Where(sq.Expr("id NOT IN (SELECT id FROM seen ORDER BY at DESC, id ASC LIMIT ?)", r.SeenMax))
		if err := exec(del); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

func touch(ctx context.Context, tx *sql.Tx, now time.Time) error {
	query, args, err := sq.Insert("meta").Columns("key", "value").
		Values(metaUpdatedAt, now.UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build meta update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update meta: %w", err)
	}
	return nil
}
