package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/store"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS warrant_tasks (
	id               TEXT PRIMARY KEY,
	queue            TEXT NOT NULL,
	payload          BLOB,
	priority         TEXT NOT NULL,
	priority_rank    INTEGER NOT NULL,
	status           TEXT NOT NULL,
	worker_id        TEXT,
	claimed_at       INTEGER,
	lease_expires_at INTEGER,
	queued_at        INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_warrant_tasks_claim
	ON warrant_tasks (queue, priority_rank DESC, queued_at ASC);

CREATE TABLE IF NOT EXISTS warrant_results (
	task_id    TEXT PRIMARY KEY,
	payload    BLOB,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Store implements store.Backend on a SQLite database file.
type Store struct {
	db     *sql.DB
	queue  string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for per-candidate claim diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New opens (or creates) the database at path. WAL mode and a busy
// timeout are set on the DSN; connections are capped at one because
// SQLite allows a single writer anyway.
func New(ctx context.Context, path, queue string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("warrant/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warrant/sqlite: open %s: %w", path, err)
	}

	s := &Store{
		db:     db,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("warrant/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("warrant/sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Strength reports the transactional coordination level.
func (s *Store) Strength() lease.Strength { return lease.StrengthTransactional }

func isDuplicateKey(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
