package bun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/store"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

// Store implements store.Backend on PostgreSQL via bun.
type Store struct {
	db     *bun.DB
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

// New connects to PostgreSQL with the given DSN and returns a Store.
func New(ctx context.Context, dsn, queue string, opts ...Option) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warrant/bun: connect: %w", err)
	}

	return NewFromDB(db, queue, opts...), nil
}

// NewFromDB wraps an existing bun.DB. The Store takes ownership; Close
// closes it.
func NewFromDB(db *bun.DB, queue string, opts ...Option) *Store {
	s := &Store{
		db:     db,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*taskModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("warrant/bun: migrate tasks: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*taskModel)(nil)).
		Index("idx_warrant_tasks_claim").
		IfNotExists().
		ColumnExpr("queue, priority_rank DESC, queued_at ASC").
		Exec(ctx); err != nil {
		return fmt.Errorf("warrant/bun: migrate claim index: %w", err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*resultModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("warrant/bun: migrate results: %w", err)
	}
	return nil
}

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("warrant/bun: ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Strength reports the transactional coordination level.
func (s *Store) Strength() lease.Strength { return lease.StrengthTransactional }

func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
