package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/store"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

// Store implements store.Backend on a Redis server.
type Store struct {
	client redis.UniversalClient
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

// New creates a Store over an existing Redis client. The Store takes
// ownership of the client; Close closes it.
func New(client redis.UniversalClient, queue string, opts ...Option) *Store {
	s := &Store{
		client: client,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromAddr dials addr and returns a Store over the new connection.
func NewFromAddr(ctx context.Context, addr, queue string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("warrant/redis: connect %s: %w", addr, err)
	}
	return New(client, queue, opts...), nil
}

// Migrate is a no-op: Redis needs no schema.
func (s *Store) Migrate(ctx context.Context) error { return nil }

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("warrant/redis: ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// Strength reports the optimistic coordination level.
func (s *Store) Strength() lease.Strength { return lease.StrengthOptimistic }
