package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/store"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

const (
	defaultDatabase   = "warrant"
	tasksCollection   = "tasks"
	resultsCollection = "results"
)

// Store implements store.Backend on a MongoDB deployment.
type Store struct {
	client  *mongo.Client
	tasks   *mongo.Collection
	results *mongo.Collection
	queue   string
	logger  *slog.Logger
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

// WithDatabase overrides the database name (default "warrant").
func WithDatabase(name string) Option {
	return func(s *Store) {
		if name != "" {
			db := s.client.Database(name)
			s.tasks = db.Collection(tasksCollection)
			s.results = db.Collection(resultsCollection)
		}
	}
}

// New connects to MongoDB at uri and returns a Store.
func New(ctx context.Context, uri, queue string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("warrant/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("warrant/mongo: connect: %w", err)
	}

	db := client.Database(defaultDatabase)
	s := &Store{
		client:  client,
		tasks:   db.Collection(tasksCollection),
		results: db.Collection(resultsCollection),
		queue:   queue,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates the candidate-ordering index and the result TTL index.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "priority_rank", Value: -1},
			{Key: "queued_at", Value: 1},
		},
		Options: options.Index().SetName("claim_order"),
	})
	if err != nil {
		return fmt.Errorf("warrant/mongo: migrate tasks: %w", err)
	}

	_, err = s.results.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().
			SetName("result_ttl").
			SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("warrant/mongo: migrate results: %w", err)
	}
	return nil
}

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("warrant/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Strength reports the transactional coordination level.
func (s *Store) Strength() lease.Strength { return lease.StrengthTransactional }
