package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/result"
)

type resultDoc struct {
	TaskID    string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// PutResult upserts a result so completion retries stay idempotent. The
// TTL index on expires_at reaps it after retention.
func (s *Store) PutResult(ctx context.Context, r *result.Result) error {
	doc := resultDoc{
		TaskID:    r.TaskID.String(),
		Payload:   []byte(r.Payload),
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
	_, err := s.results.ReplaceOne(ctx,
		bson.M{"_id": doc.TaskID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("warrant/mongo: put result: %w", err)
	}
	return nil
}

// GetResult retrieves a result still within retention. The expires_at
// filter covers the window between logical expiry and the TTL monitor's
// sweep.
func (s *Store) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	var doc resultDoc
	err := s.results.FindOne(ctx, bson.M{
		"_id":        taskID.String(),
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, warrant.ErrResultNotFound
		}
		return nil, fmt.Errorf("warrant/mongo: get result: %w", err)
	}

	return &result.Result{
		TaskID:    taskID,
		Payload:   doc.Payload,
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, nil
}
