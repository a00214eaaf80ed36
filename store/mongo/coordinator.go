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
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/task"
)

// ClaimNext issues one FindOneAndUpdate per candidate; the filter only
// matches an unleased document, so the server's atomic update decides
// the winner.
func (s *Store) ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	d := lease.Clamp(leaseFor)

	for _, taskID := range candidates {
		now := time.Now().UTC()
		expiresAt := now.Add(d)

		filter := bson.M{
			"_id":   taskID.String(),
			"queue": s.queue,
			"$or": bson.A{
				bson.M{"status": string(task.StatusPending)},
				bson.M{
					"status":           string(task.StatusClaimed),
					"lease_expires_at": bson.M{"$lt": now},
				},
			},
		}
		update := bson.M{"$set": bson.M{
			"status":           string(task.StatusClaimed),
			"worker_id":        workerID,
			"claimed_at":       now,
			"lease_expires_at": expiresAt,
			"updated_at":       now,
		}}

		var doc taskDoc
		err := s.tasks.FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				// Leased or gone; try the next candidate.
				continue
			}
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}
		if doc.ClaimedAt == nil || doc.LeaseExpiresAt == nil {
			continue
		}

		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: doc.ClaimedAt.UTC(),
			ExpiresAt: doc.LeaseExpiresAt.UTC(),
		}, nil
	}

	return nil, nil
}

// Renew extends the holder's lease with $max, so renewal never shortens
// a lease.
func (s *Store) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	now := time.Now().UTC()
	next := now.Add(lease.Clamp(extendBy))

	filter := bson.M{
		"_id":              taskID.String(),
		"queue":            s.queue,
		"status":           string(task.StatusClaimed),
		"worker_id":        workerID,
		"lease_expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$max": bson.M{"lease_expires_at": next},
		"$set": bson.M{"updated_at": now},
	}

	var doc taskDoc
	err := s.tasks.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil && doc.ClaimedAt != nil && doc.LeaseExpiresAt != nil {
		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: doc.ClaimedAt.UTC(),
			ExpiresAt: doc.LeaseExpiresAt.UTC(),
		}, nil
	}
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("warrant/mongo: renew: %w", err)
	}

	// No document updated: either another worker holds the lease or
	// there is no live lease at all.
	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return nil, warrant.ErrNotLeaseHolder
	}
	return nil, warrant.ErrLeaseNotFound
}

// Release drops the lease and returns the task to pending. Releasing an
// unleased task is a no-op success; an empty workerID skips the holder
// check (administrative release).
func (s *Store) Release(ctx context.Context, taskID id.TaskID, workerID string) error {
	now := time.Now().UTC()

	filter := bson.M{
		"_id":              taskID.String(),
		"queue":            s.queue,
		"status":           string(task.StatusClaimed),
		"lease_expires_at": bson.M{"$gt": now},
	}
	if workerID != "" {
		filter["worker_id"] = workerID
	}
	update := bson.M{
		"$set":   bson.M{"status": string(task.StatusPending), "updated_at": now},
		"$unset": bson.M{"worker_id": "", "claimed_at": "", "lease_expires_at": ""},
	}

	res, err := s.tasks.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("warrant/mongo: release: %w", err)
	}
	if res.ModifiedCount == 1 {
		return nil
	}

	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return warrant.ErrNotLeaseHolder
	}
	return nil
}

// Delete clears any lease state for the task.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	_, err := s.tasks.UpdateOne(ctx,
		bson.M{
			"_id":    taskID.String(),
			"queue":  s.queue,
			"status": string(task.StatusClaimed),
		},
		bson.M{
			"$set":   bson.M{"status": string(task.StatusPending), "updated_at": time.Now().UTC()},
			"$unset": bson.M{"worker_id": "", "claimed_at": "", "lease_expires_at": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("warrant/mongo: delete lease: %w", err)
	}
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	var doc taskDoc
	err := s.tasks.FindOne(ctx, bson.M{
		"_id":              taskID.String(),
		"queue":            s.queue,
		"status":           string(task.StatusClaimed),
		"lease_expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, warrant.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("warrant/mongo: get lease: %w", err)
	}
	if doc.ClaimedAt == nil || doc.LeaseExpiresAt == nil {
		return nil, warrant.ErrLeaseNotFound
	}

	return &lease.Lease{
		TaskID:    taskID,
		WorkerID:  doc.WorkerID,
		ClaimedAt: doc.ClaimedAt.UTC(),
		ExpiresAt: doc.LeaseExpiresAt.UTC(),
	}, nil
}
