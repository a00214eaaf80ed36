package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/task"
)

// ClaimNext attempts an optimistic claim. For each candidate it skips ids
// whose lease marker still exists, then writes a nonce-bearing lease with
// the lease duration as its TTL and reads it back: the claim is won only
// when the read-back nonce is its own.
//
// Two claimers racing the same id inside the write/read-back window can
// both observe their own nonce if the second write lands after the first
// read-back. The window is two round trips wide; this backend trades that
// residual risk for availability and is surfaced to callers as
// StrengthOptimistic.
func (s *Store) ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	d := lease.Clamp(leaseFor)

	for _, taskID := range candidates {
		key := leaseKey(s.queue, taskID.String())

		// Skip candidates with a live marker. The TTL on the key is the
		// lease expiry, so existence means live.
		_, err := s.client.Get(ctx, key).Result()
		if err == nil {
			continue
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}

		now := time.Now().UTC()
		l := &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: now,
			ExpiresAt: now.Add(d),
			Nonce:     uuid.NewString(),
		}
		data, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("warrant/redis: claim: %w", err)
		}

		if err := s.client.Set(ctx, key, data, d).Err(); err != nil {
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}

		// Read back and verify the nonce survived. Losing here means a
		// concurrent claimer overwrote us between write and read.
		got, err := s.readLease(ctx, key)
		if err != nil || got == nil || got.Nonce != l.Nonce {
			continue
		}

		s.markClaimed(ctx, taskID)
		return l, nil
	}

	return nil, nil
}

// Renew extends the holder's lease. Renewal never shortens a lease.
func (s *Store) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	key := leaseKey(s.queue, taskID.String())

	cur, err := s.readLease(ctx, key)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, warrant.ErrLeaseNotFound
	}
	if cur.WorkerID != workerID {
		return nil, warrant.ErrNotLeaseHolder
	}

	now := time.Now().UTC()
	next := now.Add(lease.Clamp(extendBy))
	if next.After(cur.ExpiresAt) {
		cur.ExpiresAt = next
	}
	cur.Nonce = uuid.NewString()

	data, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: renew: %w", err)
	}
	if err := s.client.Set(ctx, key, data, cur.ExpiresAt.Sub(now)).Err(); err != nil {
		return nil, fmt.Errorf("warrant/redis: renew: %w", err)
	}

	// Verify the write held. A mismatch means the lease was reclaimed
	// underneath us, so the caller no longer holds it.
	got, err := s.readLease(ctx, key)
	if err != nil {
		return nil, err
	}
	if got == nil || got.Nonce != cur.Nonce {
		return nil, warrant.ErrNotLeaseHolder
	}
	return cur, nil
}

// Release drops the lease and returns the task to pending. Releasing an
// unleased task is a no-op success; an empty workerID skips the holder
// check (administrative release).
func (s *Store) Release(ctx context.Context, taskID id.TaskID, workerID string) error {
	key := leaseKey(s.queue, taskID.String())

	cur, err := s.readLease(ctx, key)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	if workerID != "" && cur.WorkerID != workerID {
		return warrant.ErrNotLeaseHolder
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("warrant/redis: release: %w", err)
	}
	s.markPending(ctx, taskID)
	return nil
}

// Delete removes any lease record for the task unconditionally.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	if err := s.client.Del(ctx, leaseKey(s.queue, taskID.String())).Err(); err != nil {
		return fmt.Errorf("warrant/redis: delete lease: %w", err)
	}
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	l, err := s.readLease(ctx, leaseKey(s.queue, taskID.String()))
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, warrant.ErrLeaseNotFound
	}
	return l, nil
}

// readLease fetches and decodes a lease record. A missing key returns
// (nil, nil).
func (s *Store) readLease(ctx context.Context, key string) (*lease.Lease, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("warrant/redis: get lease: %w", err)
	}
	var l lease.Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("warrant/redis: decode lease: %w", err)
	}
	return &l, nil
}

// markClaimed and markPending keep the task hash's status field in step
// with the lease marker. Best effort; the marker is authoritative.
func (s *Store) markClaimed(ctx context.Context, taskID id.TaskID) {
	err := s.client.HSet(ctx, taskKey(s.queue, taskID.String()),
		fieldStatus, string(task.StatusClaimed),
		fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		s.logger.Warn("mark claimed failed", "task_id", taskID.String(), "error", err)
	}
}

func (s *Store) markPending(ctx context.Context, taskID id.TaskID) {
	err := s.client.HSet(ctx, taskKey(s.queue, taskID.String()),
		fieldStatus, string(task.StatusPending),
		fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		s.logger.Warn("mark pending failed", "task_id", taskID.String(), "error", err)
	}
}
