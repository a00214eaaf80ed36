package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
)

// ClaimNext issues one conditional UPDATE per candidate; the row matches
// only while unleased, so the database decides the winner.
func (s *Store) ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	d := lease.Clamp(leaseFor)

	for _, taskID := range candidates {
		now := time.Now().UTC()
		claimedMs := now.UnixMilli()
		expiresMs := now.Add(d).UnixMilli()

		res, err := s.db.ExecContext(ctx, `
			UPDATE warrant_tasks
			SET status = 'claimed',
			    worker_id = ?,
			    claimed_at = ?,
			    lease_expires_at = ?,
			    updated_at = ?
			WHERE id = ? AND queue = ?
			  AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < ?))`,
			workerID, claimedMs, expiresMs, claimedMs,
			taskID.String(), s.queue, claimedMs,
		)
		if err != nil {
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}
		if n == 0 {
			// Leased or gone; try the next candidate.
			continue
		}

		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: time.UnixMilli(claimedMs).UTC(),
			ExpiresAt: time.UnixMilli(expiresMs).UTC(),
		}, nil
	}

	return nil, nil
}

// Renew extends the holder's lease. Renewal never shortens a lease.
func (s *Store) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	nowMs := time.Now().UnixMilli()
	nextMs := time.Now().Add(lease.Clamp(extendBy)).UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		UPDATE warrant_tasks
		SET lease_expires_at = MAX(lease_expires_at, ?),
		    updated_at = ?
		WHERE id = ? AND queue = ?
		  AND status = 'claimed' AND worker_id = ? AND lease_expires_at > ?`,
		nextMs, nowMs, taskID.String(), s.queue, workerID, nowMs,
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/sqlite: renew: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("warrant/sqlite: renew: %w", err)
	}
	if n == 1 {
		return s.GetLease(ctx, taskID)
	}

	// No row updated: either another worker holds the lease or there is
	// no live lease at all.
	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return nil, warrant.ErrNotLeaseHolder
	}
	return nil, warrant.ErrLeaseNotFound
}

// Release drops the lease and returns the task to pending. Releasing an
// unleased task is a no-op success; an empty workerID skips the holder
// check (administrative release).
func (s *Store) Release(ctx context.Context, taskID id.TaskID, workerID string) error {
	nowMs := time.Now().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		UPDATE warrant_tasks
		SET status = 'pending', worker_id = NULL, claimed_at = NULL,
		    lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND queue = ?
		  AND status = 'claimed' AND lease_expires_at > ?
		  AND (? = '' OR worker_id = ?)`,
		nowMs, taskID.String(), s.queue, nowMs, workerID, workerID,
	)
	if err != nil {
		return fmt.Errorf("warrant/sqlite: release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("warrant/sqlite: release: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return warrant.ErrNotLeaseHolder
	}
	return nil
}

// Delete clears any lease state for the task.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE warrant_tasks
		SET status = 'pending', worker_id = NULL, claimed_at = NULL,
		    lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND queue = ? AND status = 'claimed'`,
		time.Now().UnixMilli(), taskID.String(), s.queue,
	)
	if err != nil {
		return fmt.Errorf("warrant/sqlite: delete lease: %w", err)
	}
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, claimed_at, lease_expires_at
		FROM warrant_tasks
		WHERE id = ? AND queue = ?
		  AND status = 'claimed' AND lease_expires_at > ?`,
		taskID.String(), s.queue, time.Now().UnixMilli(),
	)

	var (
		workerID  string
		claimedMs int64
		expiresMs int64
	)
	if err := row.Scan(&workerID, &claimedMs, &expiresMs); err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("warrant/sqlite: get lease: %w", err)
	}

	return &lease.Lease{
		TaskID:    taskID,
		WorkerID:  workerID,
		ClaimedAt: time.UnixMilli(claimedMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}, nil
}
