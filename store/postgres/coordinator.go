package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
)

// ClaimNext issues one conditional UPDATE per candidate and wins iff the
// row was actually unleased when the write committed. The database clock
// is authoritative for lease expiry so multiple replicas agree.
func (s *Store) ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	secs := lease.Clamp(leaseFor).Seconds()

	for _, taskID := range candidates {
		row := s.pool.QueryRow(ctx, `
			UPDATE warrant_tasks
			SET status = 'claimed',
			    worker_id = $3,
			    claimed_at = NOW(),
			    lease_expires_at = NOW() + make_interval(secs => $4),
			    updated_at = NOW()
			WHERE id = $1 AND queue = $2
			  AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < NOW()))
			RETURNING claimed_at, lease_expires_at`,
			taskID.String(), s.queue, workerID, secs,
		)

		var claimedAt, expiresAt time.Time
		err := row.Scan(&claimedAt, &expiresAt)
		if err != nil {
			if isNoRows(err) {
				// Leased or gone; try the next candidate.
				continue
			}
			// Per-candidate backend failure: move on rather than
			// aborting the whole attempt.
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}

		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: claimedAt.UTC(),
			ExpiresAt: expiresAt.UTC(),
		}, nil
	}

	return nil, nil
}

// Renew extends the holder's lease. Renewal never shortens a lease.
func (s *Store) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	secs := lease.Clamp(extendBy).Seconds()

	row := s.pool.QueryRow(ctx, `
		UPDATE warrant_tasks
		SET lease_expires_at = GREATEST(lease_expires_at, NOW() + make_interval(secs => $4)),
		    updated_at = NOW()
		WHERE id = $1 AND queue = $2
		  AND status = 'claimed' AND worker_id = $3 AND lease_expires_at > NOW()
		RETURNING claimed_at, lease_expires_at`,
		taskID.String(), s.queue, workerID, secs,
	)

	var claimedAt, expiresAt time.Time
	err := row.Scan(&claimedAt, &expiresAt)
	if err == nil {
		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: claimedAt.UTC(),
			ExpiresAt: expiresAt.UTC(),
		}, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("warrant/postgres: renew: %w", err)
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
	tag, err := s.pool.Exec(ctx, `
		UPDATE warrant_tasks
		SET status = 'pending', worker_id = NULL, claimed_at = NULL,
		    lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND queue = $2
		  AND status = 'claimed' AND lease_expires_at > NOW()
		  AND ($3 = '' OR worker_id = $3)`,
		taskID.String(), s.queue, workerID,
	)
	if err != nil {
		return fmt.Errorf("warrant/postgres: release: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing released: only an error if someone else holds a live lease.
	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return warrant.ErrNotLeaseHolder
	}
	return nil
}

// Delete clears any lease state for the task. Used on completion (the row
// is usually already gone) and for phantom cleanup.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE warrant_tasks
		SET status = 'pending', worker_id = NULL, claimed_at = NULL,
		    lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND queue = $2 AND status = 'claimed'`,
		taskID.String(), s.queue,
	)
	if err != nil {
		return fmt.Errorf("warrant/postgres: delete lease: %w", err)
	}
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT worker_id, claimed_at, lease_expires_at
		FROM warrant_tasks
		WHERE id = $1 AND queue = $2
		  AND status = 'claimed' AND lease_expires_at > NOW()`,
		taskID.String(), s.queue,
	)

	var (
		workerID  string
		claimedAt time.Time
		expiresAt time.Time
	)
	if err := row.Scan(&workerID, &claimedAt, &expiresAt); err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("warrant/postgres: get lease: %w", err)
	}

	return &lease.Lease{
		TaskID:    taskID,
		WorkerID:  workerID,
		ClaimedAt: claimedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}
