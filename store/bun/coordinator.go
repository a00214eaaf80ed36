package bun

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
)

// ClaimNext issues one conditional UPDATE per candidate and wins iff the
// row was actually unleased when the write committed.
func (s *Store) ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	secs := lease.Clamp(leaseFor).Seconds()

	for _, taskID := range candidates {
		var m taskModel
		_, err := s.db.NewUpdate().
			Model(&m).
			Set("status = 'claimed'").
			Set("worker_id = ?", workerID).
			Set("claimed_at = NOW()").
			Set("lease_expires_at = NOW() + make_interval(secs => ?)", secs).
			Set("updated_at = NOW()").
			Where("id = ? AND queue = ?", taskID.String(), s.queue).
			Where("(status = 'pending' OR (status = 'claimed' AND lease_expires_at < NOW()))").
			Returning("claimed_at, lease_expires_at").
			Exec(ctx)
		if err != nil {
			if isNoRows(err) {
				// Leased or gone; try the next candidate.
				continue
			}
			s.logger.Warn("claim candidate failed",
				"task_id", taskID.String(), "error", err)
			continue
		}
		if m.ClaimedAt == nil || m.LeaseExpiresAt == nil {
			continue
		}

		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: m.ClaimedAt.UTC(),
			ExpiresAt: m.LeaseExpiresAt.UTC(),
		}, nil
	}

	return nil, nil
}

// Renew extends the holder's lease. Renewal never shortens a lease.
func (s *Store) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	secs := lease.Clamp(extendBy).Seconds()

	var m taskModel
	_, err := s.db.NewUpdate().
		Model(&m).
		Set("lease_expires_at = GREATEST(lease_expires_at, NOW() + make_interval(secs => ?))", secs).
		Set("updated_at = NOW()").
		Where("id = ? AND queue = ?", taskID.String(), s.queue).
		Where("status = 'claimed' AND worker_id = ? AND lease_expires_at > NOW()", workerID).
		Returning("claimed_at, lease_expires_at").
		Exec(ctx)
	if err == nil && m.ClaimedAt != nil && m.LeaseExpiresAt != nil {
		return &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: m.ClaimedAt.UTC(),
			ExpiresAt: m.LeaseExpiresAt.UTC(),
		}, nil
	}
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("warrant/bun: renew: %w", err)
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
	res, err := s.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("status = 'pending'").
		Set("worker_id = NULL").
		Set("claimed_at = NULL").
		Set("lease_expires_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ? AND queue = ?", taskID.String(), s.queue).
		Where("status = 'claimed' AND lease_expires_at > NOW()").
		Where("(? = '' OR worker_id = ?)", workerID, workerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("warrant/bun: release: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	if _, getErr := s.GetLease(ctx, taskID); getErr == nil {
		return warrant.ErrNotLeaseHolder
	}
	return nil
}

// Delete clears any lease state for the task.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	_, err := s.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("status = 'pending'").
		Set("worker_id = NULL").
		Set("claimed_at = NULL").
		Set("lease_expires_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ? AND queue = ? AND status = 'claimed'", taskID.String(), s.queue).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("warrant/bun: delete lease: %w", err)
	}
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	var m taskModel
	err := s.db.NewSelect().
		Model(&m).
		Column("worker_id", "claimed_at", "lease_expires_at").
		Where("id = ? AND queue = ?", taskID.String(), s.queue).
		Where("status = 'claimed' AND lease_expires_at > NOW()").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("warrant/bun: get lease: %w", err)
	}
	if m.WorkerID == nil || m.ClaimedAt == nil || m.LeaseExpiresAt == nil {
		return nil, warrant.ErrLeaseNotFound
	}

	return &lease.Lease{
		TaskID:    taskID,
		WorkerID:  *m.WorkerID,
		ClaimedAt: m.ClaimedAt.UTC(),
		ExpiresAt: m.LeaseExpiresAt.UTC(),
	}, nil
}
