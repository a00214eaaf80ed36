package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/result"
)

// PutResult stores a result, overwriting any previous entry for the same
// task id so completion retries stay idempotent.
func (s *Store) PutResult(ctx context.Context, r *result.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warrant_results (task_id, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE
		SET payload = excluded.payload,
		    created_at = excluded.created_at,
		    expires_at = excluded.expires_at`,
		r.TaskID.String(), []byte(r.Payload),
		r.CreatedAt.UnixMilli(), r.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("warrant/sqlite: put result: %w", err)
	}
	return nil
}

// GetResult retrieves a result still within retention.
func (s *Store) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload, created_at, expires_at
		FROM warrant_results
		WHERE task_id = ? AND expires_at > ?`,
		taskID.String(), time.Now().UnixMilli(),
	)

	var (
		payload   []byte
		createdMs int64
		expiresMs int64
	)
	if err := row.Scan(&payload, &createdMs, &expiresMs); err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrResultNotFound
		}
		return nil, fmt.Errorf("warrant/sqlite: get result: %w", err)
	}

	return &result.Result{
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}, nil
}
