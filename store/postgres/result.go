package postgres

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warrant_results (task_id, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at`,
		r.TaskID.String(), []byte(r.Payload), r.CreatedAt, r.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("warrant/postgres: put result: %w", err)
	}
	return nil
}

// GetResult retrieves a result still within retention.
func (s *Store) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT payload, created_at, expires_at
		FROM warrant_results
		WHERE task_id = $1 AND expires_at > NOW()`,
		taskID.String(),
	)

	var (
		payload   []byte
		createdAt time.Time
		expiresAt time.Time
	)
	if err := row.Scan(&payload, &createdAt, &expiresAt); err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrResultNotFound
		}
		return nil, fmt.Errorf("warrant/postgres: get result: %w", err)
	}

	return &result.Result{
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}
