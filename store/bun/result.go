package bun

import (
	"context"
	"fmt"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/result"
)

// PutResult stores a result, overwriting any previous entry for the same
// task id so completion retries stay idempotent.
func (s *Store) PutResult(ctx context.Context, r *result.Result) error {
	m := &resultModel{
		TaskID:    r.TaskID.String(),
		Payload:   []byte(r.Payload),
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (task_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("created_at = EXCLUDED.created_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("warrant/bun: put result: %w", err)
	}
	return nil
}

// GetResult retrieves a result still within retention.
func (s *Store) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	var m resultModel
	err := s.db.NewSelect().
		Model(&m).
		Where("task_id = ? AND expires_at > NOW()", taskID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrResultNotFound
		}
		return nil, fmt.Errorf("warrant/bun: get result: %w", err)
	}

	return &result.Result{
		TaskID:    taskID,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
	}, nil
}
