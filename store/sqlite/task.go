package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/task"
)

// PutTask inserts a task body. The id must not already exist.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warrant_tasks
			(id, queue, payload, priority, priority_rank, status, queued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), s.queue, []byte(t.Payload),
		string(t.Priority), t.Priority.Rank(), string(t.Status),
		t.QueuedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return warrant.ErrTaskExists
		}
		return fmt.Errorf("warrant/sqlite: put task: %w", err)
	}
	return nil
}

// GetTask fetches a task body by id.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payload, priority, status, queued_at, updated_at
		FROM warrant_tasks
		WHERE id = ? AND queue = ?`,
		taskID.String(), s.queue,
	)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrTaskNotFound
		}
		return nil, fmt.Errorf("warrant/sqlite: get task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task row. Deleting an absent task is a no-op.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM warrant_tasks WHERE id = ? AND queue = ?`,
		taskID.String(), s.queue,
	)
	if err != nil {
		return fmt.Errorf("warrant/sqlite: delete task: %w", err)
	}
	return nil
}

// ListTasks returns all outstanding tasks in candidate order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, priority, status, queued_at, updated_at
		FROM warrant_tasks
		WHERE queue = ?
		ORDER BY priority_rank DESC, queued_at ASC`,
		s.queue,
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("warrant/sqlite: list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warrant/sqlite: list tasks: %w", err)
	}
	return tasks, nil
}

// IndexAdd is a no-op: the tasks table is its own index.
func (s *Store) IndexAdd(ctx context.Context, t *task.Task) error { return nil }

// IndexRemove is a no-op for the same reason.
func (s *Store) IndexRemove(ctx context.Context, taskID id.TaskID) error { return nil }

// IndexList returns claimable candidate ids ordered by priority then age.
// Expired leases are treated as claimable.
func (s *Store) IndexList(ctx context.Context, limit int) ([]id.TaskID, error) {
	nowMs := time.Now().UnixMilli()
	lim := int64(-1) // SQLite treats a negative LIMIT as unbounded
	if limit > 0 {
		lim = int64(limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM warrant_tasks
		WHERE queue = ?
		  AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < ?))
		ORDER BY priority_rank DESC, queued_at ASC
		LIMIT ?`,
		s.queue, nowMs, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/sqlite: index list: %w", err)
	}
	defer rows.Close()

	var ids []id.TaskID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("warrant/sqlite: index list: %w", err)
		}
		taskID, err := id.ParseTaskID(raw)
		if err != nil {
			continue
		}
		ids = append(ids, taskID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warrant/sqlite: index list: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		rawID     string
		payload   []byte
		priority  string
		status    string
		queuedMs  int64
		updatedMs int64
	)
	if err := row.Scan(&rawID, &payload, &priority, &status, &queuedMs, &updatedMs); err != nil {
		return nil, err
	}
	taskID, err := id.ParseTaskID(rawID)
	if err != nil {
		return nil, err
	}
	return &task.Task{
		ID:        taskID,
		Payload:   payload,
		Priority:  task.Priority(priority),
		Status:    task.Status(status),
		QueuedAt:  time.UnixMilli(queuedMs).UTC(),
		UpdatedAt: time.UnixMilli(updatedMs).UTC(),
	}, nil
}

var _ rowScanner = (*sql.Row)(nil)
