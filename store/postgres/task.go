package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/task"
)

const taskColumns = `id, payload, priority, status, queued_at, updated_at`

// PutTask persists a new task in pending state.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warrant_tasks (
			id, queue, payload, priority, priority_rank, status, queued_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID.String(), s.queue, []byte(t.Payload), string(t.Priority),
		t.Priority.Rank(), string(t.Status), t.QueuedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return warrant.ErrTaskExists
		}
		return fmt.Errorf("warrant/postgres: put task: %w", err)
	}
	return nil
}

// GetTask retrieves a task body by id.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM warrant_tasks
		WHERE id = $1 AND queue = $2`,
		taskID.String(), s.queue,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrTaskNotFound
		}
		return nil, fmt.Errorf("warrant/postgres: get task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task row. Absent ids are a no-op.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM warrant_tasks WHERE id = $1 AND queue = $2`,
		taskID.String(), s.queue,
	)
	if err != nil {
		return fmt.Errorf("warrant/postgres: delete task: %w", err)
	}
	return nil
}

// ListTasks enumerates stored tasks in candidate order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM warrant_tasks
		WHERE queue = $1
		ORDER BY priority_rank DESC, queued_at ASC`,
		s.queue,
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("warrant/postgres: list tasks scan: %w", scanErr)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warrant/postgres: list tasks rows: %w", err)
	}
	return tasks, nil
}

// IndexAdd is a no-op: the tasks table is the index.
func (s *Store) IndexAdd(_ context.Context, _ *task.Task) error { return nil }

// IndexRemove is a no-op: the tasks table is the index.
func (s *Store) IndexRemove(_ context.Context, _ id.TaskID) error { return nil }

// IndexList enumerates claimable candidate ids: pending rows plus claimed
// rows whose lease has lapsed, priority rank descending then age ascending.
func (s *Store) IndexList(ctx context.Context, limit int) ([]id.TaskID, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM warrant_tasks
		WHERE queue = $1
		  AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < NOW()))
		ORDER BY priority_rank DESC, queued_at ASC
		LIMIT $2`,
		s.queue, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("warrant/postgres: list candidates: %w", err)
	}
	defer rows.Close()

	var ids []id.TaskID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("warrant/postgres: list candidates scan: %w", err)
		}
		tid, parseErr := id.ParseTaskID(raw)
		if parseErr != nil {
			continue
		}
		ids = append(ids, tid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warrant/postgres: list candidates rows: %w", err)
	}
	return ids, nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		rawID    string
		payload  []byte
		priority string
		status   string
		queued   time.Time
		updated  time.Time
	)
	if err := row.Scan(&rawID, &payload, &priority, &status, &queued, &updated); err != nil {
		return nil, err
	}

	tid, err := id.ParseTaskID(rawID)
	if err != nil {
		return nil, err
	}

	return &task.Task{
		ID:        tid,
		Payload:   payload,
		Priority:  task.Priority(priority),
		Status:    task.Status(status),
		QueuedAt:  queued,
		UpdatedAt: updated,
	}, nil
}
