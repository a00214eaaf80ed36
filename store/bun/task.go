package bun

import (
	"context"
	"fmt"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/task"
)

// PutTask inserts a task body. The id must not already exist.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	m := &taskModel{
		ID:           t.ID.String(),
		Queue:        s.queue,
		Payload:      []byte(t.Payload),
		Priority:     string(t.Priority),
		PriorityRank: int16(t.Priority.Rank()),
		Status:       string(t.Status),
		QueuedAt:     t.QueuedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return warrant.ErrTaskExists
		}
		return fmt.Errorf("warrant/bun: put task: %w", err)
	}
	return nil
}

// GetTask fetches a task body by id.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var m taskModel
	err := s.db.NewSelect().
		Model(&m).
		Where("id = ? AND queue = ?", taskID.String(), s.queue).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, warrant.ErrTaskNotFound
		}
		return nil, fmt.Errorf("warrant/bun: get task: %w", err)
	}
	return taskFromModel(&m)
}

// DeleteTask removes a task row. Deleting an absent task is a no-op.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	_, err := s.db.NewDelete().
		Model((*taskModel)(nil)).
		Where("id = ? AND queue = ?", taskID.String(), s.queue).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("warrant/bun: delete task: %w", err)
	}
	return nil
}

// ListTasks returns all outstanding tasks in candidate order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().
		Model(&models).
		Where("queue = ?", s.queue).
		OrderExpr("priority_rank DESC, queued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("warrant/bun: list tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, err := taskFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("warrant/bun: list tasks: %w", err)
		}
		tasks = append(tasks, t)
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
	q := s.db.NewSelect().
		Model((*taskModel)(nil)).
		Column("id").
		Where("queue = ?", s.queue).
		Where("(status = 'pending' OR (status = 'claimed' AND lease_expires_at < NOW()))").
		OrderExpr("priority_rank DESC, queued_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var raw []string
	if err := q.Scan(ctx, &raw); err != nil {
		return nil, fmt.Errorf("warrant/bun: index list: %w", err)
	}

	ids := make([]id.TaskID, 0, len(raw))
	for _, r := range raw {
		taskID, err := id.ParseTaskID(r)
		if err != nil {
			continue
		}
		ids = append(ids, taskID)
	}
	return ids, nil
}

func taskFromModel(m *taskModel) (*task.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, err
	}
	return &task.Task{
		ID:        taskID,
		Payload:   m.Payload,
		Priority:  task.Priority(m.Priority),
		Status:    task.Status(m.Status),
		QueuedAt:  m.QueuedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}
