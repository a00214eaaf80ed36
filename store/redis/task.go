package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/task"
)

// Hash field names for task bodies.
const (
	fieldPayload   = "payload"
	fieldPriority  = "priority"
	fieldStatus    = "status"
	fieldQueuedAt  = "queued_at"
	fieldUpdatedAt = "updated_at"
)

// PutTask stores a task body. The id must not already exist.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	key := taskKey(s.queue, t.ID.String())

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("warrant/redis: put task: %w", err)
	}
	if n > 0 {
		return warrant.ErrTaskExists
	}

	err = s.client.HSet(ctx, key, map[string]any{
		fieldPayload:   string(t.Payload),
		fieldPriority:  string(t.Priority),
		fieldStatus:    string(t.Status),
		fieldQueuedAt:  t.QueuedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("warrant/redis: put task: %w", err)
	}
	return nil
}

// GetTask fetches a task body by id.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	fields, err := s.client.HGetAll(ctx, taskKey(s.queue, taskID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: get task: %w", err)
	}
	if len(fields) == 0 {
		return nil, warrant.ErrTaskNotFound
	}
	return taskFromHash(taskID, fields)
}

// DeleteTask removes a task body. Deleting an absent task is a no-op.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	if err := s.client.Del(ctx, taskKey(s.queue, taskID.String())).Err(); err != nil {
		return fmt.Errorf("warrant/redis: delete task: %w", err)
	}
	return nil
}

// ListTasks returns all outstanding tasks in candidate order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey(s.queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: list tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, raw := range ids {
		taskID, err := id.ParseTaskID(raw)
		if err != nil {
			continue
		}
		t, err := s.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, warrant.ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	task.SortCandidates(tasks)
	return tasks, nil
}

// IndexAdd registers a task in the outstanding-task index.
func (s *Store) IndexAdd(ctx context.Context, t *task.Task) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, taskIDsKey(s.queue), t.ID.String())
	pipe.ZAdd(ctx, candidatesKey(s.queue), redis.Z{
		Score:  candidateScore(t.Priority.Rank(), t.QueuedAt),
		Member: t.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warrant/redis: index add: %w", err)
	}
	return nil
}

// IndexRemove drops a task from the outstanding-task index.
func (s *Store) IndexRemove(ctx context.Context, taskID id.TaskID) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, taskIDsKey(s.queue), taskID.String())
	pipe.ZRem(ctx, candidatesKey(s.queue), taskID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warrant/redis: index remove: %w", err)
	}
	return nil
}

// IndexList returns candidate ids ordered by priority then age.
func (s *Store) IndexList(ctx context.Context, limit int) ([]id.TaskID, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.ZRange(ctx, candidatesKey(s.queue), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: index list: %w", err)
	}

	ids := make([]id.TaskID, 0, len(raw))
	for _, member := range raw {
		taskID, err := id.ParseTaskID(member)
		if err != nil {
			continue
		}
		ids = append(ids, taskID)
	}
	return ids, nil
}

func taskFromHash(taskID id.TaskID, fields map[string]string) (*task.Task, error) {
	queuedAt, err := time.Parse(time.RFC3339Nano, fields[fieldQueuedAt])
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: task %s: bad queued_at: %w", taskID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("warrant/redis: task %s: bad updated_at: %w", taskID, err)
	}
	return &task.Task{
		ID:        taskID,
		Payload:   []byte(fields[fieldPayload]),
		Priority:  task.Priority(fields[fieldPriority]),
		Status:    task.Status(fields[fieldStatus]),
		QueuedAt:  queuedAt,
		UpdatedAt: updatedAt,
	}, nil
}
