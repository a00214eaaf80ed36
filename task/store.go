package task

import (
	"context"

	"github.com/xraph/warrant/id"
)

// Store defines the persistence contract for task bodies.
type Store interface {
	// PutTask persists a task. Returns warrant.ErrTaskExists if a task
	// with the same ID is already stored.
	PutTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID. Returns warrant.ErrTaskNotFound if
	// absent.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// DeleteTask removes a task body. Deleting an absent task is a no-op.
	DeleteTask(ctx context.Context, taskID id.TaskID) error

	// ListTasks enumerates stored tasks in candidate order.
	ListTasks(ctx context.Context) ([]*Task, error)
}

// Index caches the set of outstanding task ids so claim attempts avoid a
// full store scan. It is eventually consistent with the Store: an indexed
// id whose body is already gone is tolerated by callers as a lost race,
// never surfaced as an error.
type Index interface {
	// IndexAdd records an outstanding task id with its claim-ordering
	// attributes.
	IndexAdd(ctx context.Context, t *Task) error

	// IndexRemove drops a task id from the index. Removing an absent id
	// is a no-op.
	IndexRemove(ctx context.Context, taskID id.TaskID) error

	// IndexList returns up to limit candidate ids, priority rank
	// descending then queue time ascending. A failure here propagates as
	// warrant.ErrUnavailable through the façade.
	IndexList(ctx context.Context, limit int) ([]id.TaskID, error)
}
