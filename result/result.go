// Package result defines completed-task outputs and their retention
// contract. Results are written once per completion call (an idempotent
// overwrite on retry) and become unreadable after a fixed TTL.
package result

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/warrant/id"
)

// Result is the durable output of a completed task, keyed by task id.
// Task Store and Result Store entries for a given id are mutually
// exclusive: completion removes the former while creating the latter.
type Result struct {
	TaskID    id.TaskID       `json:"task_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Store defines finite-retention persistence for results.
type Store interface {
	// PutResult stores a result, overwriting any previous entry for the
	// same task id (completion retries are safe).
	PutResult(ctx context.Context, r *Result) error

	// GetResult retrieves a result. Absent or past-retention entries
	// return warrant.ErrResultNotFound.
	GetResult(ctx context.Context, taskID id.TaskID) (*Result, error)
}
