package lease

import (
	"context"
	"time"

	"github.com/xraph/warrant/id"
)

// Coordinator is the capability surface shared by all claiming strategies.
// All four operations must be safe under arbitrary concurrent invocation;
// the coordinator performs no internal retries and owns no ordering policy
// beyond the candidate list it is handed.
type Coordinator interface {
	// ClaimNext walks the caller-ordered candidate list and grants a
	// lease on the first id lacking a live one. A per-candidate backend
	// failure moves on to the next candidate rather than aborting the
	// attempt. Returns (nil, nil) when no candidate could be claimed;
	// an ordinary outcome, not an error.
	ClaimNext(ctx context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*Lease, error)

	// Renew extends the holder's lease by extendBy (clamped). Returns
	// warrant.ErrLeaseNotFound if no live lease exists and
	// warrant.ErrNotLeaseHolder if workerID is not the current holder,
	// so a worker that silently lost its lease finds out.
	Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*Lease, error)

	// Release drops the lease and returns the task to pending. Releasing
	// an unleased task is a no-op success. An empty workerID is the
	// administrative form and skips the holder check; otherwise a
	// mismatched holder is warrant.ErrNotLeaseHolder.
	Release(ctx context.Context, taskID id.TaskID, workerID string) error

	// Delete removes any lease record for the task without touching task
	// state. Used on completion and when a won claim turns out to be a
	// phantom.
	Delete(ctx context.Context, taskID id.TaskID) error

	// GetLease returns the live lease for a task, or
	// warrant.ErrLeaseNotFound.
	GetLease(ctx context.Context, taskID id.TaskID) (*Lease, error)
}
