// Package queue is the façade that ties the task store, index, lease
// coordinator, and result store together behind one API. It ranks the
// configured backends by claiming strength, pins the strongest reachable
// one at construction, and orchestrates the multi-step operations
// (claim, complete) whose ordering keeps the stores consistent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/result"
	"github.com/xraph/warrant/store"
	"github.com/xraph/warrant/task"
)

// Queue coordinates task submission, claiming, and completion over one
// pinned backend.
type Queue struct {
	backend store.Backend
	cfg     warrant.Config
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	backends []store.Backend
	cfg      warrant.Config
	logger   *slog.Logger
	migrate  bool
}

// WithBackends supplies candidate backends. They may be passed in any
// order; New ranks them by lease.Strength.
func WithBackends(backends ...store.Backend) Option {
	return func(o *options) { o.backends = append(o.backends, backends...) }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg warrant.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMigrate runs Migrate on the selected backend during New.
func WithMigrate() Option {
	return func(o *options) { o.migrate = true }
}

// New probes the configured backends strongest-first and pins the first
// reachable one for the lifetime of the Queue. Returns ErrNoBackend when
// none is configured or reachable.
func New(ctx context.Context, opts ...Option) (*Queue, error) {
	o := &options{
		cfg:    warrant.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	ranked := make([]store.Backend, len(o.backends))
	copy(ranked, o.backends)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Strength() > ranked[j].Strength()
	})

	for _, b := range ranked {
		if err := b.Ping(ctx); err != nil {
			o.logger.Warn("backend unreachable, trying next",
				"strength", b.Strength().String(), "error", err)
			continue
		}
		if o.migrate {
			if err := b.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("queue: migrate: %w", err)
			}
		}
		o.logger.Info("backend selected", "strength", b.Strength().String())
		return &Queue{backend: b, cfg: o.cfg, logger: o.logger}, nil
	}

	return nil, warrant.ErrNoBackend
}

// SubmitParams describes a task to enqueue. A zero ID mints a fresh one;
// an empty Priority defaults to medium.
type SubmitParams struct {
	ID       id.TaskID
	Payload  json.RawMessage
	Priority string
}

// Submit stores a task and registers it in the outstanding-task index.
// Submitting an id that already exists returns ErrTaskExists.
func (q *Queue) Submit(ctx context.Context, params SubmitParams) (*task.Task, error) {
	priority, err := task.ParsePriority(params.Priority)
	if err != nil {
		return nil, err
	}

	taskID := params.ID
	if taskID.IsNil() {
		taskID = id.NewTaskID()
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:        taskID,
		Payload:   params.Payload,
		Priority:  priority,
		Status:    task.StatusPending,
		QueuedAt:  now,
		UpdatedAt: now,
	}

	if err := q.backend.PutTask(ctx, t); err != nil {
		return nil, err
	}
	if err := q.backend.IndexAdd(ctx, t); err != nil {
		// Roll the body back so the task is not stranded outside the
		// index where no claim will ever find it.
		if delErr := q.backend.DeleteTask(ctx, taskID); delErr != nil {
			q.logger.Error("index add rollback failed",
				"task_id", taskID.String(), "error", delErr)
		}
		return nil, fmt.Errorf("queue: index add: %w", err)
	}

	q.logger.Debug("task submitted",
		"task_id", taskID.String(), "priority", string(priority))
	return t, nil
}

// List returns all outstanding tasks in candidate order.
func (q *Queue) List(ctx context.Context) ([]*task.Task, error) {
	return q.backend.ListTasks(ctx)
}

// GetTask fetches a single outstanding task.
func (q *Queue) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return q.backend.GetTask(ctx, taskID)
}

// Claim leases the highest-priority claimable task to workerID. Returns
// (nil, nil, nil) when nothing is claimable; an empty queue is not an
// error. A non-positive leaseFor uses the configured default.
//
// Candidates whose index entry outlived their body (phantoms) are
// cleaned up and skipped rather than surfaced.
func (q *Queue) Claim(ctx context.Context, workerID string, leaseFor time.Duration) (*task.Task, *lease.Lease, error) {
	if workerID == "" {
		return nil, nil, warrant.ErrEmptyWorkerID
	}
	if leaseFor <= 0 {
		leaseFor = q.cfg.DefaultLease
	}

	candidates, err := q.backend.IndexList(ctx, q.cfg.CandidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: index list: %v", warrant.ErrUnavailable, err)
	}

	for len(candidates) > 0 {
		l, err := q.backend.ClaimNext(ctx, candidates, workerID, leaseFor)
		if err != nil {
			return nil, nil, err
		}
		if l == nil {
			return nil, nil, nil
		}

		t, err := q.backend.GetTask(ctx, l.TaskID)
		if err == nil {
			return t, l, nil
		}
		if !errors.Is(err, warrant.ErrTaskNotFound) {
			return nil, nil, err
		}

		// Phantom: the index knew an id whose body is gone. Drop the
		// lease we just took, scrub the index, and keep scanning.
		q.logger.Warn("phantom candidate dropped", "task_id", l.TaskID.String())
		if err := q.backend.Delete(ctx, l.TaskID); err != nil {
			q.logger.Error("phantom lease cleanup failed",
				"task_id", l.TaskID.String(), "error", err)
		}
		if err := q.backend.IndexRemove(ctx, l.TaskID); err != nil {
			q.logger.Error("phantom index cleanup failed",
				"task_id", l.TaskID.String(), "error", err)
		}
		candidates = withoutID(candidates, l.TaskID)
	}

	return nil, nil, nil
}

// Renew extends workerID's lease on a task. A non-positive extendBy uses
// the configured default. Renewal never shortens a lease.
func (q *Queue) Renew(ctx context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	if workerID == "" {
		return nil, warrant.ErrEmptyWorkerID
	}
	if extendBy <= 0 {
		extendBy = q.cfg.DefaultLease
	}
	return q.backend.Renew(ctx, taskID, workerID, extendBy)
}

// Release gives up workerID's lease, making the task immediately
// claimable again. Releasing an unleased task succeeds as a no-op.
func (q *Queue) Release(ctx context.Context, taskID id.TaskID, workerID string) error {
	if workerID == "" {
		return warrant.ErrEmptyWorkerID
	}
	return q.backend.Release(ctx, taskID, workerID)
}

// ForceRelease drops a task's lease regardless of holder. Operator
// escape hatch for wedged workers.
func (q *Queue) ForceRelease(ctx context.Context, taskID id.TaskID) error {
	return q.backend.Release(ctx, taskID, "")
}

// GetLease returns the live lease for a task.
func (q *Queue) GetLease(ctx context.Context, taskID id.TaskID) (*lease.Lease, error) {
	return q.backend.GetLease(ctx, taskID)
}

// Complete finishes a task: the holder's result is stored first, then
// the task leaves the store and index, and the lease is dropped last.
// That order keeps a crash mid-completion re-runnable: the task stays
// claimable and a rerun overwrites the result.
//
// Completing a task that was already fully completed is an idempotent
// retry: the stored result is overwritten and the call succeeds, so a
// worker that lost the response to its first attempt can safely try
// again.
func (q *Queue) Complete(ctx context.Context, taskID id.TaskID, workerID string, payload json.RawMessage) (*result.Result, error) {
	if workerID == "" {
		return nil, warrant.ErrEmptyWorkerID
	}

	l, err := q.backend.GetLease(ctx, taskID)
	if err != nil {
		if errors.Is(err, warrant.ErrLeaseNotFound) {
			return q.completeRetry(ctx, taskID, workerID, payload)
		}
		return nil, err
	}
	if l.WorkerID != workerID {
		return nil, warrant.ErrNotLeaseHolder
	}

	r := q.newResult(taskID, payload)
	if err := q.backend.PutResult(ctx, r); err != nil {
		return nil, err
	}

	if err := q.backend.DeleteTask(ctx, taskID); err != nil {
		return nil, err
	}
	if err := q.backend.IndexRemove(ctx, taskID); err != nil {
		return nil, err
	}
	if err := q.backend.Delete(ctx, taskID); err != nil {
		return nil, err
	}

	q.logger.Debug("task completed",
		"task_id", taskID.String(), "worker_id", workerID)
	return r, nil
}

// completeRetry handles completion of a task with no live lease. A fully
// completed task has no body and a stored result; only then is the call
// treated as a retry and the result overwritten. Anything else (a live
// body without a lease, no result at all) keeps the original error.
func (q *Queue) completeRetry(ctx context.Context, taskID id.TaskID, workerID string, payload json.RawMessage) (*result.Result, error) {
	if _, err := q.backend.GetTask(ctx, taskID); !errors.Is(err, warrant.ErrTaskNotFound) {
		if err != nil {
			return nil, err
		}
		return nil, warrant.ErrLeaseNotFound
	}
	if _, err := q.backend.GetResult(ctx, taskID); err != nil {
		if errors.Is(err, warrant.ErrResultNotFound) {
			return nil, warrant.ErrLeaseNotFound
		}
		return nil, err
	}

	r := q.newResult(taskID, payload)
	if err := q.backend.PutResult(ctx, r); err != nil {
		return nil, err
	}

	q.logger.Debug("completion retried, result overwritten",
		"task_id", taskID.String(), "worker_id", workerID)
	return r, nil
}

func (q *Queue) newResult(taskID id.TaskID, payload json.RawMessage) *result.Result {
	now := time.Now().UTC()
	return &result.Result{
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(q.cfg.ResultTTL),
	}
}

// GetResult retrieves the stored result of a completed task.
func (q *Queue) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	return q.backend.GetResult(ctx, taskID)
}

// Stats summarizes queue state.
type Stats struct {
	Outstanding int    `json:"outstanding"`
	Pending     int    `json:"pending"`
	Claimed     int    `json:"claimed"`
	Backend     string `json:"backend"`
}

// Stats counts outstanding tasks by status.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	tasks, err := q.backend.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Outstanding: len(tasks),
		Backend:     q.backend.Strength().String(),
	}
	for _, t := range tasks {
		switch t.Status {
		case task.StatusClaimed:
			s.Claimed++
		default:
			s.Pending++
		}
	}
	return s, nil
}

// Strength reports the pinned backend's claiming strategy rank.
func (q *Queue) Strength() lease.Strength { return q.backend.Strength() }

// Ping checks the pinned backend's health.
func (q *Queue) Ping(ctx context.Context) error { return q.backend.Ping(ctx) }

// Close releases the pinned backend's resources.
func (q *Queue) Close() error { return q.backend.Close() }

func withoutID(ids []id.TaskID, drop id.TaskID) []id.TaskID {
	out := ids[:0]
	for _, v := range ids {
		if v.String() != drop.String() {
			out = append(out, v)
		}
	}
	return out
}
