// Package memory implements store.Backend entirely in memory with the
// serialized-authority claiming strategy: a single lock serializes every
// coordinator call for the queue instance, so requests observe a total
// order and the at-most-one-lease invariant holds trivially. Intended for
// unit testing, development, and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/result"
	"github.com/xraph/warrant/store"
	"github.com/xraph/warrant/task"
)

// Compile-time interface check.
var _ store.Backend = (*Store)(nil)

// indexEntry carries the claim-ordering attributes of an outstanding task.
type indexEntry struct {
	rank     int
	queuedAt time.Time
}

// Store is an in-memory implementation of store.Backend for one queue
// name. One mutex guards all state; coordinator calls never interleave,
// which is exactly the ordering the serialized strategy relies on.
type Store struct {
	queue string

	mu      sync.Mutex
	tasks   map[string]*task.Task
	index   map[string]indexEntry
	leases  map[string]*lease.Lease
	results map[string]*result.Result

	closed bool
}

// New returns an empty Store serving the given queue name.
func New(queue string) *Store {
	return &Store{
		queue:   queue,
		tasks:   make(map[string]*task.Task),
		index:   make(map[string]indexEntry),
		leases:  make(map[string]*lease.Lease),
		results: make(map[string]*result.Result),
	}
}

// Queue returns the queue name this store serves.
func (s *Store) Queue() string { return s.queue }

// Strength reports the serialized-authority rank.
func (s *Store) Strength() lease.Strength { return lease.StrengthSerialized }

// Migrate is a no-op for the in-memory backend.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports readiness; it fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return warrant.ErrUnavailable
	}
	return nil
}

// Close marks the store closed. Data is discarded with the process.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// task.Store
// ──────────────────────────────────────────────────

// PutTask stores a task body.
func (s *Store) PutTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.ID.String()
	if _, exists := s.tasks[key]; exists {
		return warrant.ErrTaskExists
	}

	cp := *t
	s.tasks[key] = &cp
	return nil
}

// GetTask retrieves a task body by id.
func (s *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return nil, warrant.ErrTaskNotFound
	}

	cp := *t
	return &cp, nil
}

// DeleteTask removes a task body. Absent ids are a no-op.
func (s *Store) DeleteTask(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID.String())
	return nil
}

// ListTasks returns all stored tasks in candidate order.
func (s *Store) ListTasks(_ context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	task.SortCandidates(out)
	return out, nil
}

// ──────────────────────────────────────────────────
// task.Index
// ──────────────────────────────────────────────────

// IndexAdd records an outstanding task id.
func (s *Store) IndexAdd(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[t.ID.String()] = indexEntry{rank: t.Priority.Rank(), queuedAt: t.QueuedAt}
	return nil
}

// IndexRemove drops a task id from the index.
func (s *Store) IndexRemove(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, taskID.String())
	return nil
}

// IndexList returns candidate ids, priority rank descending then queue
// time ascending. The set may be stale relative to the task map; callers
// treat indexed ids without bodies as lost races.
func (s *Store) IndexList(_ context.Context, limit int) ([]id.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type cand struct {
		key string
		e   indexEntry
	}
	cands := make([]cand, 0, len(s.index))
	for k, e := range s.index {
		cands = append(cands, cand{key: k, e: e})
	}

	// Ties broken by key for determinism; TypeIDs are K-sortable, so key
	// order is age order.
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.e.rank != b.e.rank {
			return a.e.rank > b.e.rank
		}
		if !a.e.queuedAt.Equal(b.e.queuedAt) {
			return a.e.queuedAt.Before(b.e.queuedAt)
		}
		return a.key < b.key
	})

	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}

	out := make([]id.TaskID, 0, len(cands))
	for _, c := range cands {
		tid, err := id.ParseTaskID(c.key)
		if err != nil {
			continue
		}
		out = append(out, tid)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// lease.Coordinator
// ──────────────────────────────────────────────────

// ClaimNext grants a lease on the first candidate lacking a live one.
func (s *Store) ClaimNext(_ context.Context, candidates []id.TaskID, workerID string, leaseFor time.Duration) (*lease.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	d := lease.Clamp(leaseFor)

	for _, taskID := range candidates {
		key := taskID.String()
		if l, ok := s.leases[key]; ok && !l.Expired(now) {
			continue
		}

		granted := &lease.Lease{
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: now,
			ExpiresAt: now.Add(d),
		}
		s.leases[key] = granted

		if t, ok := s.tasks[key]; ok {
			t.Status = task.StatusClaimed
			t.UpdatedAt = now
		}

		cp := *granted
		return &cp, nil
	}

	return nil, nil
}

// Renew extends the holder's lease. Renewal never shortens a lease.
func (s *Store) Renew(_ context.Context, taskID id.TaskID, workerID string, extendBy time.Duration) (*lease.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := taskID.String()

	l, ok := s.leases[key]
	if !ok || l.Expired(now) {
		return nil, warrant.ErrLeaseNotFound
	}
	if l.WorkerID != workerID {
		return nil, warrant.ErrNotLeaseHolder
	}

	if next := now.Add(lease.Clamp(extendBy)); next.After(l.ExpiresAt) {
		l.ExpiresAt = next
	}

	cp := *l
	return &cp, nil
}

// Release drops the lease and returns the task to pending.
func (s *Store) Release(_ context.Context, taskID id.TaskID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := taskID.String()

	l, ok := s.leases[key]
	if !ok || l.Expired(now) {
		// Nothing live to release; expired records are pruned here.
		delete(s.leases, key)
		return nil
	}
	if workerID != "" && l.WorkerID != workerID {
		return warrant.ErrNotLeaseHolder
	}

	delete(s.leases, key)
	if t, ok := s.tasks[key]; ok {
		t.Status = task.StatusPending
		t.UpdatedAt = now
	}
	return nil
}

// Delete removes any lease record for the task.
func (s *Store) Delete(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, taskID.String())
	return nil
}

// GetLease returns the live lease for a task.
func (s *Store) GetLease(_ context.Context, taskID id.TaskID) (*lease.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[taskID.String()]
	if !ok || l.Expired(time.Now().UTC()) {
		return nil, warrant.ErrLeaseNotFound
	}

	cp := *l
	return &cp, nil
}

// ──────────────────────────────────────────────────
// result.Store
// ──────────────────────────────────────────────────

// PutResult stores a result, overwriting any previous entry.
func (s *Store) PutResult(_ context.Context, r *result.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.results[r.TaskID.String()] = &cp
	return nil
}

// GetResult retrieves a result. Retention is enforced lazily on read;
// the subsystem runs no background threads.
func (s *Store) GetResult(_ context.Context, taskID id.TaskID) (*result.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskID.String()
	r, ok := s.results[key]
	if !ok {
		return nil, warrant.ErrResultNotFound
	}
	if !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(time.Now().UTC()) {
		delete(s.results, key)
		return nil, warrant.ErrResultNotFound
	}

	cp := *r
	return &cp, nil
}
