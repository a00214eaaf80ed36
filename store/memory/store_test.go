package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/result"
	"github.com/xraph/warrant/task"
)

func newTask(p task.Priority) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:        id.NewTaskID(),
		Payload:   json.RawMessage(`{"test":true}`),
		Priority:  p,
		Status:    task.StatusPending,
		QueuedAt:  now,
		UpdatedAt: now,
	}
}

func submit(t *testing.T, s *Store, tk *task.Task) {
	t.Helper()
	ctx := context.Background()
	if err := s.PutTask(ctx, tk); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	if err := s.IndexAdd(ctx, tk); err != nil {
		t.Fatalf("IndexAdd: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle and task store
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, warrant.ErrUnavailable) {
		t.Fatalf("Ping after Close = %v, want ErrUnavailable", err)
	}
}

func TestPutTaskDuplicate(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	if err := s.PutTask(ctx, tk); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	if err := s.PutTask(ctx, tk); !errors.Is(err, warrant.ErrTaskExists) {
		t.Fatalf("duplicate PutTask = %v, want ErrTaskExists", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()
	s := New("default")

	_, err := s.GetTask(context.Background(), id.NewTaskID())
	if !errors.Is(err, warrant.ErrTaskNotFound) {
		t.Fatalf("GetTask = %v, want ErrTaskNotFound", err)
	}
}

func TestIndexListOrder(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	low := newTask(task.PriorityLow)
	high := newTask(task.PriorityHigh)
	critical := newTask(task.PriorityCritical)
	for _, tk := range []*task.Task{low, high, critical} {
		submit(t, s, tk)
	}

	ids, err := s.IndexList(ctx, 0)
	if err != nil {
		t.Fatalf("IndexList: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("IndexList returned %d ids, want 3", len(ids))
	}
	want := []id.TaskID{critical.ID, high.ID, low.ID}
	for i := range want {
		if ids[i].String() != want[i].String() {
			t.Fatalf("candidate %d = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestIndexListLimit(t *testing.T) {
	t.Parallel()
	s := New("default")

	for range 5 {
		submit(t, s, newTask(task.PriorityMedium))
	}

	ids, err := s.IndexList(context.Background(), 2)
	if err != nil {
		t.Fatalf("IndexList: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("IndexList(limit=2) returned %d ids", len(ids))
	}
}

// ──────────────────────────────────────────────────
// Coordinator: claim
// ──────────────────────────────────────────────────

func TestClaimNextGrantsFirstUnleased(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	t1 := newTask(task.PriorityHigh)
	t2 := newTask(task.PriorityLow)
	submit(t, s, t1)
	submit(t, s, t2)

	cands := []id.TaskID{t1.ID, t2.ID}

	l1, err := s.ClaimNext(ctx, cands, "wkr-a", 30*time.Second)
	if err != nil || l1 == nil {
		t.Fatalf("first claim: lease=%v err=%v", l1, err)
	}
	if l1.TaskID.String() != t1.ID.String() {
		t.Fatalf("first claim won %s, want %s", l1.TaskID, t1.ID)
	}

	// Same candidate list: the leased head is skipped.
	l2, err := s.ClaimNext(ctx, cands, "wkr-b", 30*time.Second)
	if err != nil || l2 == nil {
		t.Fatalf("second claim: lease=%v err=%v", l2, err)
	}
	if l2.TaskID.String() != t2.ID.String() {
		t.Fatalf("second claim won %s, want %s", l2.TaskID, t2.ID)
	}

	// Everything leased: ordinary empty outcome, not an error.
	l3, err := s.ClaimNext(ctx, cands, "wkr-c", 30*time.Second)
	if err != nil {
		t.Fatalf("exhausted claim errored: %v", err)
	}
	if l3 != nil {
		t.Fatalf("exhausted claim granted %s", l3.TaskID)
	}
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)
	cands := []id.TaskID{tk.ID}

	const claimers = 32
	var wg sync.WaitGroup
	wins := make(chan string, claimers)

	for i := range claimers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			worker := "wkr-" + string(rune('a'+n%26))
			l, err := s.ClaimNext(ctx, cands, worker, time.Minute)
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if l != nil {
				wins <- l.WorkerID
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("%d concurrent claims produced %d winners, want exactly 1", claimers, len(winners))
	}
}

func TestClaimClampsDuration(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tests := []struct {
		name string
		req  time.Duration
		want time.Duration
	}{
		{"zero", 0, time.Second},
		{"negative", -5 * time.Second, time.Second},
		{"oversized", 10000 * time.Second, 600 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := newTask(task.PriorityMedium)
			submit(t, s, tk)

			l, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", tt.req)
			if err != nil || l == nil {
				t.Fatalf("ClaimNext: lease=%v err=%v", l, err)
			}
			if got := l.ExpiresAt.Sub(l.ClaimedAt); got != tt.want {
				t.Fatalf("lease duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaimMarksTaskClaimed(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)

	if _, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != task.StatusClaimed {
		t.Fatalf("status = %s, want claimed", got.Status)
	}
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)
	cands := []id.TaskID{tk.ID}

	l, err := s.ClaimNext(ctx, cands, "wkr-a", time.Second)
	if err != nil || l == nil {
		t.Fatalf("claim: lease=%v err=%v", l, err)
	}

	// No explicit release; expiry alone makes the task reclaimable.
	time.Sleep(1100 * time.Millisecond)

	l2, err := s.ClaimNext(ctx, cands, "wkr-b", time.Minute)
	if err != nil || l2 == nil {
		t.Fatalf("reclaim: lease=%v err=%v", l2, err)
	}
	if l2.WorkerID != "wkr-b" {
		t.Fatalf("reclaimed holder = %s, want wkr-b", l2.WorkerID)
	}
}

// ──────────────────────────────────────────────────
// Coordinator: renew / release
// ──────────────────────────────────────────────────

func TestRenewExtendsAndChecksHolder(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)

	l, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", 10*time.Second)
	if err != nil || l == nil {
		t.Fatalf("claim: lease=%v err=%v", l, err)
	}

	if _, err := s.Renew(ctx, tk.ID, "wkr-b", time.Minute); !errors.Is(err, warrant.ErrNotLeaseHolder) {
		t.Fatalf("foreign renew = %v, want ErrNotLeaseHolder", err)
	}

	renewed, err := s.Renew(ctx, tk.ID, "wkr-a", time.Minute)
	if err != nil {
		t.Fatalf("holder renew: %v", err)
	}
	if !renewed.ExpiresAt.After(l.ExpiresAt) {
		t.Fatalf("renew did not extend: %v -> %v", l.ExpiresAt, renewed.ExpiresAt)
	}
}

func TestRenewWithoutLease(t *testing.T) {
	t.Parallel()
	s := New("default")

	_, err := s.Renew(context.Background(), id.NewTaskID(), "wkr-a", time.Minute)
	if !errors.Is(err, warrant.ErrLeaseNotFound) {
		t.Fatalf("renew without lease = %v, want ErrLeaseNotFound", err)
	}
}

func TestRenewExpiredLease(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)

	if _, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	if _, err := s.Renew(ctx, tk.ID, "wkr-a", time.Minute); !errors.Is(err, warrant.ErrLeaseNotFound) {
		t.Fatalf("renew after expiry = %v, want ErrLeaseNotFound", err)
	}
}

func TestReleaseSemantics(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)
	cands := []id.TaskID{tk.ID}

	if _, err := s.ClaimNext(ctx, cands, "wkr-a", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Wrong holder.
	if err := s.Release(ctx, tk.ID, "wkr-b"); !errors.Is(err, warrant.ErrNotLeaseHolder) {
		t.Fatalf("foreign release = %v, want ErrNotLeaseHolder", err)
	}

	// Holder release succeeds and the task is immediately claimable.
	if err := s.Release(ctx, tk.ID, "wkr-a"); err != nil {
		t.Fatalf("holder release: %v", err)
	}
	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != task.StatusPending {
		t.Fatalf("status after release = %s, want pending", got.Status)
	}

	l, err := s.ClaimNext(ctx, cands, "wkr-b", time.Minute)
	if err != nil || l == nil {
		t.Fatalf("reclaim after release: lease=%v err=%v", l, err)
	}

	// Releasing an unleased task is a no-op success.
	if err := s.Release(ctx, id.NewTaskID(), "wkr-a"); err != nil {
		t.Fatalf("release of unleased task = %v, want nil", err)
	}
}

func TestAdministrativeRelease(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)

	if _, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Empty worker id is the administrative form: no holder check.
	if err := s.Release(ctx, tk.ID, ""); err != nil {
		t.Fatalf("administrative release: %v", err)
	}
	if _, err := s.GetLease(ctx, tk.ID); !errors.Is(err, warrant.ErrLeaseNotFound) {
		t.Fatalf("lease survives administrative release: %v", err)
	}
}

func TestGetLease(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	tk := newTask(task.PriorityMedium)
	submit(t, s, tk)

	if _, err := s.GetLease(ctx, tk.ID); !errors.Is(err, warrant.ErrLeaseNotFound) {
		t.Fatalf("GetLease before claim = %v, want ErrLeaseNotFound", err)
	}

	if _, err := s.ClaimNext(ctx, []id.TaskID{tk.ID}, "wkr-a", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	l, err := s.GetLease(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetLease: %v", err)
	}
	if l.WorkerID != "wkr-a" {
		t.Fatalf("holder = %s, want wkr-a", l.WorkerID)
	}
}

// ──────────────────────────────────────────────────
// Result store
// ──────────────────────────────────────────────────

func TestResultOverwriteAndRetention(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	taskID := id.NewTaskID()
	now := time.Now().UTC()

	first := &result.Result{
		TaskID:    taskID,
		Payload:   json.RawMessage(`{"attempt":1}`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.PutResult(ctx, first); err != nil {
		t.Fatalf("PutResult: %v", err)
	}

	second := &result.Result{
		TaskID:    taskID,
		Payload:   json.RawMessage(`{"attempt":2}`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.PutResult(ctx, second); err != nil {
		t.Fatalf("PutResult overwrite: %v", err)
	}

	got, err := s.GetResult(ctx, taskID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if string(got.Payload) != `{"attempt":2}` {
		t.Fatalf("payload = %s, want second write", got.Payload)
	}
}

func TestResultExpiry(t *testing.T) {
	t.Parallel()
	s := New("default")
	ctx := context.Background()

	taskID := id.NewTaskID()
	now := time.Now().UTC()
	r := &result.Result{
		TaskID:    taskID,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := s.PutResult(ctx, r); err != nil {
		t.Fatalf("PutResult: %v", err)
	}

	if _, err := s.GetResult(ctx, taskID); !errors.Is(err, warrant.ErrResultNotFound) {
		t.Fatalf("expired GetResult = %v, want ErrResultNotFound", err)
	}
}

func TestStrength(t *testing.T) {
	t.Parallel()
	if New("default").Strength() != lease.StrengthSerialized {
		t.Fatal("memory backend should report serialized strength")
	}
}
