// Package worker runs a pool of claim-loop workers over a queue. Each
// worker claims, executes the handler, renews its lease in the
// background while the handler runs, and completes or releases when the
// handler returns. Losing a lease mid-run cancels the handler's context;
// the task is assumed lost to another worker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/backoff"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/queue"
	"github.com/xraph/warrant/task"
)

// Handler executes one task. The returned payload becomes the stored
// result. A returned error releases the task for another attempt. The
// context is cancelled if the worker loses its lease.
type Handler func(ctx context.Context, t *task.Task) (json.RawMessage, error)

// Pool is a set of workers draining one queue.
type Pool struct {
	queue   *queue.Queue
	handler Handler

	workers int
	lease   time.Duration
	backoff backoff.Strategy
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the worker count (default 1).
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLease sets the lease duration requested on claim and renewal.
func WithLease(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.lease = d
		}
	}
}

// WithBackoff sets the wait strategy between empty claim attempts.
func WithBackoff(s backoff.Strategy) Option {
	return func(p *Pool) {
		if s != nil {
			p.backoff = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a Pool over q. Start must be called to begin claiming.
func New(q *queue.Queue, handler Handler, opts ...Option) *Pool {
	p := &Pool{
		queue:   q,
		handler: handler,
		workers: 1,
		backoff: backoff.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. It returns immediately; Stop shuts them
// down.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		workerID := id.NewWorkerString()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, workerID)
		}()
	}
}

// Stop cancels all workers and waits for in-flight tasks to settle.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		t, l, err := p.queue.Claim(ctx, workerID, p.lease)
		if err != nil {
			p.logger.Warn("claim failed", "worker_id", workerID, "error", err)
		}
		if t == nil {
			if !p.sleep(ctx, p.backoff.Next(attempt)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		p.execute(ctx, workerID, t, l.ExpiresAt)
	}
}

// execute runs the handler under a renewal loop. The renewal interval is
// a third of the lease so two renewals can fail before expiry.
func (p *Pool) execute(ctx context.Context, workerID string, t *task.Task, expiresAt time.Time) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	leaseFor := p.lease
	if leaseFor <= 0 {
		leaseFor = time.Until(expiresAt)
	}
	leaseFor = lease.Clamp(leaseFor)

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := p.handler(runCtx, t)
		done <- outcome{payload, err}
	}()

	ticker := time.NewTicker(leaseFor / 3)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			p.settle(ctx, workerID, t, out.payload, out.err)
			return
		case <-ticker.C:
			if _, err := p.queue.Renew(ctx, t.ID, workerID, leaseFor); err != nil {
				if errors.Is(err, warrant.ErrNotLeaseHolder) || errors.Is(err, warrant.ErrLeaseNotFound) {
					p.logger.Warn("lease lost, abandoning task",
						"task_id", t.ID.String(), "worker_id", workerID)
					cancel()
					<-done
					return
				}
				p.logger.Warn("renew failed",
					"task_id", t.ID.String(), "worker_id", workerID, "error", err)
			}
		case <-ctx.Done():
			// Pool shutdown: let the handler observe cancellation, then
			// hand the task back.
			cancel()
			out := <-done
			p.settle(context.Background(), workerID, t, out.payload, out.err)
			return
		}
	}
}

func (p *Pool) settle(ctx context.Context, workerID string, t *task.Task, payload json.RawMessage, handlerErr error) {
	if handlerErr != nil {
		p.logger.Warn("task failed, releasing",
			"task_id", t.ID.String(), "worker_id", workerID, "error", handlerErr)
		if err := p.queue.Release(ctx, t.ID, workerID); err != nil {
			p.logger.Error("release failed",
				"task_id", t.ID.String(), "worker_id", workerID, "error", err)
		}
		return
	}

	if _, err := p.queue.Complete(ctx, t.ID, workerID, payload); err != nil {
		p.logger.Error("complete failed",
			"task_id", t.ID.String(), "worker_id", workerID, "error", err)
	}
}

// sleep waits d or until ctx is cancelled; it reports whether the caller
// should keep running.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
