// Package gate provides admission control for queue operations: a token
// bucket bounds the sustained request rate and a semaphore caps
// in-flight work. The API layer consults it before claim-path handlers
// so an overloaded backend sheds load instead of queueing it.
package gate

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrLimited is returned when admission is denied without waiting.
var ErrLimited = errors.New("gate: limit exceeded")

// Gate combines a rate limiter with an in-flight cap.
type Gate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// Config bounds a Gate. Zero values disable the corresponding limit.
type Config struct {
	// Rate is the sustained operations per second.
	Rate float64
	// Burst is the token bucket depth; defaults to 1 when Rate is set.
	Burst int
	// MaxInFlight caps concurrently admitted operations.
	MaxInFlight int
}

// New builds a Gate from cfg.
func New(cfg Config) *Gate {
	g := &Gate{}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	if cfg.MaxInFlight > 0 {
		g.slots = make(chan struct{}, cfg.MaxInFlight)
	}
	return g
}

// TryAcquire admits an operation without blocking. The caller must call
// Release after the operation when admission succeeds.
func (g *Gate) TryAcquire() error {
	if g.limiter != nil && !g.limiter.Allow() {
		return ErrLimited
	}
	if g.slots != nil {
		select {
		case g.slots <- struct{}{}:
		default:
			return ErrLimited
		}
	}
	return nil
}

// Acquire admits an operation, waiting for rate tokens and an in-flight
// slot. The caller must call Release after the operation.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.slots != nil {
		select {
		case g.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release returns the in-flight slot taken by a successful acquire.
func (g *Gate) Release() {
	if g.slots != nil {
		select {
		case <-g.slots:
		default:
		}
	}
}

// InFlight reports the number of currently admitted operations.
func (g *Gate) InFlight() int {
	if g.slots == nil {
		return 0
	}
	return len(g.slots)
}
