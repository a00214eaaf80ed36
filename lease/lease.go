// Package lease defines the lease entity, the duration clamp policy, the
// backend strength ranking, and the coordinator contract every claiming
// strategy implements.
package lease

import (
	"time"

	"github.com/xraph/warrant/id"
)

// Duration policy shared by every backend: requested lease durations and
// renewal extensions are clamped to [MinDuration, MaxDuration]; callers
// that do not specify a duration get DefaultDuration.
const (
	MinDuration     = 1 * time.Second
	MaxDuration     = 600 * time.Second
	DefaultDuration = 300 * time.Second
)

// Clamp applies the shared duration policy. Zero and negative requests
// clamp to MinDuration; Default application for absent requests is the
// caller's concern (the API layer distinguishes absent from zero).
func Clamp(d time.Duration) time.Duration {
	if d < MinDuration {
		return MinDuration
	}
	if d > MaxDuration {
		return MaxDuration
	}
	return d
}

// ClampSeconds clamps a duration given in whole seconds.
func ClampSeconds(sec int64) time.Duration {
	return Clamp(time.Duration(sec) * time.Second)
}

// Lease is a time-bounded, worker-scoped exclusive claim on a task.
// At most one live lease exists per task at any instant. A lease is live
// while ExpiresAt is in the future; expiry alone makes the task
// reclaimable, with no explicit transition.
type Lease struct {
	TaskID    id.TaskID `json:"task_id"`
	WorkerID  string    `json:"worker_id"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Nonce is set only by the optimistic strategy, which writes a fresh
	// random nonce and declares the claim won when the read-back matches.
	Nonce string `json:"nonce,omitempty"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// HeldBy reports whether workerID currently holds the lease.
func (l *Lease) HeldBy(workerID string, now time.Time) bool {
	return l.WorkerID == workerID && !l.Expired(now)
}

// Strength ranks claiming strategies by consistency. The façade probes
// backends strongest-first and pins the first reachable one.
type Strength int

const (
	// StrengthOptimistic is the degraded fallback: claims are written
	// then read back, which detects but cannot prevent a concurrent
	// last-writer-wins race.
	StrengthOptimistic Strength = iota
	// StrengthTransactional claims with one atomic conditional write per
	// candidate; correct under multiple coordinator replicas.
	StrengthTransactional
	// StrengthSerialized processes all coordinator calls for a queue in
	// a single total order, making the single-lease invariant trivial.
	StrengthSerialized
)

// String returns the strategy name for logs.
func (s Strength) String() string {
	switch s {
	case StrengthSerialized:
		return "serialized"
	case StrengthTransactional:
		return "transactional"
	default:
		return "optimistic"
	}
}
