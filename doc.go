// Package warrant provides the lease-coordination core of a distributed
// task queue: time-bounded, worker-scoped exclusive claims on tasks, with
// at most one active lease per task at any instant.
//
// Warrant is designed as a library, not a service. Construct one or more
// store backends, hand them to a queue façade, and expose the façade
// however you like (the api package ships an HTTP surface).
//
// # Quick Start
//
//	q, err := queue.New(ctx, queue.WithBackends(memory.New("invoices")))
//	submitted, _ := q.Submit(ctx, queue.SubmitParams{Priority: "high", Payload: payload})
//	claimed, grant, _ := q.Claim(ctx, "worker-1", 30*time.Second)
//
// # Architecture
//
// Each backend implements one of three claiming strategies behind the same
// coordinator contract, ranked by consistency strength: serialized
// authority (memory), transactional conditional update (postgres, bun,
// sqlite, mongo), and optimistic nonce read-back (redis, degraded mode).
// The façade probes backends strongest-first once at construction and
// never re-evaluates the choice mid-request.
//
// Task delivery is at-least-once. The only cancellation mechanism is lease
// expiry; reclamation is cooperative via the next claim observing an
// expired lease.
//
// All task IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package warrant
