// Package store defines the aggregate persistence interface. Each
// subsystem (task, lease, result) defines its own contract; the composite
// Backend composes them all plus lifecycle. Backends: Memory (serialized
// authority), Postgres, Bun, SQLite, Mongo (transactional conditional
// update), and Redis (optimistic fallback).
package store

import (
	"context"

	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/result"
	"github.com/xraph/warrant/task"
)

// Backend is the aggregate persistence interface. A single backend
// implements every subsystem contract with one claiming strategy; the
// queue façade ranks configured backends by lease.Strength and pins the
// strongest reachable one at construction.
type Backend interface {
	task.Store
	task.Index
	lease.Coordinator
	result.Store

	// Strength reports the backend's claiming strategy rank.
	Strength() lease.Strength

	// Migrate prepares schema or indexes. No-op for schemaless backends.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity; the façade's availability probe.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
