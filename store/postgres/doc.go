// Package postgres implements store.Backend on PostgreSQL using pgx/v5
// with the transactional claiming strategy: each claim attempt issues one
// conditional UPDATE per candidate and wins iff exactly one row was
// affected. Per-row atomic commits reproduce the serialized backend's
// guarantee without single-writer ordering, so multiple coordinator
// replicas can share one database.
//
// The tasks table doubles as the task index: candidate enumeration is a
// covered query over (queue, priority_rank DESC, queued_at ASC), so
// IndexAdd and IndexRemove are no-ops here.
package postgres
