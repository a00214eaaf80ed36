// Package sqlite implements store.Backend on SQLite via database/sql and
// mattn/go-sqlite3, using the transactional claiming strategy: a claim is
// one conditional UPDATE that only matches an unleased row, so the
// database decides the winner. SQLite's single-writer model makes the
// race window moot in practice, but the conditional form keeps the
// semantics identical to the Postgres backend.
//
// Timestamps are stored as unix milliseconds computed in Go; SQLite has
// no server clock worth deferring to.
package sqlite
