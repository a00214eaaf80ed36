// Package bun implements store.Backend on PostgreSQL through the bun ORM
// and its pgdriver connector. Claiming is transactional in the same form
// as the pgx backend: one conditional UPDATE per candidate that only
// matches an unleased row. Prefer this backend when the surrounding
// application already uses bun; otherwise the pgx backend is the leaner
// choice.
package bun
