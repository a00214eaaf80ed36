// Package redis implements store.Backend on Redis with the optimistic
// claiming strategy, the weakest of the three. Use it only when no
// serialized or transactional backend is available.
//
// A claim skips candidates whose active-lease marker still exists, then
// writes a lease record carrying a fresh random nonce with a TTL equal
// to the lease duration and reads it straight back; the claim is won
// only if the read-back nonce matches. This detects, but cannot prevent,
// a last-writer-wins race from a true concurrent claimer. It is not a
// lock. Treat this backend as a degraded mode.
//
// Tasks are Hashes, the outstanding-task index is a Set plus a priority
// Sorted Set, and results rely on native TTL for retention.
package redis
