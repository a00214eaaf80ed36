package warrant

import "time"

// Config holds configuration for the queue façade.
type Config struct {
	// DefaultLease is the lease duration applied when a claim or renewal
	// does not specify one.
	DefaultLease time.Duration

	// ResultTTL is how long completed task results remain readable.
	ResultTTL time.Duration

	// CandidateLimit caps how many index candidates a single claim
	// attempt will consider.
	CandidateLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLease:   5 * time.Minute,
		ResultTTL:      time.Hour,
		CandidateLimit: 100,
	}
}
