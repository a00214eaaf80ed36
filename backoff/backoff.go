// Package backoff provides wait strategies for worker claim loops. When
// a claim attempt finds nothing claimable the pool backs off before
// polling again; the strategy decides by how much.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the wait before the next attempt. attempt starts at
// 0 for the first empty claim and resets once a claim succeeds.
type Strategy interface {
	Next(attempt int) time.Duration
}

// Func adapts a function to a Strategy.
type Func func(attempt int) time.Duration

func (f Func) Next(attempt int) time.Duration { return f(attempt) }

// Constant waits the same interval between attempts.
func Constant(interval time.Duration) Strategy {
	return Func(func(int) time.Duration { return interval })
}

// Exponential doubles the wait each attempt, from base up to max.
func Exponential(base, max time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		d := base
		for range attempt {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	})
}

// ExponentialWithJitter is Exponential with the result scaled by a
// random factor in [0.5, 1.0), which spreads out synchronized pollers.
func ExponentialWithJitter(base, max time.Duration) Strategy {
	exp := Exponential(base, max)
	return Func(func(attempt int) time.Duration {
		d := exp.Next(attempt)
		return time.Duration(float64(d) * (0.5 + rand.Float64()/2))
	})
}

// Default is the strategy worker pools use unless configured otherwise.
func Default() Strategy {
	return ExponentialWithJitter(250*time.Millisecond, 15*time.Second)
}
