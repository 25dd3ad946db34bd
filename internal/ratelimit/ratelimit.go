// Package ratelimit bounds request rates per client IP or per authenticated
// subject using a sliding window. The public initial-verification route is
// keyed by IP; bearer routes are keyed by subject.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a slot frees up. Zero when allowed.
	RetryAfter int
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Policy is a limit per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// PerMinute is shorthand for n requests per minute.
func PerMinute(n int) Policy {
	return Policy{Limit: n, Window: time.Minute}
}

func retryAfter(resetAt, now time.Time) int {
	if !resetAt.After(now) {
		return 1
	}
	return int(math.Ceil(resetAt.Sub(now).Seconds()))
}
