// Package ratelimit paces outbound probes so one target host never sees
// more than a fixed number of requests per window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the time left in the current window when not allowed.
	RetryAfter time.Duration
}

// RateLimiter paces outbound probes per target host.
type RateLimiter interface {
	Allow(ctx context.Context, target string) (Decision, error)
	Wait(ctx context.Context, target string) error
}
