// Package ratelimit guards the auth routes with a per-caller request budget.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request from key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Clock returns the current time. Tests swap it for a fixed clock.
type Clock func() time.Time
