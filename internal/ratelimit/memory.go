package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local fixed-window counter. State is lost on
// restart and is not shared between instances.
type MemoryLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	entries     map[string]*entry
	lastCleanup time.Time
	now         Clock
}

type entry struct {
	count int
	reset time.Time
}

func NewMemory(limit int, window time.Duration, now Clock) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limit:       limit,
		window:      window,
		entries:     map[string]*entry{},
		lastCleanup: now(),
		now:         now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok || !now.Before(e.reset) {
		l.entries[key] = &entry{count: 1, reset: now.Add(l.window)}
		return Decision{Allowed: true}, nil
	}

	e.count++
	if e.count > l.limit {
		return Decision{Allowed: false, RetryAfter: e.reset.Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}

// sweep drops expired windows once per window length.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastCleanup) < l.window {
		return
	}
	for k, v := range l.entries {
		if !now.Before(v.reset) {
			delete(l.entries, k)
		}
	}
	l.lastCleanup = now
}
