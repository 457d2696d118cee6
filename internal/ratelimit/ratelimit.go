// Package ratelimit implements fixed-window request limits over a pluggable
// counter store: in-process for a single instance, Redis when the API runs
// as several processes.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Clock is injected so windows can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Store counts hits per key inside fixed windows.
type Store interface {
	// Hit records one request for key and returns the number of requests
	// seen in the current window, this one included. A window opens on the
	// first hit and lasts exactly window.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter allows at most Max requests per key per Window.
type Limiter struct {
	store  Store
	window time.Duration
	max    int64
	prefix string
}

// NewLimiter builds a limiter; prefix namespaces its keys inside the store.
func NewLimiter(store Store, window time.Duration, max int64, prefix string) *Limiter {
	return &Limiter{store: store, window: window, max: max, prefix: prefix}
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.store.Hit(ctx, l.prefix+key, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n <= l.max, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}
