// Package ratelimit implements a sliding-window request throttle for calls to
// the remote library API.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter admits at most maxCalls calls within any trailing window. Calls
// beyond the limit block until the oldest admitted call leaves the window.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	history  []time.Time
	now      func() time.Time
}

// New constructs a limiter allowing maxCalls per window. Non-positive inputs
// fall back to a permissive single-call-per-nanosecond-window limiter.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Nanosecond
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Wait blocks until the caller is admitted under the sliding window or ctx is
// done. Admission is re-evaluated in a loop after each sleep; the call is
// recorded in the window only once admitted.
func (l *Limiter) Wait(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ratelimit: nil context")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.history) < l.maxCalls {
			l.history = append(l.history, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.history[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset clears the admission history.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.history = l.history[:0]
	l.mu.Unlock()
}

// prune drops admissions that have left the window. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.history) && !l.history[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.history = append(l.history[:0], l.history[idx:]...)
	}
}
