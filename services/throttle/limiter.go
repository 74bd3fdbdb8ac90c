// Package throttle serializes calls to rate-limited external APIs.
package throttle

import (
	"context"
	"time"
)

// Limiter lets one call run at a time and keeps at least interval between the
// end of one call and the start of the next. Waiting callers queue on the slot.
type Limiter struct {
	slot     chan struct{}
	interval time.Duration
	last     time.Time
}

func New(interval time.Duration) *Limiter {
	return &Limiter{
		slot:     make(chan struct{}, 1),
		interval: interval,
	}
}

// Do waits for the slot and the minimum interval, then runs fn.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	// last is only touched while holding the slot.
	if wait := l.interval - time.Since(l.last); !l.last.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	defer func() { l.last = time.Now() }()
	return fn(ctx)
}

// Interval returns the configured minimum gap between calls.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
