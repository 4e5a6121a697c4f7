// Package ratelimit implements the token-bucket admission control applied to
// every remote call. The bucket smooths the request rate continuously rather
// than resetting at interval boundaries, so a burst at the edge of a window
// cannot exceed the configured rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket of capacity rate, refilled at rate tokens per
// interval. Acquire never fails except by context cancellation.
type Limiter struct {
	mu        sync.Mutex
	rate      float64
	interval  time.Duration
	allowance float64
	lastCheck time.Time

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a full bucket allowing rate acquisitions per interval.
func New(rate float64, interval time.Duration) *Limiter {
	return &Limiter{
		rate:      rate,
		interval:  interval,
		allowance: rate,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Acquire blocks until one unit of quota is available, then debits it.
//
// Tokens accrued since the last check are credited first, capped at the
// bucket capacity. If less than one token is available the caller sleeps for
// the deficit and the bucket is zeroed; otherwise one token is debited
// immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	current := l.now()
	if l.lastCheck.IsZero() {
		l.lastCheck = current
	}
	elapsed := current.Sub(l.lastCheck)
	l.lastCheck = current

	l.allowance += elapsed.Seconds() * (l.rate / l.interval.Seconds())
	if l.allowance > l.rate {
		l.allowance = l.rate
	}

	if l.allowance < 1 {
		wait := time.Duration((1 - l.allowance) * float64(time.Second))
		l.allowance = 0
		l.mu.Unlock()
		return l.sleep(ctx, wait)
	}

	l.allowance--
	l.mu.Unlock()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
