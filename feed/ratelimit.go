package feed

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxPerSecond = 2
	DefaultMaxPerHour   = 7200
)

// Clock is the time source the limiter sleeps against. Tests swap in a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimiter enforces a per-second and a per-hour request budget. Hitting
// the per-second cap blocks until the second window is over; hitting the
// per-hour cap fails with ErrRateLimitExceeded.
type RateLimiter struct {
	mu           sync.Mutex
	clock        Clock
	maxPerSecond int
	maxPerHour   int

	secondCount int
	secondStart time.Time
	hourCount   int
	hourStart   time.Time
	lastRequest time.Time
}

func NewRateLimiter(maxPerSecond, maxPerHour int, clock Clock) *RateLimiter {
	if maxPerSecond <= 0 {
		maxPerSecond = DefaultMaxPerSecond
	}
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	if clock == nil {
		clock = realClock{}
	}
	return &RateLimiter{
		clock:        clock,
		maxPerSecond: maxPerSecond,
		maxPerHour:   maxPerHour,
	}
}

// Wait reserves one request slot. The lock is held while sleeping so
// concurrent callers queue behind the throttled one.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	if r.hourStart.IsZero() || now.Sub(r.hourStart) >= time.Hour {
		r.hourStart = now
		r.hourCount = 0
	}
	if r.hourCount >= r.maxPerHour {
		resetIn := r.hourStart.Add(time.Hour).Sub(now)
		return fmt.Errorf("%w: %d requests this hour, window resets in %s",
			ErrRateLimitExceeded, r.hourCount, resetIn.Round(time.Second))
	}

	if !r.lastRequest.IsZero() && now.Sub(r.lastRequest) >= time.Second {
		r.secondCount = 0
	}
	if r.secondCount >= r.maxPerSecond {
		if wait := r.secondStart.Add(time.Second).Sub(now); wait > 0 {
			if err := r.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = r.clock.Now()
		r.secondCount = 0
	}
	if r.secondCount == 0 {
		r.secondStart = now
	}

	r.secondCount++
	r.hourCount++
	r.lastRequest = now
	return nil
}

// Usage returns the requests counted in the current hour window.
func (r *RateLimiter) Usage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hourCount
}
