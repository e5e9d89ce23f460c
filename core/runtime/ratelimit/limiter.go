// Package ratelimit implements the per-key minimum-interval gate that sits
// between substitution and dispatch.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
)

// DefaultTicketInterval is the gap enforced between calls to an externally
// rate-limited ticket system
const DefaultTicketInterval = 60 * time.Second

// Clock returns the current time
type Clock func() time.Time

// Option configures a MinIntervalLimiter
type Option func(*MinIntervalLimiter)

// WithClock replaces time.Now, mainly for tests
func WithClock(clock Clock) Option {
	return func(l *MinIntervalLimiter) {
		l.now = clock
	}
}

// WithInterval sets the interval for keys starting with prefix
func WithInterval(prefix string, d time.Duration) Option {
	return func(l *MinIntervalLimiter) {
		l.intervals.Set(prefix, d)
	}
}

// MinIntervalLimiter keeps the last accepted timestamp per key in memory.
// State is lost on restart.
type MinIntervalLimiter struct {
	mu        sync.Mutex
	last      map[string]time.Time
	intervals *Intervals
	now       Clock
}

var _ interfaces.RateLimiter = (*MinIntervalLimiter)(nil)

// NewMinIntervalLimiter creates a limiter enforcing defaultInterval on every
// key without a more specific override
func NewMinIntervalLimiter(defaultInterval time.Duration, opts ...Option) *MinIntervalLimiter {
	l := &MinIntervalLimiter{
		last:      make(map[string]time.Time),
		intervals: NewIntervals(defaultInterval),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetInterval overrides the interval for every key starting with prefix.
// The longest matching prefix wins.
func (l *MinIntervalLimiter) SetInterval(prefix string, d time.Duration) {
	l.intervals.Set(prefix, d)
}

// Interval returns the interval enforced for key
func (l *MinIntervalLimiter) Interval(key string) time.Duration {
	return l.intervals.For(key)
}

// waitLocked is the remaining wait for key at now; zero when it is open
func (l *MinIntervalLimiter) waitLocked(key string, now time.Time) time.Duration {
	last, ok := l.last[key]
	if !ok {
		return 0
	}
	remaining := l.intervals.For(key) - now.Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanRequest reports whether key is open. It does not change state.
func (l *MinIntervalLimiter) CanRequest(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitLocked(key, l.now()) == 0, nil
}

// RecordRequest stamps key with the current time
func (l *MinIntervalLimiter) RecordRequest(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[key] = l.now()
	return nil
}

// TimeUntilNextRequest returns the remaining wait for key
func (l *MinIntervalLimiter) TimeUntilNextRequest(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitLocked(key, l.now()), nil
}

// Reserve checks and records key under one lock, so two callers can never
// both pass the gate for the same key in the same interval
func (l *MinIntervalLimiter) Reserve(_ context.Context, key string) (interfaces.Reservation, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if wait := l.waitLocked(key, now); wait > 0 {
		return nil, wait, nil
	}

	prev, hadPrev := l.last[key]
	l.last[key] = now
	return &memoryReservation{
		limiter: l,
		key:     key,
		stamp:   now,
		prev:    prev,
		hadPrev: hadPrev,
	}, 0, nil
}

type memoryReservation struct {
	limiter *MinIntervalLimiter
	key     string
	stamp   time.Time
	prev    time.Time
	hadPrev bool
	once    sync.Once
}

// Cancel restores the previous timestamp unless another caller has recorded
// the key since
func (r *memoryReservation) Cancel(_ context.Context) error {
	r.once.Do(func() {
		l := r.limiter
		l.mu.Lock()
		defer l.mu.Unlock()

		current, ok := l.last[r.key]
		if !ok || !current.Equal(r.stamp) {
			return
		}
		if r.hadPrev {
			l.last[r.key] = r.prev
		} else {
			delete(l.last, r.key)
		}
	})
	return nil
}
