package interfaces

import (
	"context"
	"time"
)

// RateLimiter is a per-key minimum-interval gate
type RateLimiter interface {
	// CanRequest reports whether a request under key would be admitted now.
	// It never changes state.
	CanRequest(ctx context.Context, key string) (bool, error)

	// RecordRequest marks key as used now
	RecordRequest(ctx context.Context, key string) error

	// TimeUntilNextRequest returns how long until key admits again; zero when it already does
	TimeUntilNextRequest(ctx context.Context, key string) (time.Duration, error)

	// Reserve atomically checks and records key. When the gate is closed it
	// returns a nil Reservation and the remaining wait.
	Reserve(ctx context.Context, key string) (Reservation, time.Duration, error)
}

// Reservation is an admitted request slot
type Reservation interface {
	// Cancel gives the slot back; used when the request was never dispatched
	Cancel(ctx context.Context) error
}
