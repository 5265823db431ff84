package ratelimit

import (
	"context"
	"time"
)

// Store keeps per-key attempt timestamps over an exact trailing window.
//
// Every method first discards entries at or before at-window, so counts
// always describe the interval (at-window, at].
type Store interface {
	// Add records one attempt at time at and returns the in-window count including it.
	Add(ctx context.Context, key string, at time.Time, window time.Duration) (int, error)
	// Count returns the in-window count and the oldest in-window attempt (zero if none).
	Count(ctx context.Context, key string, at time.Time, window time.Duration) (int, time.Time, error)
	// Reserve records an attempt at time at only while the in-window count is
	// below limit. Trim, count and add happen as one atomic step.
	Reserve(ctx context.Context, key string, at time.Time, window time.Duration, limit int) (Reservation, error)
	// Release forgets one attempt previously admitted by Reserve.
	Release(ctx context.Context, key, member string) error
	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error
}

// Reservation is the outcome of Store.Reserve.
type Reservation struct {
	Admitted bool
	// Count is the in-window count, including the new attempt when admitted.
	Count int
	// Oldest is the oldest in-window attempt (zero if none).
	Oldest time.Time
	// Member identifies the admitted attempt for Release.
	Member string
}
