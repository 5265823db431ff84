// Package ratelimit counts login attempts per identifier and per origin
// over an exact sliding window.
//
// The limiter only answers questions; escalation (blocking an origin) is
// the caller's decision.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope distinguishes the two kinds of counters.
type Scope string

const (
	ScopeIdentifier Scope = "id"
	ScopeOrigin     Scope = "origin"
)

// Key addresses one counter.
type Key struct {
	Scope Scope
	Value string
}

// IdentifierKey returns the counter key for an already-normalized login identifier.
func IdentifierKey(normalized string) Key {
	return Key{Scope: ScopeIdentifier, Value: strings.TrimSpace(normalized)}
}

// OriginKey returns the counter key for a client origin.
func OriginKey(origin string) Key {
	return Key{Scope: ScopeOrigin, Value: strings.TrimSpace(origin)}
}

func (k Key) String() string {
	return "login:" + string(k.Scope) + ":" + k.Value
}

var errEmptyKey = errors.New("ratelimit: empty key")

// Decision is the result of Check or Reserve.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	// RetryAfter is set when denied: time until the oldest attempt leaves the window.
	RetryAfter time.Duration
	// Ticket is set when Reserve admitted an attempt; Release takes it back.
	Ticket string
}

// Limiter applies Config budgets on top of a Store.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Limiter. cfg must pass Validate.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Config returns the limiter's budgets.
func (l *Limiter) Config() Config { return l.cfg }

// Limit returns the attempt budget for k's scope.
func (l *Limiter) Limit(k Key) int {
	if k.Scope == ScopeOrigin {
		return l.cfg.OriginMaxAttempts
	}
	return l.cfg.MaxAttempts
}

// Check reports whether another attempt under k is allowed without recording one.
func (l *Limiter) Check(ctx context.Context, k Key) (Decision, error) {
	if k.Value == "" {
		return Decision{}, errEmptyKey
	}
	now := l.now()
	limit := l.Limit(k)

	n, oldest, err := l.store.Count(ctx, k.String(), now, l.cfg.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit check %s: %w", k.Scope, err)
	}

	d := Decision{Allowed: n < limit, Count: n, Limit: limit}
	if !d.Allowed {
		d.RetryAfter = l.retryAfter(oldest, now)
	}
	return d, nil
}

// Reserve records an attempt under k only if the budget still has room,
// as one atomic step. Concurrent callers can never be admitted past the limit.
func (l *Limiter) Reserve(ctx context.Context, k Key) (Decision, error) {
	if k.Value == "" {
		return Decision{}, errEmptyKey
	}
	now := l.now()
	limit := l.Limit(k)

	r, err := l.store.Reserve(ctx, k.String(), now, l.cfg.Window, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit reserve %s: %w", k.Scope, err)
	}
	d := Decision{Allowed: r.Admitted, Count: r.Count, Limit: limit, Ticket: r.Member}
	if !d.Allowed {
		d.RetryAfter = l.retryAfter(r.Oldest, now)
	}
	return d, nil
}

// Release returns an attempt admitted by Reserve.
func (l *Limiter) Release(ctx context.Context, k Key, ticket string) error {
	if k.Value == "" {
		return errEmptyKey
	}
	if ticket == "" {
		return nil
	}
	if err := l.store.Release(ctx, k.String(), ticket); err != nil {
		return fmt.Errorf("ratelimit release %s: %w", k.Scope, err)
	}
	return nil
}

func (l *Limiter) retryAfter(oldest, now time.Time) time.Duration {
	if oldest.IsZero() {
		return 0
	}
	return max(oldest.Add(l.cfg.Window).Sub(now), 0)
}

// RecordAttempt appends one attempt and returns the in-window count including it.
func (l *Limiter) RecordAttempt(ctx context.Context, k Key) (int, error) {
	if k.Value == "" {
		return 0, errEmptyKey
	}
	n, err := l.store.Add(ctx, k.String(), l.now(), l.cfg.Window)
	if err != nil {
		return 0, fmt.Errorf("ratelimit record %s: %w", k.Scope, err)
	}
	return n, nil
}

// Reset clears k's counter.
func (l *Limiter) Reset(ctx context.Context, k Key) error {
	if k.Value == "" {
		return errEmptyKey
	}
	if err := l.store.Reset(ctx, k.String()); err != nil {
		return fmt.Errorf("ratelimit reset %s: %w", k.Scope, err)
	}
	return nil
}
