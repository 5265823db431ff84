// Package blocklist tracks client origins that are refused before any
// credential work happens.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"
)

var ErrInvalidOrigin = errors.New("blocklist: invalid origin")

// Block is one blocklist entry. A nil ExpiresAt means the block is permanent.
type Block struct {
	Origin    string     `json:"origin"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the block is in effect at now.
func (b Block) ActiveAt(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// Store persists blocks keyed by canonical origin.
type Store interface {
	// Upsert inserts or replaces the entry for b.Origin; last write wins, CreatedAt is preserved.
	Upsert(ctx context.Context, b Block) error
	Active(ctx context.Context, origin string, now time.Time) (bool, error)
	// Delete removes the entry and reports whether one existed.
	Delete(ctx context.Context, origin string) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]Block, error)
}

// Canonical normalizes origin. IP literals are reduced to their canonical
// text form (IPv4-mapped IPv6 unmapped, zones dropped); anything else is
// trimmed and lower-cased.
func Canonical(origin string) (string, error) {
	v := strings.TrimSpace(origin)
	if v == "" {
		return "", ErrInvalidOrigin
	}
	if addr, err := netip.ParseAddr(v); err == nil {
		return addr.Unmap().WithZone("").String(), nil
	}
	if ap, err := netip.ParseAddrPort(v); err == nil {
		return ap.Addr().Unmap().WithZone("").String(), nil
	}
	return strings.ToLower(v), nil
}

// Service is the blocklist used by the login flow and the admin surface.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Block refuses origin for d. d == 0 blocks permanently; negative d is rejected.
// Re-blocking an origin overwrites the previous reason and expiry.
func (s *Service) Block(ctx context.Context, origin string, d time.Duration, reason string) (Block, error) {
	o, err := Canonical(origin)
	if err != nil {
		return Block{}, err
	}
	if d < 0 {
		return Block{}, fmt.Errorf("blocklist: negative duration %s", d)
	}

	now := s.now()
	b := Block{Origin: o, Reason: strings.TrimSpace(reason), CreatedAt: now, UpdatedAt: now}
	if d > 0 {
		exp := now.Add(d)
		b.ExpiresAt = &exp
	}

	if err := s.store.Upsert(ctx, b); err != nil {
		return Block{}, fmt.Errorf("block origin: %w", err)
	}
	s.log.Info("blocklist.block", "origin", o, "reason", b.Reason, "permanent", b.ExpiresAt == nil)
	return b, nil
}

// IsBlocked reports whether origin currently has an unexpired block.
func (s *Service) IsBlocked(ctx context.Context, origin string) (bool, error) {
	o, err := Canonical(origin)
	if err != nil {
		return false, err
	}
	ok, err := s.store.Active(ctx, o, s.now())
	if err != nil {
		return false, fmt.Errorf("check origin block: %w", err)
	}
	return ok, nil
}

// Unblock removes any entry for origin. It is idempotent.
func (s *Service) Unblock(ctx context.Context, origin string) (bool, error) {
	o, err := Canonical(origin)
	if err != nil {
		return false, err
	}
	removed, err := s.store.Delete(ctx, o)
	if err != nil {
		return false, fmt.Errorf("unblock origin: %w", err)
	}
	if removed {
		s.log.Info("blocklist.unblock", "origin", o)
	}
	return removed, nil
}

// List returns blocks in effect now, most recently updated first.
func (s *Service) List(ctx context.Context) ([]Block, error) {
	out, err := s.store.ListActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list origin blocks: %w", err)
	}
	if out == nil {
		out = []Block{}
	}
	return out, nil
}
