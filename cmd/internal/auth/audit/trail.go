package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/metrics"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxTopLimit     = 100
)

// Trail is the audit service used by every other component.
type Trail struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock overrides the server clock (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// NewTrail constructs a Trail over store.
func NewTrail(store Store, log *slog.Logger, opts ...Option) *Trail {
	if log == nil {
		log = slog.Default()
	}
	t := &Trail{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Record appends an event and returns its ID.
// Events are never dropped silently: a store failure is logged, counted and returned.
func (t *Trail) Record(ctx context.Context, in Entry) (string, error) {
	if strings.TrimSpace(string(in.Type)) == "" {
		return "", fmt.Errorf("%w: empty event type", ErrInvalid)
	}

	now := t.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	ev := Event{
		ID:            id,
		Type:          in.Type,
		PrincipalID:   strings.TrimSpace(in.PrincipalID),
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		Action:        in.Action,
		Metadata:      cloneMetadata(in.Metadata),
		Origin:        in.Origin,
		ClientAgent:   in.ClientAgent,
		CorrelationID: in.CorrelationID,
		OccurredAt:    now,
	}

	if err := t.store.Append(ctx, ev); err != nil {
		t.metrics.AuditFailed()
		t.log.Error("audit.record.fail", "err", err, "event_type", in.Type, "correlation_id", in.CorrelationID)
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}
	return id, nil
}

// Query returns one page of matching events, newest first.
// page is 1-based; pageSize is clamped to [1, MaxPageSize] with DefaultPageSize for non-positive values.
func (t *Trail) Query(ctx context.Context, f Filter, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	events, total, err := t.store.Query(ctx, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if events == nil {
		events = []Event{}
	}
	return Page{Events: events, Total: total, Page: page, PageSize: pageSize}, nil
}

// Count returns the number of matching events.
func (t *Trail) Count(ctx context.Context, f Filter) (int, error) {
	n, err := t.store.Count(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return n, nil
}

// CountSince counts events of one type for a principal in the trailing window ending now.
func (t *Trail) CountSince(ctx context.Context, typ EventType, principalID string, window time.Duration) (int, error) {
	return t.Count(ctx, Filter{Type: typ, PrincipalID: principalID, From: t.now().Add(-window)})
}

// Statistics summarizes the whole trail; Last24h is relative to the server clock.
func (t *Trail) Statistics(ctx context.Context) (Stats, error) {
	st, err := t.store.Stats(ctx, t.now().Add(-24*time.Hour))
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if st.ByType == nil {
		st.ByType = map[EventType]int{}
	}
	return st, nil
}

// MostActive ranks keys of dimension d by event count over the trailing window.
func (t *Trail) MostActive(ctx context.Context, d Dimension, window time.Duration, limit int) ([]Ranked, error) {
	if _, err := ParseDimension(string(d)); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", ErrInvalid)
	}
	if limit < 1 {
		limit = 10
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	out, err := t.store.Top(ctx, d, t.now().Add(-window), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if out == nil {
		out = []Ranked{}
	}
	return out, nil
}

// PurgeOlderThan deletes events older than days*24h and returns how many were removed.
// It is the only deletion path and is never invoked implicitly.
func (t *Trail) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalid)
	}
	cutoff := t.now().Add(-time.Duration(days) * 24 * time.Hour)

	n, err := t.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	t.log.Info("audit.purge", "days", days, "removed", n)
	return n, nil
}
