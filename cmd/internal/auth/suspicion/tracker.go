// Package suspicion records suspicious activity per principal and
// suspends principals that accumulate too many reports in a window.
package suspicion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/metrics"
)

// Activity names a kind of suspicious behaviour.
type Activity string

const (
	ActivitySessionIPMismatch         Activity = "session_ip_mismatch"
	ActivityMaliciousInput            Activity = "malicious_input"
	ActivityRepeatedCredentialFailure Activity = "repeated_credential_failure"
)

// AlertAccountSuspended is the alert kind sent when a principal is auto-suspended.
const AlertAccountSuspended = "account_suspended"

// StatusStore performs the guarded status change and reads the result back.
type StatusStore interface {
	GetByID(ctx context.Context, id string) (identity.Principal, error)
	TransitionStatus(ctx context.Context, id string, to identity.Status, from []identity.Status, now time.Time) (bool, error)
}

// SessionRevoker closes a principal's sessions.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, principalID, reason string) (int64, error)
}

// Alerter hands an alert off without blocking.
type Alerter interface {
	Notify(principalID, kind string)
}

// Outcome is the result of one report.
type Outcome struct {
	// Count is the principal's report count in the window, including this one.
	Count int
	// Suspended is true only for the report that performed the suspension.
	Suspended bool
}

// Tracker is the suspicion service.
type Tracker struct {
	cfg        Config
	trail      *audit.Trail
	principals StatusStore
	sessions   SessionRevoker
	alerts     Alerter
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time

	// flagMu serializes the flag-exists check with the flag write.
	flagMu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker constructs a Tracker. alerts may be nil.
func NewTracker(cfg Config, trail *audit.Trail, principals StatusStore, sessions SessionRevoker, alerts Alerter, log *slog.Logger, opts ...Option) (*Tracker, error) {
	if cfg.Threshold < 1 || cfg.Window <= 0 {
		return nil, ErrConfig
	}
	if trail == nil || principals == nil || sessions == nil {
		return nil, errors.New("suspicion: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		cfg:        cfg,
		trail:      trail,
		principals: principals,
		sessions:   sessions,
		alerts:     alerts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// suspendable lists the statuses auto-suspension may move away from.
// Banned and already-suspended principals are left alone.
var suspendable = []identity.Status{identity.StatusActive, identity.StatusPendingVerification}

// Report records one suspicious activity for principalID and suspends the
// principal once the windowed count reaches the threshold. Only the report
// that wins the status transition raises an alert; every report past the
// threshold re-checks that sessions are revoked and the account is flagged.
func (t *Tracker) Report(ctx context.Context, principalID string, activity Activity, metadata map[string]any, src audit.Source) (Outcome, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" || activity == "" {
		return Outcome{}, fmt.Errorf("%w: principal and activity are required", audit.ErrInvalid)
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["activity_type"] = string(activity)

	if _, err := t.trail.Record(ctx, audit.Entry{
		Type:        audit.EventSuspiciousActivity,
		PrincipalID: principalID,
		EntityType:  audit.EntityPrincipal,
		EntityID:    principalID,
		Action:      string(activity),
		Metadata:    meta,
	}.Stamp(src)); err != nil {
		return Outcome{}, err
	}
	t.metrics.Suspicion(string(activity))

	n, err := t.trail.CountSince(ctx, audit.EventSuspiciousActivity, principalID, t.cfg.Window)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Count: n}
	if n < t.cfg.Threshold {
		return out, nil
	}

	now := t.now()
	won, err := t.principals.TransitionStatus(ctx, principalID, identity.StatusSuspended, suspendable, now)
	if err != nil {
		if identity.IsNotFound(err) {
			return out, nil
		}
		return out, fmt.Errorf("suspend principal: %w", err)
	}
	if !won {
		p, err := t.principals.GetByID(ctx, principalID)
		switch {
		case identity.IsNotFound(err):
			return out, nil
		case err != nil:
			return out, fmt.Errorf("load principal: %w", err)
		case p.Status != identity.StatusSuspended:
			return out, nil
		}
		// An earlier suspension may have stopped before finishing.
		return out, t.settle(ctx, principalID, p.UpdatedAt, n, activity, src)
	}

	out.Suspended = true
	t.metrics.Suspended()
	t.log.Warn("suspicion.suspend", "principal_id", principalID, "count", n, "threshold", t.cfg.Threshold, "correlation_id", src.CorrelationID)

	err = t.settle(ctx, principalID, now, n, activity, src)
	if t.alerts != nil {
		t.alerts.Notify(principalID, AlertAccountSuspended)
	}
	return out, err
}

// settle brings a suspended principal to its end state: no live sessions and
// one account_flagged event after the suspension at since. Both steps are
// idempotent, so any later report can finish a settle that failed part-way.
func (t *Tracker) settle(ctx context.Context, principalID string, since time.Time, n int, activity Activity, src audit.Source) error {
	var errs []error
	if _, err := t.sessions.RevokeAll(ctx, principalID, session.ReasonAccountSuspended); err != nil {
		t.log.Error("suspicion.revoke.fail", "principal_id", principalID, "err", err)
		errs = append(errs, fmt.Errorf("revoke suspended principal sessions: %w", err))
	}
	if err := t.flag(ctx, principalID, since, n, activity, src); err != nil {
		t.log.Error("suspicion.flag.fail", "principal_id", principalID, "err", err)
		errs = append(errs, fmt.Errorf("flag suspended principal: %w", err))
	}
	return errors.Join(errs...)
}

func (t *Tracker) flag(ctx context.Context, principalID string, since time.Time, n int, activity Activity, src audit.Source) error {
	t.flagMu.Lock()
	defer t.flagMu.Unlock()

	have, err := t.trail.Count(ctx, audit.Filter{Type: audit.EventAccountFlagged, PrincipalID: principalID, From: since})
	if err != nil {
		return err
	}
	if have > 0 {
		return nil
	}
	_, err = t.trail.Record(ctx, audit.Entry{
		Type:        audit.EventAccountFlagged,
		PrincipalID: principalID,
		EntityType:  audit.EntityPrincipal,
		EntityID:    principalID,
		Action:      "auto_suspend",
		Metadata: map[string]any{
			"count":         n,
			"threshold":     t.cfg.Threshold,
			"window":        t.cfg.Window.String(),
			"last_activity": string(activity),
		},
	}.Stamp(src))
	return err
}
