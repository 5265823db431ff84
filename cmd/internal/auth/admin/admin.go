// Package admin executes operator actions against the security core.
//
// Every action is a Command tagged with an Action; Dispatcher.Execute
// switches on the tag and writes one audit event naming the acting admin.
// Reinstating a suspended principal is only possible through here.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/metrics"
)

// Action names an operator command.
type Action string

const (
	ActionBlockOrigin             Action = "block_origin"
	ActionUnblockOrigin           Action = "unblock_origin"
	ActionRevokeSession           Action = "revoke_session"
	ActionRevokePrincipalSessions Action = "revoke_principal_sessions"
	ActionSetPrincipalStatus      Action = "set_principal_status"
	ActionPurgeAudit              Action = "purge_audit"
)

var (
	ErrUnknownAction = errors.New("unknown admin action")
	ErrInvalid       = errors.New("invalid admin command")
	ErrNotFound      = errors.New("admin target not found")
)

// Command is one operator request. Only the fields relevant to Action are read.
type Command struct {
	Action          Action          `json:"action"`
	Origin          string          `json:"origin,omitempty"`
	DurationSeconds int64           `json:"duration_seconds,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	PrincipalID     string          `json:"principal_id,omitempty"`
	Status          identity.Status `json:"status,omitempty"`
	Days            int             `json:"days,omitempty"`
}

// Result reports what an action changed.
type Result struct {
	Action   Action           `json:"action"`
	Affected int64            `json:"affected"`
	Block    *blocklist.Block `json:"block,omitempty"`
	Status   identity.Status  `json:"status,omitempty"`
}

// StatusSetter is the slice of identity.Store admin needs.
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, to identity.Status, now time.Time) (identity.Principal, error)
}

// Dispatcher runs admin commands.
type Dispatcher struct {
	blocks     *blocklist.Service
	sessions   *session.Service
	principals StatusSetter
	trail      *audit.Trail
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDispatcher(blocks *blocklist.Service, sessions *session.Service, principals StatusSetter, trail *audit.Trail, log *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if blocks == nil || sessions == nil || principals == nil || trail == nil {
		return nil, errors.New("admin: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		blocks:     blocks,
		sessions:   sessions,
		principals: principals,
		trail:      trail,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

// Execute runs cmd on behalf of adminID. The action and its audit record
// succeed or the call returns an error.
func (d *Dispatcher) Execute(ctx context.Context, adminID string, cmd Command, src audit.Source) (Result, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return Result{}, invalid("admin id is required")
	}

	var (
		res   Result
		entry audit.Entry
		err   error
	)
	switch cmd.Action {
	case ActionBlockOrigin:
		res, entry, err = d.blockOrigin(ctx, cmd)
	case ActionUnblockOrigin:
		res, entry, err = d.unblockOrigin(ctx, cmd)
	case ActionRevokeSession:
		res, entry, err = d.revokeSession(ctx, cmd)
	case ActionRevokePrincipalSessions:
		res, entry, err = d.revokePrincipalSessions(ctx, cmd)
	case ActionSetPrincipalStatus:
		res, entry, err = d.setPrincipalStatus(ctx, cmd)
	case ActionPurgeAudit:
		res, entry, err = d.purgeAudit(ctx, cmd)
	default:
		d.metrics.Admin(string(cmd.Action), "unknown")
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	if err != nil {
		d.metrics.Admin(string(cmd.Action), "error")
		d.log.Warn("admin.action.fail", "action", cmd.Action, "admin_id", adminID, "err", err)
		return Result{}, err
	}
	res.Action = cmd.Action

	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["admin_id"] = adminID
	entry.Metadata["affected"] = res.Affected
	if _, err := d.trail.Record(ctx, entry.Stamp(src)); err != nil {
		d.metrics.Admin(string(cmd.Action), "error")
		return Result{}, err
	}

	d.metrics.Admin(string(cmd.Action), "ok")
	d.log.Info("admin.action", "action", cmd.Action, "admin_id", adminID, "affected", res.Affected, "correlation_id", src.CorrelationID)
	return res, nil
}

func (d *Dispatcher) blockOrigin(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	if cmd.DurationSeconds < 0 {
		return Result{}, audit.Entry{}, invalid("duration_seconds must not be negative")
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "admin"
	}
	b, err := d.blocks.Block(ctx, cmd.Origin, time.Duration(cmd.DurationSeconds)*time.Second, reason)
	if errors.Is(err, blocklist.ErrInvalidOrigin) {
		return Result{}, audit.Entry{}, invalid("origin is required")
	}
	if err != nil {
		return Result{}, audit.Entry{}, err
	}
	return Result{Affected: 1, Block: &b}, audit.Entry{
		Type:       audit.EventOriginBlocked,
		EntityType: audit.EntityOrigin,
		EntityID:   b.Origin,
		Action:     string(ActionBlockOrigin),
		Metadata: map[string]any{
			"reason":           reason,
			"duration_seconds": cmd.DurationSeconds,
			"permanent":        b.ExpiresAt == nil,
		},
	}, nil
}

func (d *Dispatcher) unblockOrigin(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	removed, err := d.blocks.Unblock(ctx, cmd.Origin)
	if errors.Is(err, blocklist.ErrInvalidOrigin) {
		return Result{}, audit.Entry{}, invalid("origin is required")
	}
	if err != nil {
		return Result{}, audit.Entry{}, err
	}
	canonical, _ := blocklist.Canonical(cmd.Origin)
	res := Result{}
	if removed {
		res.Affected = 1
	}
	return res, audit.Entry{
		Type:       audit.EventOriginUnblocked,
		EntityType: audit.EntityOrigin,
		EntityID:   canonical,
		Action:     string(ActionUnblockOrigin),
	}, nil
}

func (d *Dispatcher) revokeSession(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return Result{}, audit.Entry{}, invalid("session_id is required")
	}
	rv, err := d.sessions.RevokeByID(ctx, id, session.ReasonAdmin)
	if err != nil {
		return Result{}, audit.Entry{}, err
	}
	if !rv.Found {
		return Result{}, audit.Entry{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return Result{Affected: 1}, audit.Entry{
		Type:        audit.EventSessionRevoked,
		PrincipalID: rv.PrincipalID,
		EntityType:  audit.EntitySession,
		EntityID:    rv.SessionID,
		Action:      string(ActionRevokeSession),
		Metadata:    map[string]any{"reason": session.ReasonAdmin},
	}, nil
}

func (d *Dispatcher) revokePrincipalSessions(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	pid := strings.TrimSpace(cmd.PrincipalID)
	if pid == "" {
		return Result{}, audit.Entry{}, invalid("principal_id is required")
	}
	n, err := d.sessions.RevokeAll(ctx, pid, session.ReasonAdmin)
	if err != nil {
		return Result{}, audit.Entry{}, err
	}
	return Result{Affected: n}, audit.Entry{
		Type:        audit.EventSessionRevoked,
		PrincipalID: pid,
		EntityType:  audit.EntityPrincipal,
		EntityID:    pid,
		Action:      string(ActionRevokePrincipalSessions),
		Metadata:    map[string]any{"reason": session.ReasonAdmin},
	}, nil
}

// setPrincipalStatus changes status unconditionally. Moving a principal out
// of active also closes its sessions.
func (d *Dispatcher) setPrincipalStatus(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	pid := strings.TrimSpace(cmd.PrincipalID)
	if pid == "" {
		return Result{}, audit.Entry{}, invalid("principal_id is required")
	}
	if !cmd.Status.Valid() {
		return Result{}, audit.Entry{}, invalid("status is unknown")
	}

	p, err := d.principals.SetStatus(ctx, pid, cmd.Status, d.now())
	if identity.IsNotFound(err) {
		return Result{}, audit.Entry{}, fmt.Errorf("%w: principal %s", ErrNotFound, pid)
	}
	if err != nil {
		return Result{}, audit.Entry{}, err
	}

	res := Result{Affected: 1, Status: p.Status}
	var closed int64
	if p.Status != identity.StatusActive {
		closed, err = d.sessions.RevokeAll(ctx, pid, session.ReasonAdmin)
		if err != nil {
			return Result{}, audit.Entry{}, err
		}
	}
	return res, audit.Entry{
		Type:        audit.EventPrincipalStatusChanged,
		PrincipalID: pid,
		EntityType:  audit.EntityPrincipal,
		EntityID:    pid,
		Action:      string(ActionSetPrincipalStatus),
		Metadata: map[string]any{
			"status":          string(p.Status),
			"sessions_closed": closed,
			"reason":          strings.TrimSpace(cmd.Reason),
		},
	}, nil
}

func (d *Dispatcher) purgeAudit(ctx context.Context, cmd Command) (Result, audit.Entry, error) {
	if cmd.Days < 1 {
		return Result{}, audit.Entry{}, invalid("days must be at least 1")
	}
	n, err := d.trail.PurgeOlderThan(ctx, cmd.Days)
	if err != nil {
		return Result{}, audit.Entry{}, err
	}
	return Result{Affected: n}, audit.Entry{
		Type:       audit.EventAuditPurged,
		EntityType: audit.EntityAudit,
		Action:     string(ActionPurgeAudit),
		Metadata:   map[string]any{"days": cmd.Days},
	}, nil
}
