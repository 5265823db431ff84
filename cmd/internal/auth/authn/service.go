package authn

import (
	"context"
	"errors"
	"log/slog"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/suspicion"
	"warden/cmd/internal/metrics"
)

// Deps are the collaborators of a Service. Detector is optional.
type Deps struct {
	Principals identity.Reader
	Verifier   identity.CredentialVerifier
	Sessions   *session.Service
	Limiter    *ratelimit.Limiter
	Blocklist  *blocklist.Service
	Trail      *audit.Trail
	Suspicion  *suspicion.Tracker
	Detector   *suspicion.Detector
}

// Service runs logins and validates sessions.
type Service struct {
	cfg        Config
	principals identity.Reader
	verifier   identity.CredentialVerifier
	sessions   *session.Service
	limiter    *ratelimit.Limiter
	blocks     *blocklist.Service
	trail      *audit.Trail
	tracker    *suspicion.Tracker
	detector   *suspicion.Detector
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(cfg Config, d Deps, log *slog.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Principals == nil || d.Verifier == nil || d.Sessions == nil || d.Limiter == nil ||
		d.Blocklist == nil || d.Trail == nil || d.Suspicion == nil {
		return nil, errors.New("authn: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfg:        cfg,
		principals: d.Principals,
		verifier:   d.Verifier,
		sessions:   d.Sessions,
		limiter:    d.Limiter,
		blocks:     d.Blocklist,
		trail:      d.Trail,
		tracker:    d.Suspicion,
		detector:   d.Detector,
		log:        log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// opContext bounds a store call made on behalf of the caller.
func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// bookContext bounds a bookkeeping write that must survive client cancellation.
func (s *Service) bookContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
}

func (s *Service) record(ctx context.Context, e audit.Entry, m RequestMeta) error {
	bctx, cancel := s.bookContext(ctx)
	defer cancel()
	_, err := s.trail.Record(bctx, e.Stamp(m.source()))
	return err
}

func canonicalOrEmpty(origin string) string {
	c, err := blocklist.Canonical(origin)
	if err != nil {
		return ""
	}
	return c
}

// Validate resolves token to a live session of an active principal.
//
// A request from an origin other than the one the session was created from
// is reported once as session_ip_mismatch and otherwise allowed, unless that
// report is the one that suspends the principal.
func (s *Service) Validate(ctx context.Context, tok string, meta RequestMeta) (SessionContext, error) {
	meta = meta.withCorrelation()
	meta.Origin = canonicalOrEmpty(meta.Origin)

	octx, cancel := s.opContext(ctx)
	view, err := s.sessions.Validate(octx, tok)
	cancel()
	if errors.Is(err, session.ErrInvalid) {
		s.metrics.Validation("invalid")
		return SessionContext{}, ErrInvalidSession
	}
	if err != nil {
		s.log.Error("auth.validate.fail", "correlation_id", meta.CorrelationID, "err", err)
		s.metrics.Validation("error")
		return SessionContext{}, systemError("validate session", err)
	}

	p := view.Principal
	if p.Status != identity.StatusActive {
		s.metrics.Validation("inactive")
		return SessionContext{}, ErrInvalidSession
	}

	if recorded := view.Fingerprint.Origin; meta.Origin != "" && recorded != "" && meta.Origin != recorded {
		bctx, cancel := s.bookContext(ctx)
		out, err := s.tracker.Report(bctx, p.ID, suspicion.ActivitySessionIPMismatch, map[string]any{
			"session_id":      view.SessionID,
			"recorded_origin": recorded,
			"current_origin":  meta.Origin,
		}, meta.source())
		cancel()
		if err != nil {
			s.log.Error("auth.validate.report.fail", "principal_id", p.ID, "correlation_id", meta.CorrelationID, "err", err)
			s.metrics.Validation("error")
			return SessionContext{}, systemError("report origin mismatch", err)
		}
		s.log.Warn("auth.validate.origin_mismatch",
			"principal_id", p.ID,
			"session_id", view.SessionID,
			"recorded_origin", recorded,
			"current_origin", meta.Origin,
			"correlation_id", meta.CorrelationID,
		)
		if out.Suspended {
			s.metrics.Validation("suspended")
			return SessionContext{}, ErrInvalidSession
		}
		s.metrics.Validation("origin_mismatch")
	} else {
		s.metrics.Validation("ok")
	}

	return SessionContext{
		SessionID:     view.SessionID,
		Principal:     viewOf(p),
		Origin:        meta.Origin,
		ClientAgent:   meta.ClientAgent,
		CorrelationID: meta.CorrelationID,
		ExpiresAt:     view.ExpiresAt,
	}, nil
}

// Logout revokes the session behind tok. Unknown or expired tokens are a no-op.
func (s *Service) Logout(ctx context.Context, tok string, meta RequestMeta) error {
	meta = meta.withCorrelation()
	meta.Origin = canonicalOrEmpty(meta.Origin)

	octx, cancel := s.opContext(ctx)
	rv, err := s.sessions.Revoke(octx, tok, session.ReasonUser)
	cancel()
	if err != nil {
		s.log.Error("auth.logout.fail", "correlation_id", meta.CorrelationID, "err", err)
		return systemError("logout", err)
	}
	if !rv.Found {
		return nil
	}

	if err := s.record(ctx, audit.Entry{
		Type:        audit.EventUserLogout,
		PrincipalID: rv.PrincipalID,
		EntityType:  audit.EntitySession,
		EntityID:    rv.SessionID,
		Action:      "logout",
	}, meta); err != nil {
		s.log.Error("auth.logout.audit.fail", "session_id", rv.SessionID, "correlation_id", meta.CorrelationID, "err", err)
		return systemError("audit logout", err)
	}

	s.log.Info("auth.logout", "principal_id", rv.PrincipalID, "session_id", rv.SessionID, "correlation_id", meta.CorrelationID)
	return nil
}
