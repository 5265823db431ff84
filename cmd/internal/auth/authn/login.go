package authn

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/suspicion"
)

// attempt carries one login through the stages.
type attempt struct {
	rawIdentifier string
	identifier    string
	secret        string
	rememberMe    bool
	meta          RequestMeta

	idKey     ratelimit.Key
	originKey ratelimit.Key

	// Counts after this attempt was reserved at RATE_CHECK.
	idCount      int
	originCount  int
	originTicket string

	principal identity.Principal
	known     bool
}

// step is a stage's verdict: done reports that the login ended at this stage.
type step struct {
	res  LoginResult
	err  error
	done bool
}

var next = step{}

func (s *Service) validateLogin(req LoginRequest) (*attempt, error) {
	raw := strings.TrimSpace(req.Identifier)
	switch {
	case raw == "":
		return nil, inputError("identifier", "is required")
	case utf8.RuneCountInString(raw) > s.cfg.MaxIdentifierLen:
		return nil, inputError("identifier", "is too long")
	case !utf8.ValidString(raw):
		return nil, inputError("identifier", "must be valid UTF-8")
	}
	if req.Secret == "" {
		return nil, inputError("secret", "is required")
	}
	if len(req.Secret) > s.cfg.MaxSecretLen {
		return nil, inputError("secret", "is too long")
	}
	origin, err := blocklist.Canonical(req.Origin)
	if err != nil {
		return nil, inputError("origin", "is required")
	}

	meta := req.meta().withCorrelation()
	meta.Origin = origin
	norm := identity.NormalizeIdentifier(raw)
	return &attempt{
		rawIdentifier: raw,
		identifier:    norm,
		secret:        req.Secret,
		rememberMe:    req.RememberMe,
		meta:          meta,
		idKey:         ratelimit.IdentifierKey(norm),
		originKey:     ratelimit.OriginKey(origin),
	}, nil
}

// Login runs one login attempt. A refused login returns ErrDenied alongside a
// result whose Reason and Stage say where it stopped.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	a, err := s.validateLogin(req)
	if err != nil {
		s.metrics.Login("input")
		return LoginResult{Stage: StageStart}, err
	}

	if err := s.record(ctx, audit.Entry{
		Type:       audit.EventLoginAttempt,
		EntityType: audit.EntityOrigin,
		EntityID:   a.meta.Origin,
		Action:     "login",
		Metadata:   a.metadata(StageStart, nil),
	}, a.meta); err != nil {
		return s.fail(a, StageStart, "audit attempt", err)
	}

	stages := []func(context.Context, *attempt) step{
		s.blockCheck,
		s.rateCheck,
		s.credentialCheck,
		s.statusCheck,
	}
	for _, run := range stages {
		if st := run(ctx, a); st.done {
			return st.res, st.err
		}
	}
	return s.issue(ctx, a)
}

func (a *attempt) metadata(stage Stage, extra map[string]any) map[string]any {
	m := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		m[k] = v
	}
	m["identifier"] = a.identifier
	m["stage"] = string(stage)
	return m
}

func (s *Service) fail(a *attempt, stage Stage, op string, err error) (LoginResult, error) {
	s.log.Error("auth.login.fail",
		"stage", stage,
		"op", op,
		"origin", a.meta.Origin,
		"correlation_id", a.meta.CorrelationID,
		"err", err,
	)
	s.metrics.Login("error")
	return LoginResult{Stage: stage, Message: SystemErrorMessage, CorrelationID: a.meta.CorrelationID}, systemError("login: "+op, err)
}

func (s *Service) failStep(a *attempt, stage Stage, op string, err error) step {
	res, err := s.fail(a, stage, op, err)
	return step{res: res, err: err, done: true}
}

func (s *Service) deny(a *attempt, stage Stage, reason Reason) step {
	s.log.Info("auth.login.denied",
		"stage", stage,
		"reason", reason,
		"origin", a.meta.Origin,
		"correlation_id", a.meta.CorrelationID,
	)
	s.metrics.Login(string(reason))
	return step{
		res: LoginResult{
			Stage:         stage,
			Reason:        reason,
			Message:       GenericDenialMessage,
			CorrelationID: a.meta.CorrelationID,
		},
		err:  ErrDenied,
		done: true,
	}
}

func (s *Service) blockCheck(ctx context.Context, a *attempt) step {
	octx, cancel := s.opContext(ctx)
	blocked, err := s.blocks.IsBlocked(octx, a.meta.Origin)
	cancel()
	if err != nil {
		return s.failStep(a, StageBlockCheck, "block check", err)
	}
	if !blocked {
		return next
	}

	if err := s.record(ctx, audit.Entry{
		Type:       audit.EventLoginBlockedOrigin,
		EntityType: audit.EntityOrigin,
		EntityID:   a.meta.Origin,
		Action:     "deny",
		Metadata:   a.metadata(StageBlockCheck, nil),
	}, a.meta); err != nil {
		return s.failStep(a, StageBlockCheck, "audit blocked origin", err)
	}
	return s.deny(a, StageBlockCheck, ReasonBlocked)
}

// rateCheck reserves this attempt against both budgets before any secret is
// looked at. A refused attempt is still counted on every key that did not admit it.
func (s *Service) rateCheck(ctx context.Context, a *attempt) step {
	keys := []ratelimit.Key{a.idKey, a.originKey}
	for i, k := range keys {
		bctx, cancel := s.bookContext(ctx)
		d, err := s.limiter.Reserve(bctx, k)
		cancel()
		if err != nil {
			return s.failStep(a, StageRateCheck, "rate reserve", err)
		}
		if d.Allowed {
			if k.Scope == ratelimit.ScopeOrigin {
				a.originCount, a.originTicket = d.Count, d.Ticket
			} else {
				a.idCount = d.Count
			}
			continue
		}

		s.metrics.Limited(string(k.Scope))
		if err := s.recordAttempts(ctx, keys[i:]); err != nil {
			return s.failStep(a, StageRateCheck, "record attempt", err)
		}
		if err := s.record(ctx, audit.Entry{
			Type:       audit.EventLoginRateLimited,
			EntityType: audit.EntityOrigin,
			EntityID:   a.meta.Origin,
			Action:     "deny",
			Metadata: a.metadata(StageRateCheck, map[string]any{
				"scope":               string(k.Scope),
				"count":               d.Count,
				"limit":               d.Limit,
				"retry_after_seconds": int(d.RetryAfter.Seconds()),
			}),
		}, a.meta); err != nil {
			return s.failStep(a, StageRateCheck, "audit rate limit", err)
		}
		if err := s.blockOrigin(ctx, a, StageRateCheck, "rate_limited"); err != nil {
			return s.failStep(a, StageRateCheck, "block origin", err)
		}
		return s.deny(a, StageRateCheck, ReasonRateLimited)
	}
	return next
}

// recordAttempts counts a refused attempt on a context the client cannot cancel.
func (s *Service) recordAttempts(ctx context.Context, keys []ratelimit.Key) error {
	bctx, cancel := s.bookContext(ctx)
	defer cancel()
	for _, k := range keys {
		if _, err := s.limiter.RecordAttempt(bctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) blockOrigin(ctx context.Context, a *attempt, stage Stage, reason string) error {
	bctx, cancel := s.bookContext(ctx)
	b, err := s.blocks.Block(bctx, a.meta.Origin, s.cfg.BlockDuration, reason)
	cancel()
	if err != nil {
		return err
	}
	s.metrics.Blocked()

	extra := map[string]any{"reason": reason, "permanent": b.ExpiresAt == nil}
	if b.ExpiresAt != nil {
		extra["expires_at"] = b.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return s.record(ctx, audit.Entry{
		Type:       audit.EventOriginBlocked,
		EntityType: audit.EntityOrigin,
		EntityID:   b.Origin,
		Action:     "auto_block",
		Metadata:   a.metadata(stage, extra),
	}, a.meta)
}

func (s *Service) credentialCheck(ctx context.Context, a *attempt) step {
	octx, cancel := s.opContext(ctx)
	p, err := s.principals.GetByIdentifier(octx, a.identifier)
	cancel()
	switch {
	case err == nil:
		a.principal, a.known = p, true
	case identity.IsNotFound(err):
	default:
		return s.failStep(a, StageCredentialCheck, "load principal", err)
	}

	if err := s.scanIdentifier(ctx, a); err != nil {
		return s.failStep(a, StageCredentialCheck, "report input", err)
	}

	// Unknown principals verify against a dummy hash with an empty id.
	vctx, cancel := context.WithTimeout(ctx, s.cfg.CredentialTimeout)
	ok, err := s.verifier.Verify(vctx, a.principal.ID, a.secret)
	cancel()
	if err != nil {
		return s.failStep(a, StageCredentialCheck, "verify credential", err)
	}
	if ok {
		return next
	}

	idN, originN := a.idCount, a.originCount
	if err := s.record(ctx, audit.Entry{
		Type:        audit.EventLoginFailed,
		PrincipalID: a.principal.ID,
		EntityType:  audit.EntityOrigin,
		EntityID:    a.meta.Origin,
		Action:      "verify",
		Metadata: a.metadata(StageCredentialCheck, map[string]any{
			"attempts":        idN,
			"origin_attempts": originN,
		}),
	}, a.meta); err != nil {
		return s.failStep(a, StageCredentialCheck, "audit failure", err)
	}

	// The attempt that would exceed the budget is refused, and the origin
	// blocked, at the next RATE_CHECK.
	idLimit := s.limiter.Limit(a.idKey)
	if a.known && idN >= idLimit {
		bctx, cancel := s.bookContext(ctx)
		_, err := s.tracker.Report(bctx, a.principal.ID, suspicion.ActivityRepeatedCredentialFailure, map[string]any{
			"attempts": idN,
			"limit":    idLimit,
		}, a.meta.source())
		cancel()
		if err != nil {
			return s.failStep(a, StageCredentialCheck, "report repeated failure", err)
		}
	}

	return s.deny(a, StageCredentialCheck, ReasonInvalidCredentials)
}

// scanIdentifier reports identifiers that look like probes. It never refuses the login.
func (s *Service) scanIdentifier(ctx context.Context, a *attempt) error {
	if s.detector == nil {
		return nil
	}
	pattern, hit := s.detector.Scan(a.rawIdentifier)
	if !hit {
		return nil
	}
	s.log.Warn("auth.login.suspicious_input", "origin", a.meta.Origin, "correlation_id", a.meta.CorrelationID)

	meta := map[string]any{"field": "identifier", "pattern": pattern}
	if !a.known {
		meta["activity_type"] = string(suspicion.ActivityMaliciousInput)
		return s.record(ctx, audit.Entry{
			Type:       audit.EventSuspiciousActivity,
			EntityType: audit.EntityOrigin,
			EntityID:   a.meta.Origin,
			Action:     string(suspicion.ActivityMaliciousInput),
			Metadata:   a.metadata(StageCredentialCheck, meta),
		}, a.meta)
	}

	bctx, cancel := s.bookContext(ctx)
	defer cancel()
	out, err := s.tracker.Report(bctx, a.principal.ID, suspicion.ActivityMaliciousInput, meta, a.meta.source())
	if err != nil {
		return err
	}
	if out.Suspended {
		a.principal.Status = identity.StatusSuspended
	}
	return nil
}

func (s *Service) statusCheck(ctx context.Context, a *attempt) step {
	st := a.principal.Status
	if st == identity.StatusActive {
		return next
	}

	if err := s.record(ctx, audit.Entry{
		Type:        audit.EventLoginStatusDenied,
		PrincipalID: a.principal.ID,
		EntityType:  audit.EntityPrincipal,
		EntityID:    a.principal.ID,
		Action:      "deny",
		Metadata:    a.metadata(StageStatusCheck, map[string]any{"status": string(st)}),
	}, a.meta); err != nil {
		return s.failStep(a, StageStatusCheck, "audit status denial", err)
	}

	s.log.Info("auth.login.denied",
		"stage", StageStatusCheck,
		"reason", ReasonInactive,
		"status", st,
		"principal_id", a.principal.ID,
		"correlation_id", a.meta.CorrelationID,
	)
	s.metrics.Login(string(ReasonInactive))
	return step{
		res: LoginResult{
			Stage:         StageStatusCheck,
			Reason:        ReasonInactive,
			Message:       st.DenialMessage(),
			Status:        st,
			CorrelationID: a.meta.CorrelationID,
		},
		err:  ErrDenied,
		done: true,
	}
}

func (s *Service) issue(ctx context.Context, a *attempt) (LoginResult, error) {
	p := a.principal

	octx, cancel := s.opContext(ctx)
	issued, err := s.sessions.Create(octx, p.ID, a.rememberMe, session.Fingerprint{
		Origin:      a.meta.Origin,
		ClientAgent: a.meta.ClientAgent,
	})
	cancel()
	if err != nil {
		return s.fail(a, StageSessionIssue, "create session", err)
	}

	bctx, cancel := s.bookContext(ctx)
	if err := s.limiter.Reset(bctx, a.idKey); err != nil {
		s.log.Warn("auth.login.reset.fail", "principal_id", p.ID, "correlation_id", a.meta.CorrelationID, "err", err)
	}
	// Successful logins do not spend the origin's failure budget.
	if err := s.limiter.Release(bctx, a.originKey, a.originTicket); err != nil {
		s.log.Warn("auth.login.release.fail", "origin", a.meta.Origin, "correlation_id", a.meta.CorrelationID, "err", err)
	}
	cancel()

	if err := s.record(ctx, audit.Entry{
		Type:        audit.EventLoginSuccess,
		PrincipalID: p.ID,
		EntityType:  audit.EntitySession,
		EntityID:    issued.SessionID,
		Action:      "login",
		Metadata: a.metadata(StageSessionIssue, map[string]any{
			"remember_me": a.rememberMe,
			"expires_at":  issued.ExpiresAt.UTC().Format(time.RFC3339),
		}),
	}, a.meta); err != nil {
		// A session must not outlive a missing login_success record.
		bctx, cancel := s.bookContext(ctx)
		if _, rerr := s.sessions.RevokeByID(bctx, issued.SessionID, session.ReasonSystem); rerr != nil {
			s.log.Error("auth.login.rollback.fail", "session_id", issued.SessionID, "err", rerr)
		}
		cancel()
		return s.fail(a, StageSessionIssue, "audit success", err)
	}

	s.log.Info("auth.login.success",
		"principal_id", p.ID,
		"session_id", issued.SessionID,
		"remember_me", a.rememberMe,
		"correlation_id", a.meta.CorrelationID,
	)
	s.metrics.Login("success")

	v := viewOf(p)
	return LoginResult{
		OK:            true,
		Stage:         StageDone,
		Token:         issued.Token,
		SessionID:     issued.SessionID,
		ExpiresAt:     issued.ExpiresAt,
		Principal:     &v,
		CorrelationID: a.meta.CorrelationID,
	}, nil
}
