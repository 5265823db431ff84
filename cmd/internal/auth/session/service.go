package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/identity/ids"
	"warden/cmd/security/token"
)

// PrincipalReader resolves the principal snapshot attached to a validated session.
type PrincipalReader interface {
	GetByID(ctx context.Context, id string) (identity.Principal, error)
}

// Issued is returned once, at login. Token is never retrievable again.
type Issued struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// View is a validated session with its principal snapshot.
type View struct {
	SessionID      string
	Principal      identity.Principal
	Fingerprint    Fingerprint
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// Revoked describes the outcome of a single-session revoke.
type Revoked struct {
	SessionID   string
	PrincipalID string
	Found       bool
}

// Info is the admin listing shape; it never carries the token digest.
type Info struct {
	SessionID      string      `json:"session_id"`
	PrincipalID    string      `json:"principal_id"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	Fingerprint    Fingerprint `json:"fingerprint"`
}

// Service issues, validates and revokes sessions.
type Service struct {
	cfg        Config
	store      Store
	principals PrincipalReader
	hasher     token.Hasher
	log        *slog.Logger
	now        func() time.Time
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

// WithHasher sets the token digest function (default: unkeyed SHA-256).
func WithHasher(h token.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, principals PrincipalReader, log *slog.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || principals == nil {
		return nil, errors.New("session: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfg:        cfg,
		store:      store,
		principals: principals,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if cfg.RequireHMAC && !s.hasher.HMAC() {
		return nil, ErrConfig
	}
	return s, nil
}

func (s *Service) ttl(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RememberMeTTL
	}
	return s.cfg.TTL
}

// Create mints a session for principalID. The plaintext token only exists in the result.
func (s *Service) Create(ctx context.Context, principalID string, rememberMe bool, fp Fingerprint) (Issued, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return Issued{}, errors.New("session: empty principal id")
	}

	now := s.now()
	tok, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, fmt.Errorf("mint session token: %w", err)
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, fmt.Errorf("mint session id: %w", err)
	}

	rec := Record{
		ID:             id,
		TokenHash:      s.hasher.Hash(tok),
		PrincipalID:    principalID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl(rememberMe)),
		LastActivityAt: now,
		Fingerprint:    fp,
		Active:         true,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrTokenCollision) {
			s.log.Error("session.create.collision", "principal_id", principalID)
		}
		return Issued{}, err
	}

	return Issued{Token: tok, SessionID: id, ExpiresAt: rec.ExpiresAt}, nil
}

func plausible(tok string) bool {
	return tok != "" && len(tok) <= token.MaxEncodedLen
}

// Validate refreshes and returns a live session. Every "no usable session"
// outcome is ErrInvalid; any other error means the store could not answer.
func (s *Service) Validate(ctx context.Context, tok string) (View, error) {
	tok = strings.TrimSpace(tok)
	if !plausible(tok) {
		return View{}, ErrInvalid
	}

	rec, err := s.store.Touch(ctx, s.hasher.Hash(tok), s.now())
	if errors.Is(err, errNotFound) {
		return View{}, ErrInvalid
	}
	if err != nil {
		return View{}, err
	}

	p, err := s.principals.GetByID(ctx, rec.PrincipalID)
	if identity.IsNotFound(err) {
		return View{}, ErrInvalid
	}
	if err != nil {
		return View{}, fmt.Errorf("load session principal: %w", err)
	}

	return View{
		SessionID:      rec.ID,
		Principal:      p,
		Fingerprint:    rec.Fingerprint,
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
		LastActivityAt: rec.LastActivityAt,
	}, nil
}

// Revoke closes the session behind tok. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, tok, reason string) (Revoked, error) {
	tok = strings.TrimSpace(tok)
	if !plausible(tok) {
		return Revoked{}, nil
	}
	rec, found, err := s.store.RevokeByHash(ctx, s.hasher.Hash(tok), reasonOr(reason), s.now())
	if err != nil {
		return Revoked{}, err
	}
	return Revoked{SessionID: rec.ID, PrincipalID: rec.PrincipalID, Found: found}, nil
}

// RevokeByID closes a session addressed by its public ID.
func (s *Service) RevokeByID(ctx context.Context, sessionID, reason string) (Revoked, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Revoked{}, nil
	}
	rec, found, err := s.store.RevokeByID(ctx, sessionID, reasonOr(reason), s.now())
	if err != nil {
		return Revoked{}, err
	}
	return Revoked{SessionID: rec.ID, PrincipalID: rec.PrincipalID, Found: found}, nil
}

// RevokeAll closes every active session of principalID.
func (s *Service) RevokeAll(ctx context.Context, principalID, reason string) (int64, error) {
	n, err := s.store.RevokeAll(ctx, strings.TrimSpace(principalID), reasonOr(reason), s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("session.revoke_all", "principal_id", principalID, "reason", reason, "count", n)
	}
	return n, nil
}

// ListActive returns a principal's live sessions, newest first.
func (s *Service) ListActive(ctx context.Context, principalID string) ([]Info, error) {
	recs, err := s.store.ListActive(ctx, strings.TrimSpace(principalID), s.now())
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(recs))
	for _, r := range recs {
		out = append(out, Info{
			SessionID:      r.ID,
			PrincipalID:    r.PrincipalID,
			CreatedAt:      r.CreatedAt,
			ExpiresAt:      r.ExpiresAt,
			LastActivityAt: r.LastActivityAt,
			Fingerprint:    r.Fingerprint,
		})
	}
	return out, nil
}

func reasonOr(reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return ReasonUser
}
