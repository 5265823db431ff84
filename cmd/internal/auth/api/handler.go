package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"warden/cmd/internal/auth/admin"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/authn"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/metrics"
	"warden/cmd/security/password"
)

// Deps are the services behind the HTTP surface. Only Auth is required;
// admin routes are registered when Admin, Trail, Blocks and Sessions are all set.
type Deps struct {
	Auth     *authn.Service
	Admin    *admin.Dispatcher
	Trail    *audit.Trail
	Blocks   *blocklist.Service
	Sessions *session.Service
	// Alerts serves /admin/alerts/ws when set.
	Alerts http.Handler
}

// Handler wires HTTP endpoints to the auth core.
type Handler struct {
	log *slog.Logger
	cfg Config

	auth     *authn.Service
	admin    *admin.Dispatcher
	trail    *audit.Trail
	blocks   *blocklist.Service
	sessions *session.Service
	alerts   http.Handler

	metrics *metrics.Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics instruments every registered route.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		if h != nil {
			h.metrics = m
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, d Deps, opts ...HandlerOption) (*Handler, error) {
	if d.Auth == nil {
		return nil, errors.New("authapi: nil auth service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		auth:     d.Auth,
		admin:    d.Admin,
		trail:    d.Trail,
		blocks:   d.Blocks,
		sessions: d.Sessions,
		alerts:   d.Alerts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

func (h *Handler) adminEnabled() bool {
	return h.cfg.AdminKey != "" && h.admin != nil && h.trail != nil && h.blocks != nil && h.sessions != nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.metrics.Instrument(pattern, fn))
	}

	route("/auth/login", h.handleLogin)
	route("/auth/session", h.handleSession)
	route("/auth/logout", h.handleLogout)
	route("/auth/password/score", h.handlePasswordScore)

	if !h.adminEnabled() {
		h.log.Info("authapi.admin.disabled")
		return
	}
	route("/admin/actions", h.requireAdmin(h.handleAdminAction))
	route("/admin/audit", h.requireAdmin(h.handleAuditQuery))
	route("/admin/audit/stats", h.requireAdmin(h.handleAuditStats))
	route("/admin/audit/top", h.requireAdmin(h.handleAuditTop))
	route("/admin/blocks", h.requireAdmin(h.handleBlocks))
	route("/admin/sessions", h.requireAdmin(h.handleSessions))
	if h.alerts != nil {
		// Not instrumented: the upgrade needs the raw ResponseWriter.
		mux.Handle("/admin/alerts/ws", h.requireAdmin(h.alerts.ServeHTTP))
	}
}

func (h *Handler) bounded(r *http.Request) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	meta := h.requestMeta(r)
	ctx, cancel := h.bounded(r)
	defer cancel()

	res, err := h.auth.Login(ctx, authn.LoginRequest{
		Identifier:    req.Identifier,
		Secret:        req.Secret,
		RememberMe:    req.RememberMe,
		Origin:        meta.Origin,
		ClientAgent:   meta.ClientAgent,
		CorrelationID: meta.CorrelationID,
	})

	var ie *authn.InputError
	switch {
	case err == nil:
		exp := res.ExpiresAt
		h.setSessionCookie(w, res.Token, exp)
		writeJSON(w, http.StatusOK, loginResponse{
			OK:            true,
			Token:         res.Token,
			SessionID:     res.SessionID,
			ExpiresAt:     &exp,
			Principal:     res.Principal,
			CorrelationID: res.CorrelationID,
		})
	case errors.As(err, &ie):
		writeFieldError(w, ie.Field, ie.Field+" "+ie.Message)
	case errors.Is(err, authn.ErrDenied) && res.Reason == authn.ReasonInactive:
		writeJSON(w, http.StatusForbidden, loginResponse{
			Message:       res.Message,
			Status:        res.Status,
			CorrelationID: res.CorrelationID,
		})
	case errors.Is(err, authn.ErrDenied):
		writeJSON(w, http.StatusUnauthorized, loginResponse{
			Message:       authn.GenericDenialMessage,
			CorrelationID: res.CorrelationID,
		})
	default:
		writeUnavailable(w, res.CorrelationID)
	}
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tok := h.sessionToken(r)
	if tok == "" {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{})
		return
	}

	meta := h.requestMeta(r)
	ctx, cancel := h.bounded(r)
	defer cancel()

	sc, err := h.auth.Validate(ctx, tok, meta)
	switch {
	case err == nil:
		exp := sc.ExpiresAt
		p := sc.Principal
		writeJSON(w, http.StatusOK, sessionResponse{OK: true, SessionID: sc.SessionID, ExpiresAt: &exp, Principal: &p})
	case errors.Is(err, authn.ErrInvalidSession):
		h.clearSessionCookie(w)
		writeJSON(w, http.StatusUnauthorized, sessionResponse{})
	default:
		writeUnavailable(w, meta.CorrelationID)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tok := h.sessionToken(r)
	h.clearSessionCookie(w)
	if tok == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	meta := h.requestMeta(r)
	ctx, cancel := h.bounded(r)
	defer cancel()

	if err := h.auth.Logout(ctx, tok, meta); err != nil {
		writeUnavailable(w, meta.CorrelationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req scoreRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}
	writeJSON(w, http.StatusOK, password.Score(req.Password))
}
