package authapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/auth/admin"
	"warden/cmd/internal/auth/audit"
)

const (
	AdminKeyHeader = "X-Admin-Key"
	AdminIDHeader  = "X-Admin-ID"
)

// requireAdmin checks the shared admin key and the acting admin's id.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !secureStringEqual(strings.TrimSpace(r.Header.Get(AdminKeyHeader)), h.cfg.AdminKey) {
			h.log.Warn("authapi.admin.denied", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin key required")
			return
		}
		adminID := strings.TrimSpace(r.Header.Get(AdminIDHeader))
		if !ids.ValidCorrelationID(adminID) {
			writeFieldError(w, "admin_id", AdminIDHeader+" header is required")
			return
		}
		r.Header.Set(AdminIDHeader, adminID)
		next(w, r)
	}
}

func (h *Handler) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd admin.Command
	if !readBody(w, r, h.cfg.MaxBodyBytes, &cmd) {
		return
	}

	meta := h.requestMeta(r)
	ctx, cancel := h.bounded(r)
	defer cancel()

	res, err := h.admin.Execute(ctx, r.Header.Get(AdminIDHeader), cmd, audit.Source{
		Origin:        meta.Origin,
		ClientAgent:   meta.ClientAgent,
		CorrelationID: meta.CorrelationID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, admin.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "unknown_action", "unknown action")
	case errors.Is(err, admin.ErrInvalid):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, admin.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "target not found")
	default:
		h.log.Error("authapi.admin.action.fail", "action", cmd.Action, "correlation_id", meta.CorrelationID, "err", err)
		writeUnavailable(w, meta.CorrelationID)
	}
}

func parseTimeParam(q string) (time.Time, error) {
	if q == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, q)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		writeFieldError(w, "from", "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		writeFieldError(w, "to", "to must be RFC3339")
		return
	}
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeFieldError(w, "page", "page must be a number")
		return
	}
	pageSize, err := intParam(q.Get("page_size"), audit.DefaultPageSize)
	if err != nil {
		writeFieldError(w, "page_size", "page_size must be a number")
		return
	}

	ctx, cancel := h.bounded(r)
	defer cancel()

	res, err := h.trail.Query(ctx, audit.Filter{
		Type:        audit.EventType(strings.TrimSpace(q.Get("type"))),
		PrincipalID: strings.TrimSpace(q.Get("principal_id")),
		EntityType:  strings.TrimSpace(q.Get("entity_type")),
		Origin:      strings.TrimSpace(q.Get("origin")),
		From:        from,
		To:          to,
		Search:      strings.TrimSpace(q.Get("q")),
	}, page, pageSize)
	if err != nil {
		h.log.Error("authapi.audit.query.fail", "err", err)
		writeUnavailable(w, r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.bounded(r)
	defer cancel()

	st, err := h.trail.Statistics(ctx)
	if err != nil {
		h.log.Error("authapi.audit.stats.fail", "err", err)
		writeUnavailable(w, r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleAuditTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	by := q.Get("by")
	if by == "" {
		by = string(audit.DimensionPrincipal)
	}
	d, err := audit.ParseDimension(by)
	if err != nil {
		writeFieldError(w, "by", "by must be principal, origin or event_type")
		return
	}
	window := 24 * time.Hour
	if raw := q.Get("window"); raw != "" {
		window, err = time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeFieldError(w, "window", "window must be a positive duration")
			return
		}
	}
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil {
		writeFieldError(w, "limit", "limit must be a number")
		return
	}

	ctx, cancel := h.bounded(r)
	defer cancel()

	out, err := h.trail.MostActive(ctx, d, window, limit)
	if err != nil {
		h.log.Error("authapi.audit.top.fail", "err", err)
		writeUnavailable(w, r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleBlocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := h.bounded(r)
	defer cancel()

	out, err := h.blocks.List(ctx)
	if err != nil {
		h.log.Error("authapi.blocks.list.fail", "err", err)
		writeUnavailable(w, r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pid := strings.TrimSpace(r.URL.Query().Get("principal_id"))
	if pid == "" {
		writeFieldError(w, "principal_id", "principal_id is required")
		return
	}

	ctx, cancel := h.bounded(r)
	defer cancel()

	out, err := h.sessions.ListActive(ctx, pid)
	if err != nil {
		h.log.Error("authapi.sessions.list.fail", "err", err)
		writeUnavailable(w, r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
