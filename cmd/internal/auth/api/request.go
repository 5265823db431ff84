package authapi

import (
	"net"
	"net/http"
	"strings"

	"warden/cmd/internal/auth/authn"
)

// RequestIDHeader carries the correlation id set by the request-id middleware.
const RequestIDHeader = "X-Request-ID"

func (h *Handler) requestMeta(r *http.Request) authn.RequestMeta {
	m := authn.RequestMeta{
		ClientAgent:   strings.TrimSpace(r.UserAgent()),
		CorrelationID: strings.TrimSpace(r.Header.Get(RequestIDHeader)),
	}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		m.Origin = ip.String()
	}
	return m
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
