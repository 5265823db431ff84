package app

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	authapi "warden/cmd/internal/auth/api"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readiness reports whether a backing dependency can serve traffic.
type readiness interface {
	ready(ctx context.Context) error
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) ready(ctx context.Context) error { return f(ctx) }

func (a *App) registerHTTP(mux *http.ServeMux, api *authapi.Handler, reg *prometheus.Registry) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.stores.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		for name, dep := range a.readinessChecks() {
			if err := dep.ready(r.Context()); err != nil {
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.not_ready", "dep", name, "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	api.Register(mux)
}

func (a *App) readinessChecks() map[string]readiness {
	checks := map[string]readiness{}
	if pool := a.stores.pool; pool != nil {
		checks["db"] = readyFunc(func(ctx context.Context) error {
			return PingDB(ctx, pool, dbReadyPingTimeout)
		})
	}
	if rdb := a.stores.redis; rdb != nil {
		checks["redis"] = readyFunc(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return rdb.Ping(ctx).Err()
		})
	}
	return checks
}

// runtimeBaseURL turns a listen address into a URL a local client can reach.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) counterpart.
func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(strings.TrimPrefix(base, "http://"), "https://")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
