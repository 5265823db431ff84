// Package app wires the warden server runtime: config, logging, stores,
// the auth core and its HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/alerts"
	"warden/cmd/internal/auth/admin"
	authapi "warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/authn"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/suspicion"
	"warden/cmd/internal/metrics"
	"warden/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// App is the warden server runtime.
type App struct {
	cfg Config
	log Logger

	stores   *stores
	alerts   *alerts.Dispatcher
	handler  http.Handler
	registry *prometheus.Registry
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, stores: st}
	if err := a.wire(ctx); err != nil {
		st.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	var m *metrics.Metrics
	if a.cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		var err error
		if m, err = metrics.New(a.registry); err != nil {
			return err
		}
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	rlCfg, err := ratelimit.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	suspCfg, err := suspicion.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	authCfg, err := authn.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	apiCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	hasher, err := securityHasher(a.cfg.RequireTokenHMAC || sessCfg.RequireHMAC)
	if err != nil {
		return err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return err
	}

	principals := a.stores.principals
	verifier, err := identity.NewArgon2Verifier(pwCfg, principals)
	if err != nil {
		return err
	}

	trail := audit.NewTrail(a.stores.audit, a.log, audit.WithMetrics(m))

	sessions, err := session.NewService(sessCfg, a.stores.sessions, principals, a.log, session.WithHasher(hasher))
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(a.stores.counters, rlCfg)
	if err != nil {
		return err
	}

	blocks := blocklist.New(a.stores.blocks, a.log)

	hub := alerts.NewHub(a.log)
	gateway := alerts.NewWSGateway(a.log, hub)
	a.alerts = alerts.NewDispatcher(alerts.MultiNotifier{alerts.LogNotifier{Log: a.log}, hub}, a.cfg.AlertQueueSize, a.log, m)

	tracker, err := suspicion.NewTracker(suspCfg, trail, principals, sessions, a.alerts, a.log, suspicion.WithMetrics(m))
	if err != nil {
		return err
	}

	auth, err := authn.New(authCfg, authn.Deps{
		Principals: principals,
		Verifier:   verifier,
		Sessions:   sessions,
		Limiter:    limiter,
		Blocklist:  blocks,
		Trail:      trail,
		Suspicion:  tracker,
		Detector:   suspicion.NewDetector(),
	}, a.log, authn.WithMetrics(m))
	if err != nil {
		return err
	}

	dispatcher, err := admin.NewDispatcher(blocks, sessions, principals, trail, a.log, admin.WithMetrics(m))
	if err != nil {
		return err
	}

	api, err := authapi.NewHandler(a.log, apiCfg, authapi.Deps{
		Auth:     auth,
		Admin:    dispatcher,
		Trail:    trail,
		Blocks:   blocks,
		Sessions: sessions,
		Alerts:   gateway,
	}, authapi.WithMetrics(m))
	if err != nil {
		return err
	}

	if err := bootstrapPrincipal(ctx, loadBootstrapConfig(), principals, verifier, a.log); err != nil {
		return err
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux, api, a.registry)

	a.handler = WithRequestID(WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log))
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and delivers alerts until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"alerts_ws_url", wsBaseURL(base)+"/admin/alerts/ws",
		"db_enabled", a.stores.pool != nil,
		"redis_enabled", a.stores.redis != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.alerts.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.stores.close()
	a.log.Info("server.stopped")
	return err
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
