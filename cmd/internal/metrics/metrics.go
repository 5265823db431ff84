// Package metrics holds warden's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warden"

// Metrics bundles the auth-core collectors.
type Metrics struct {
	Logins            *prometheus.CounterVec
	Validations       *prometheus.CounterVec
	RateLimited       *prometheus.CounterVec
	OriginBlocks      prometheus.Counter
	SuspicionReports  *prometheus.CounterVec
	Suspensions       prometheus.Counter
	AuditWriteFailure prometheus.Counter
	AlertsDropped     prometheus.Counter
	AdminActions      *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New constructs collectors and registers them with reg (default registerer when nil).
// Re-registration returns the already registered collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.Logins, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "logins_total",
		Help: "Login attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.Validations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "session_validations_total",
		Help: "Session validations partitioned by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.RateLimited, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "rate_limited_total",
		Help: "Logins denied by the attempt limiter, partitioned by key scope.",
	}, []string{"scope"})); err != nil {
		return nil, err
	}
	if m.OriginBlocks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "origin_blocks_total",
		Help: "Origins placed on the block list.",
	})); err != nil {
		return nil, err
	}
	if m.SuspicionReports, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "suspicion", Name: "reports_total",
		Help: "Suspicious activity reports partitioned by activity type.",
	}, []string{"activity"})); err != nil {
		return nil, err
	}
	if m.Suspensions, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "suspicion", Name: "suspensions_total",
		Help: "Principals automatically suspended.",
	})); err != nil {
		return nil, err
	}
	if m.AuditWriteFailure, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "audit", Name: "write_failures_total",
		Help: "Audit events that could not be persisted.",
	})); err != nil {
		return nil, err
	}
	if m.AlertsDropped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "alerts", Name: "dropped_total",
		Help: "Security alerts dropped because the dispatch queue was full.",
	})); err != nil {
		return nil, err
	}
	if m.AdminActions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "admin", Name: "actions_total",
		Help: "Administrative actions partitioned by action and result.",
	}, []string{"action", "result"})); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var zero C
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return zero, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return zero, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// Login records a login outcome ("success", "invalid_credentials", "rate_limited", ...).
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// Validation records a session validation result.
func (m *Metrics) Validation(result string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(result).Inc()
}

// Limited records a limiter denial for a key scope ("identifier", "origin").
func (m *Metrics) Limited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}

// Blocked records an origin block.
func (m *Metrics) Blocked() {
	if m == nil {
		return
	}
	m.OriginBlocks.Inc()
}

// Suspicion records a suspicion report.
func (m *Metrics) Suspicion(activity string) {
	if m == nil {
		return
	}
	m.SuspicionReports.WithLabelValues(activity).Inc()
}

// Suspended records an automatic suspension.
func (m *Metrics) Suspended() {
	if m == nil {
		return
	}
	m.Suspensions.Inc()
}

// AuditFailed records an audit persistence failure.
func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.AuditWriteFailure.Inc()
}

// AlertDropped records a dropped alert.
func (m *Metrics) AlertDropped() {
	if m == nil {
		return
	}
	m.AlertsDropped.Inc()
}

// Admin records an administrative action result ("ok", "error").
func (m *Metrics) Admin(action, result string) {
	if m == nil {
		return
	}
	m.AdminActions.WithLabelValues(action, result).Inc()
}
