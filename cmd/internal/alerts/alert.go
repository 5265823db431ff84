// Package alerts delivers security alerts (for example an automatic
// account suspension) to operators.
//
// Producers call Dispatcher.Notify, which never blocks. A single worker
// hands each alert to the configured Notifier: the structured log, the
// admin WebSocket hub, or both through MultiNotifier.
package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Alert is one security alert.
type Alert struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Kind        string    `json:"kind"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers an alert about a principal.
type Notifier interface {
	SendSecurityAlert(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) SendSecurityAlert(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogNotifier writes alerts to a slog.Logger at warn level.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) SendSecurityAlert(_ context.Context, a Alert) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("alert.security", "alert_id", a.ID, "principal_id", a.PrincipalID, "kind", a.Kind)
	return nil
}

// MultiNotifier fans an alert out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) SendSecurityAlert(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendSecurityAlert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
