package alerts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/metrics"
)

const (
	DefaultQueueSize   = 256
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher queues alerts and delivers them from one worker goroutine.
type Dispatcher struct {
	notifier Notifier
	queue    chan Alert
	log      *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher with a bounded queue.
func NewDispatcher(n Notifier, queueSize int, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	if n == nil {
		n = LogNotifier{Log: log}
	}
	return &Dispatcher{
		notifier: n,
		queue:    make(chan Alert, queueSize),
		log:      log,
		metrics:  m,
		timeout:  defaultSendTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Notify enqueues an alert. It never blocks: when the queue is full the
// alert is dropped, logged and counted.
func (d *Dispatcher) Notify(principalID, kind string) {
	now := d.now()
	id, err := ids.NewULID(now)
	if err != nil {
		d.log.Error("alert.id.fail", "err", err)
		return
	}
	a := Alert{ID: id, PrincipalID: strings.TrimSpace(principalID), Kind: kind, OccurredAt: now}

	select {
	case d.queue <- a:
	default:
		d.metrics.AlertDropped()
		d.log.Error("alert.drop", "alert_id", a.ID, "principal_id", a.PrincipalID, "kind", a.Kind, "reason", "queue_full")
	}
}

// Run delivers queued alerts until ctx is cancelled. Alerts still queued
// at cancellation are flushed best-effort before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return nil
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

func (d *Dispatcher) flush() {
	ctx := context.Background()
	for {
		select {
		case a := <-d.queue:
			d.deliver(ctx, a)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, a Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
	defer cancel()

	if err := d.notifier.SendSecurityAlert(ctx, a); err != nil {
		d.metrics.AlertDropped()
		d.log.Error("alert.deliver.fail", "alert_id", a.ID, "principal_id", a.PrincipalID, "kind", a.Kind, "err", err)
	}
}
