package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"warden/cmd/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type capture struct {
	mu  sync.Mutex
	got []Alert
	ch  chan Alert
}

func newCapture() *capture { return &capture{ch: make(chan Alert, 16)} }

func (c *capture) SendSecurityAlert(_ context.Context, a Alert) error {
	c.mu.Lock()
	c.got = append(c.got, a)
	c.mu.Unlock()
	c.ch <- a
	return nil
}

func TestDispatcher_DeliversAsync(t *testing.T) {
	sink := newCapture()
	d := NewDispatcher(sink, 4, quietLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Notify("p1", "account_suspended")

	select {
	case a := <-sink.ch:
		assert.Equal(t, "p1", a.PrincipalID)
		assert.Equal(t, "account_suspended", a.Kind)
		assert.Len(t, a.ID, 26)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	d := NewDispatcher(newCapture(), 1, quietLogger(), m)

	// No worker running: the second alert cannot be queued.
	d.Notify("p1", "account_suspended")
	d.Notify("p2", "account_suspended")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsDropped))
}

func TestDispatcher_FlushesOnShutdown(t *testing.T) {
	sink := newCapture()
	d := NewDispatcher(sink, 4, quietLogger(), nil)

	d.Notify("p1", "k")
	d.Notify("p2", "k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.got, 2)
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	sink := newCapture()
	m := MultiNotifier{
		sink,
		NotifierFunc(func(context.Context, Alert) error { return boom }),
		LogNotifier{Log: quietLogger()},
		nil,
	}

	err := m.SendSecurityAlert(context.Background(), Alert{ID: "a"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sink.got, 1)
}

func TestHub_BroadcastSkipsClosedAndFull(t *testing.T) {
	h := NewHub(quietLogger())

	open := NewClient("open", 1)
	closed := NewClient("closed", 1)
	h.Subscribe(open)
	h.Subscribe(closed)
	closed.Close()

	assert.Equal(t, 1, h.Broadcast(Alert{ID: "1"}))
	// open's queue (size 1) is now full.
	assert.Equal(t, 0, h.Broadcast(Alert{ID: "2"}))

	h.Unsubscribe("open")
	assert.Equal(t, 1, h.Len())
	select {
	case <-open.Done():
	default:
		t.Fatal("unsubscribe should close the client")
	}
}
