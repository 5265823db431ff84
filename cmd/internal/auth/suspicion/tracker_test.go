package suspicion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu   sync.Mutex
	sent []string
}

func (a *recordingAlerter) Notify(principalID, kind string) {
	a.mu.Lock()
	a.sent = append(a.sent, principalID+":"+kind)
	a.mu.Unlock()
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type failingRevoker struct {
	SessionRevoker
	fail atomic.Bool
}

func (r *failingRevoker) RevokeAll(ctx context.Context, principalID, reason string) (int64, error) {
	if r.fail.Load() {
		return 0, errors.New("session store down")
	}
	return r.SessionRevoker.RevokeAll(ctx, principalID, reason)
}

type failingFlagStore struct {
	*audit.MemoryStore
	fail atomic.Bool
}

func (s *failingFlagStore) Append(ctx context.Context, e audit.Event) error {
	if s.fail.Load() && e.Type == audit.EventAccountFlagged {
		return errors.New("disk full")
	}
	return s.MemoryStore.Append(ctx, e)
}

type fixture struct {
	tracker    *Tracker
	trail      *audit.Trail
	principals *identity.MemoryStore
	sessions   *session.Service
	alerts     *recordingAlerter
	principal  identity.Principal
}

func newFixture(t *testing.T, threshold int, status identity.Status) fixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	principals := identity.NewMemoryStore()
	p, err := principals.Create(ctx, identity.CreateInput{Handle: "mallory", Status: status})
	require.NoError(t, err)

	trail := audit.NewTrail(audit.NewMemoryStore(), log)
	sessions, err := session.NewService(session.DefaultConfig(), session.NewMemoryStore(), principals, log)
	require.NoError(t, err)

	alerts := &recordingAlerter{}
	tr, err := NewTracker(Config{Threshold: threshold, Window: time.Hour}, trail, principals, sessions, alerts, log)
	require.NoError(t, err)

	return fixture{tracker: tr, trail: trail, principals: principals, sessions: sessions, alerts: alerts, principal: p}
}

func TestTracker_SuspendsAtThreshold(t *testing.T) {
	f := newFixture(t, 3, identity.StatusActive)
	ctx := context.Background()
	src := audit.Source{Origin: "10.0.0.1", CorrelationID: "corr"}

	issued, err := f.sessions.Create(ctx, f.principal.ID, false, session.Fingerprint{})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		out, err := f.tracker.Report(ctx, f.principal.ID, ActivityMaliciousInput, nil, src)
		require.NoError(t, err)
		assert.Equal(t, i, out.Count)
		assert.False(t, out.Suspended)
	}

	out, err := f.tracker.Report(ctx, f.principal.ID, ActivitySessionIPMismatch, map[string]any{"recorded": "10.0.0.2"}, src)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
	assert.True(t, out.Suspended)

	p, err := f.principals.GetByID(ctx, f.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusSuspended, p.Status)

	_, err = f.sessions.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, session.ErrInvalid)

	flagged, err := f.trail.Count(ctx, audit.Filter{Type: audit.EventAccountFlagged, PrincipalID: f.principal.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 1, f.alerts.count())

	page, err := f.trail.Query(ctx, audit.Filter{Type: audit.EventSuspiciousActivity, Search: "ip_mismatch"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "session_ip_mismatch", page.Events[0].Metadata["activity_type"])
	assert.Equal(t, "corr", page.Events[0].CorrelationID)
}

func TestTracker_FlagsOnlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t, 2, identity.StatusActive)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		suspended int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.tracker.Report(ctx, f.principal.ID, ActivityRepeatedCredentialFailure, nil, audit.Source{})
			assert.NoError(t, err)
			if out.Suspended {
				mu.Lock()
				suspended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, suspended)
	assert.Equal(t, 1, f.alerts.count())

	flagged, err := f.trail.Count(ctx, audit.Filter{Type: audit.EventAccountFlagged})
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
}

type flakyFixture struct {
	tracker   *Tracker
	trail     *audit.Trail
	store     *failingFlagStore
	revoker   *failingRevoker
	sessions  *session.Service
	alerts    *recordingAlerter
	principal identity.Principal
}

func newFlakyFixture(t *testing.T) flakyFixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	principals := identity.NewMemoryStore()
	p, err := principals.Create(ctx, identity.CreateInput{Handle: "trudy", Status: identity.StatusActive})
	require.NoError(t, err)

	store := &failingFlagStore{MemoryStore: audit.NewMemoryStore()}
	trail := audit.NewTrail(store, log)
	sessions, err := session.NewService(session.DefaultConfig(), session.NewMemoryStore(), principals, log)
	require.NoError(t, err)
	revoker := &failingRevoker{SessionRevoker: sessions}

	alerts := &recordingAlerter{}
	tr, err := NewTracker(Config{Threshold: 1, Window: time.Hour}, trail, principals, revoker, alerts, log)
	require.NoError(t, err)

	_, err = sessions.Create(ctx, p.ID, false, session.Fingerprint{})
	require.NoError(t, err)

	return flakyFixture{tracker: tr, trail: trail, store: store, revoker: revoker, sessions: sessions, alerts: alerts, principal: p}
}

func (f flakyFixture) flagged(t *testing.T) int {
	t.Helper()
	n, err := f.trail.Count(context.Background(), audit.Filter{Type: audit.EventAccountFlagged, PrincipalID: f.principal.ID})
	require.NoError(t, err)
	return n
}

func (f flakyFixture) live(t *testing.T) int {
	t.Helper()
	active, err := f.sessions.ListActive(context.Background(), f.principal.ID)
	require.NoError(t, err)
	return len(active)
}

func TestTracker_RevokeFailureStillFlags(t *testing.T) {
	f := newFlakyFixture(t)
	f.revoker.fail.Store(true)

	out, err := f.tracker.Report(context.Background(), f.principal.ID, ActivityMaliciousInput, nil, audit.Source{})
	require.Error(t, err)
	assert.True(t, out.Suspended)
	assert.Equal(t, 1, f.flagged(t))
	assert.Equal(t, 1, f.live(t))
	assert.Equal(t, 1, f.alerts.count())
}

func TestTracker_LaterReportFinishesInterruptedSuspension(t *testing.T) {
	f := newFlakyFixture(t)
	ctx := context.Background()
	f.revoker.fail.Store(true)
	f.store.fail.Store(true)

	out, err := f.tracker.Report(ctx, f.principal.ID, ActivityMaliciousInput, nil, audit.Source{})
	require.Error(t, err)
	assert.True(t, out.Suspended)
	assert.Equal(t, 0, f.flagged(t))
	assert.Equal(t, 1, f.live(t))

	f.revoker.fail.Store(false)
	f.store.fail.Store(false)

	out, err = f.tracker.Report(ctx, f.principal.ID, ActivityMaliciousInput, nil, audit.Source{})
	require.NoError(t, err)
	assert.False(t, out.Suspended)
	assert.Equal(t, 1, f.flagged(t))
	assert.Equal(t, 0, f.live(t))

	_, err = f.tracker.Report(ctx, f.principal.ID, ActivityMaliciousInput, nil, audit.Source{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.flagged(t))
	assert.Equal(t, 1, f.alerts.count())
}

func TestTracker_DoesNotDowngradeBanned(t *testing.T) {
	f := newFixture(t, 1, identity.StatusBanned)
	ctx := context.Background()

	out, err := f.tracker.Report(ctx, f.principal.ID, ActivityMaliciousInput, nil, audit.Source{})
	require.NoError(t, err)
	assert.False(t, out.Suspended)

	p, err := f.principals.GetByID(ctx, f.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusBanned, p.Status)
	assert.Zero(t, f.alerts.count())
}

func TestTracker_RejectsEmptyInput(t *testing.T) {
	f := newFixture(t, 3, identity.StatusActive)

	_, err := f.tracker.Report(context.Background(), " ", ActivityMaliciousInput, nil, audit.Source{})
	assert.ErrorIs(t, err, audit.ErrInvalid)
}

func TestNewTracker_RejectsBadConfig(t *testing.T) {
	_, err := NewTracker(Config{}, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WARDEN_SUSPICION_THRESHOLD", "4")
	t.Setenv("WARDEN_SUSPICION_WINDOW", "30m")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{Threshold: 4, Window: 30 * time.Minute}, cfg)

	t.Setenv("WARDEN_SUSPICION_THRESHOLD", "0")
	_, err = LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrConfig)
}
