package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestTrail(t *testing.T) (*Trail, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	st := NewMemoryStore()
	return NewTrail(st, quietLogger(), WithClock(clock.now)), st, clock
}

func TestTrail_RecordStampsIDAndTime(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	id, err := trail.Record(ctx, Entry{
		Type:        EventLoginSuccess,
		PrincipalID: "p1",
		Metadata:    map[string]any{"remember_me": true},
		Origin:      "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Len(t, id, 26)

	page, err := trail.Query(ctx, Filter{PrincipalID: "p1"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, id, page.Events[0].ID)
	assert.Equal(t, clock.t, page.Events[0].OccurredAt)
	assert.Equal(t, true, page.Events[0].Metadata["remember_me"])
}

func TestTrail_RecordRejectsEmptyType(t *testing.T) {
	trail, _, _ := newTestTrail(t)
	_, err := trail.Record(context.Background(), Entry{})
	assert.ErrorIs(t, err, ErrInvalid)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }

func TestTrail_RecordSurfacesStoreFailure(t *testing.T) {
	trail := NewTrail(failingStore{NewMemoryStore()}, quietLogger())
	_, err := trail.Record(context.Background(), Entry{Type: EventLoginAttempt})
	assert.ErrorIs(t, err, ErrStore)
}

func TestTrail_QueryOrderingAndPaging(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := trail.Record(ctx, Entry{Type: EventLoginFailed, PrincipalID: "p1"})
		require.NoError(t, err)
		ids = append(ids, id)
		clock.advance(time.Second)
	}

	page, err := trail.Query(ctx, Filter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Events, 2)
	assert.Equal(t, ids[4], page.Events[0].ID)
	assert.Equal(t, ids[3], page.Events[1].ID)

	page, err = trail.Query(ctx, Filter{}, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, ids[0], page.Events[0].ID)

	page, err = trail.Query(ctx, Filter{}, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.NotNil(t, page.Events)
}

func TestTrail_QueryClampsPageSize(t *testing.T) {
	trail, _, _ := newTestTrail(t)

	page, err := trail.Query(context.Background(), Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)

	page, err = trail.Query(context.Background(), Filter{}, 1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
}

func TestTrail_FilterFields(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	start := clock.t
	_, err := trail.Record(ctx, Entry{Type: EventLoginFailed, PrincipalID: "p1", Origin: "10.0.0.1", ClientAgent: "curl/8"})
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = trail.Record(ctx, Entry{Type: EventLoginSuccess, PrincipalID: "p2", Origin: "10.0.0.2", Metadata: map[string]any{"note": "Night Shift"}})
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = trail.Record(ctx, Entry{Type: EventOriginBlocked, EntityType: EntityOrigin, EntityID: "10.0.0.1"})
	require.NoError(t, err)

	count := func(f Filter) int {
		n, err := trail.Count(ctx, f)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, 1, count(Filter{Type: EventLoginFailed}))
	assert.Equal(t, 1, count(Filter{PrincipalID: "p2"}))
	assert.Equal(t, 1, count(Filter{EntityType: EntityOrigin}))
	assert.Equal(t, 1, count(Filter{Origin: "10.0.0.2"}))
	assert.Equal(t, 2, count(Filter{From: start.Add(time.Minute)}))
	assert.Equal(t, 1, count(Filter{To: start.Add(time.Minute)}))
	assert.Equal(t, 1, count(Filter{Search: "night shift"}))
	assert.Equal(t, 1, count(Filter{Search: "  night shift\t"}))
	assert.Equal(t, 1, count(Filter{Search: "CURL"}))
	assert.Equal(t, 1, count(Filter{Search: "10.0.0.1", Type: EventOriginBlocked}))
}

func TestTrail_QueriedEventsDoNotAliasStoredMetadata(t *testing.T) {
	trail, _, _ := newTestTrail(t)
	ctx := context.Background()

	_, err := trail.Record(ctx, Entry{
		Type:     EventLoginFailed,
		Metadata: map[string]any{"attempts": 3, "scope": map[string]any{"kind": "id"}},
	})
	require.NoError(t, err)

	page, err := trail.Query(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	page.Events[0].Metadata["attempts"] = 999
	page.Events[0].Metadata["scope"].(map[string]any)["kind"] = "origin"

	page, err = trail.Query(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, 3, page.Events[0].Metadata["attempts"])
	assert.Equal(t, "id", page.Events[0].Metadata["scope"].(map[string]any)["kind"])
}

func TestTrail_CountSince(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	_, err := trail.Record(ctx, Entry{Type: EventSuspiciousActivity, PrincipalID: "p1"})
	require.NoError(t, err)
	clock.advance(2 * time.Hour)
	_, err = trail.Record(ctx, Entry{Type: EventSuspiciousActivity, PrincipalID: "p1"})
	require.NoError(t, err)

	n, err := trail.CountSince(ctx, EventSuspiciousActivity, "p1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTrail_StatisticsAndMostActive(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	_, err := trail.Record(ctx, Entry{Type: EventLoginFailed, PrincipalID: "old", Origin: "10.0.0.9"})
	require.NoError(t, err)
	clock.advance(48 * time.Hour)

	for i := 0; i < 3; i++ {
		_, err := trail.Record(ctx, Entry{Type: EventLoginFailed, PrincipalID: "p1", Origin: "10.0.0.1"})
		require.NoError(t, err)
	}
	_, err = trail.Record(ctx, Entry{Type: EventLoginSuccess, PrincipalID: "p2", Origin: "10.0.0.2"})
	require.NoError(t, err)

	st, err := trail.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 4, st.Last24h)
	assert.Equal(t, 4, st.ByType[EventLoginFailed])
	assert.Equal(t, 3, st.UniquePrincipals)
	assert.Equal(t, 3, st.UniqueOrigins)

	top, err := trail.MostActive(ctx, DimensionPrincipal, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, Ranked{Key: "p1", Count: 3}, top[0])
	assert.Equal(t, Ranked{Key: "p2", Count: 1}, top[1])

	_, err = trail.MostActive(ctx, Dimension("nope"), time.Hour, 10)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = trail.MostActive(ctx, DimensionOrigin, 0, 10)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTrail_PurgeOlderThan(t *testing.T) {
	trail, _, clock := newTestTrail(t)
	ctx := context.Background()

	_, err := trail.Record(ctx, Entry{Type: EventLoginFailed})
	require.NoError(t, err)
	clock.advance(40 * 24 * time.Hour)
	_, err = trail.Record(ctx, Entry{Type: EventLoginSuccess})
	require.NoError(t, err)

	n, err := trail.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := trail.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = trail.PurgeOlderThan(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(" Origin ")
	require.NoError(t, err)
	assert.Equal(t, DimensionOrigin, d)

	_, err = ParseDimension("session")
	assert.ErrorIs(t, err, ErrInvalid)
}
