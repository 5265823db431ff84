package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{
	"id", "event_type", "principal_id", "entity_type", "entity_id", "action",
	"metadata", "origin", "client_agent", "correlation_id", "occurred_at",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewPostgresStore(mock, "")
	require.NoError(t, err)
	return st, mock
}

func TestNewPostgresStore_RejectsBadSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStore(mock, `bad"schema`)
	assert.Error(t, err)
}

func TestPostgresStore_Append(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO "warden"\."audit_events"`).
		WithArgs("01J0000000000000000000000A", "login_failed", pgxmock.AnyArg(), "", "", "",
			pgxmock.AnyArg(), "10.0.0.1", "curl/8", "corr-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.Append(context.Background(), Event{
		ID:            "01J0000000000000000000000A",
		Type:          EventLoginFailed,
		PrincipalID:   "p1",
		Metadata:      map[string]any{"reason": "bad_credentials"},
		Origin:        "10.0.0.1",
		ClientAgent:   "curl/8",
		CorrelationID: "corr-1",
		OccurredAt:    now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendWithoutMetadataSendsEmptyObject(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO "warden"\."audit_events"`).
		WithArgs("01J0000000000000000000000B", "user_logout", pgxmock.AnyArg(), "session", "s1", "logout",
			[]byte("{}"), "10.0.0.1", "", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.Append(context.Background(), Event{
		ID:          "01J0000000000000000000000B",
		Type:        EventUserLogout,
		PrincipalID: "p1",
		EntityType:  "session",
		EntityID:    "s1",
		Action:      "logout",
		Origin:      "10.0.0.1",
		OccurredAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "warden"\."audit_events"`).
		WillReturnError(errors.New("connection reset"))

	err := st.Append(context.Background(), Event{ID: "x", Type: EventLoginAttempt, OccurredAt: time.Now()})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryWithFilter(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT count\(\*\) FROM "warden"\."audit_events" WHERE .*event_type = \$1.*principal_id = \$2`).
		WithArgs("login_failed", "p1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	mock.ExpectQuery(`(?s)SELECT id, event_type, .* FROM "warden"\."audit_events" WHERE .* ORDER BY occurred_at DESC, id DESC LIMIT 2 OFFSET 0`).
		WithArgs("login_failed", "p1").
		WillReturnRows(pgxmock.NewRows(eventCols).
			AddRow("B", "login_failed", "p1", "", "", "", []byte(`{"reason":"bad_credentials"}`), "10.0.0.1", "", "", now).
			AddRow("A", "login_failed", "p1", "", "", "", []byte(nil), "10.0.0.1", "", "", now.Add(-time.Minute)))

	events, total, err := st.Query(context.Background(), Filter{Type: EventLoginFailed, PrincipalID: "p1"}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, events, 2)
	assert.Equal(t, "B", events[0].ID)
	assert.Equal(t, "bad_credentials", events[0].Metadata["reason"])
	assert.Nil(t, events[1].Metadata)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QuerySkipsRowsWhenEmpty(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "warden"\."audit_events"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	events, total, err := st.Query(context.Background(), Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchEscapesLike(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT count\(\*\) FROM "warden"\."audit_events" WHERE .*action ILIKE \$1.*metadata::text ILIKE \$4`).
		WithArgs(`%50\%\_off%`, `%50\%\_off%`, `%50\%\_off%`, `%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	n, err := st.Count(context.Background(), Filter{Search: "50%_off"})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	st, mock := newMockStore(t)
	since := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT count\(\*\),.*FILTER \(WHERE occurred_at >= \$1\).*FROM "warden"\."audit_events"`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"total", "last", "principals", "origins"}).AddRow(10, 4, 3, 2))
	mock.ExpectQuery(`SELECT event_type, count\(\*\) FROM "warden"\."audit_events" GROUP BY event_type`).
		WillReturnRows(pgxmock.NewRows([]string{"event_type", "count"}).
			AddRow("login_failed", 7).
			AddRow("login_success", 3))

	stats, err := st.Stats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 4, stats.Last24h)
	assert.Equal(t, 3, stats.UniquePrincipals)
	assert.Equal(t, 2, stats.UniqueOrigins)
	assert.Equal(t, 7, stats.ByType[EventLoginFailed])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Top(t *testing.T) {
	st, mock := newMockStore(t)
	since := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT origin, count\(\*\) AS n FROM "warden"\."audit_events" WHERE .* GROUP BY origin ORDER BY n DESC, origin ASC LIMIT 5`).
		WithArgs(since, "").
		WillReturnRows(pgxmock.NewRows([]string{"origin", "n"}).
			AddRow("10.0.0.1", 9).
			AddRow("10.0.0.2", 2))

	out, err := st.Top(context.Background(), DimensionOrigin, since, 5)
	require.NoError(t, err)
	assert.Equal(t, []Ranked{{Key: "10.0.0.1", Count: 9}, {Key: "10.0.0.2", Count: 2}}, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteBefore(t *testing.T) {
	st, mock := newMockStore(t)
	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM "warden"\."audit_events" WHERE occurred_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := st.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
