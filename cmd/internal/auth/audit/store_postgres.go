package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"warden/cmd/internal/dbx"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store over the audit_events table.
// Filter queries are assembled with squirrel so optional predicates stay parameterized.
type PostgresStore struct {
	db      dbx.DBTX
	table   string
	builder squirrel.StatementBuilderType
}

// NewPostgresStore constructs a PostgresStore in schema (default "warden" when empty).
func NewPostgresStore(db dbx.DBTX, schema string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("audit: nil db")
	}
	if schema == "" {
		schema = dbx.DefaultSchema
	}
	schema, err := dbx.CheckSchema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{
		db:      db,
		table:   dbx.Ident(schema, "audit_events"),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

var eventColumns = []string{
	"id", "event_type", "COALESCE(principal_id, '')", "entity_type", "entity_id", "action",
	"metadata", "origin", "client_agent", "correlation_id", "occurred_at",
}

// Append inserts one event.
func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	// The column is NOT NULL; a nil slice would be sent as NULL.
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = b
	}

	var principal *string
	if e.PrincipalID != "" {
		principal = &e.PrincipalID
	}

	query, args, err := s.builder.Insert(s.table).
		Columns(
			"id", "event_type", "principal_id", "entity_type", "entity_id", "action",
			"metadata", "origin", "client_agent", "correlation_id", "occurred_at",
		).
		Values(
			e.ID, string(e.Type), principal, e.EntityType, e.EntityID, e.Action,
			meta, e.Origin, e.ClientAgent, e.CorrelationID, e.OccurredAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func where(f Filter) squirrel.And {
	conds := squirrel.And{}
	if f.Type != "" {
		conds = append(conds, squirrel.Eq{"event_type": string(f.Type)})
	}
	if f.PrincipalID != "" {
		conds = append(conds, squirrel.Eq{"principal_id": f.PrincipalID})
	}
	if f.EntityType != "" {
		conds = append(conds, squirrel.Eq{"entity_type": f.EntityType})
	}
	if f.Origin != "" {
		conds = append(conds, squirrel.Eq{"origin": f.Origin})
	}
	if !f.From.IsZero() {
		conds = append(conds, squirrel.GtOrEq{"occurred_at": f.From})
	}
	if !f.To.IsZero() {
		conds = append(conds, squirrel.Lt{"occurred_at": f.To})
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		conds = append(conds, squirrel.Or{
			squirrel.ILike{"action": pattern},
			squirrel.ILike{"entity_id": pattern},
			squirrel.ILike{"client_agent": pattern},
			squirrel.Expr("metadata::text ILIKE ?", pattern),
		})
	}
	return conds
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) selectWhere(f Filter, cols ...string) squirrel.SelectBuilder {
	b := s.builder.Select(cols...).From(s.table)
	if conds := where(f); len(conds) > 0 {
		b = b.Where(conds)
	}
	return b
}

// Query returns one newest-first page plus the total match count.
func (s *PostgresStore) Query(ctx context.Context, f Filter, limit, offset int) ([]Event, int, error) {
	total, err := s.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []Event{}, total, nil
	}

	query, args, err := s.selectWhere(f, eventColumns...).
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit query sql: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, total, nil
}

func scanEvent(rows pgx.Rows) (Event, error) {
	var (
		e    Event
		typ  string
		meta []byte
	)
	if err := rows.Scan(
		&e.ID, &typ, &e.PrincipalID, &e.EntityType, &e.EntityID, &e.Action,
		&meta, &e.Origin, &e.ClientAgent, &e.CorrelationID, &e.OccurredAt,
	); err != nil {
		return Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	e.Type = EventType(typ)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return Event{}, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return e, nil
}

// Count returns the number of matches; backed by the (event_type, principal_id, occurred_at) index.
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	query, args, err := s.selectWhere(f, "count(*)").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit count sql: %w", err)
	}
	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// Stats aggregates the whole trail in two statements.
func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (Stats, error) {
	st := Stats{ByType: make(map[EventType]int)}

	err := s.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE occurred_at >= $1),
		       count(DISTINCT principal_id),
		       count(DISTINCT NULLIF(origin, ''))
		  FROM `+s.table, since).
		Scan(&st.Total, &st.Last24h, &st.UniquePrincipals, &st.UniqueOrigins)
	if err != nil {
		return Stats{}, fmt.Errorf("audit totals: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT event_type, count(*) FROM `+s.table+` GROUP BY event_type`)
	if err != nil {
		return Stats{}, fmt.Errorf("audit by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return Stats{}, fmt.Errorf("scan audit by type: %w", err)
		}
		st.ByType[EventType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate audit by type: %w", err)
	}
	return st, nil
}

func dimensionColumn(d Dimension) (string, error) {
	switch d {
	case DimensionPrincipal:
		return "principal_id", nil
	case DimensionEventType:
		return "event_type", nil
	case DimensionOrigin:
		return "origin", nil
	default:
		return "", ErrInvalid
	}
}

// Top ranks dimension keys by count since the given time.
func (s *PostgresStore) Top(ctx context.Context, d Dimension, since time.Time, limit int) ([]Ranked, error) {
	col, err := dimensionColumn(d)
	if err != nil {
		return nil, err
	}

	query, args, err := s.builder.Select(col, "count(*) AS n").
		From(s.table).
		Where(squirrel.And{
			squirrel.GtOrEq{"occurred_at": since},
			squirrel.NotEq{col: nil},
			squirrel.NotEq{col: ""},
		}).
		GroupBy(col).
		OrderBy("n DESC", col+" ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit top sql: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit top: %w", err)
	}
	defer rows.Close()

	out := make([]Ranked, 0, limit)
	for rows.Next() {
		var r Ranked
		if err := rows.Scan(&r.Key, &r.Count); err != nil {
			return nil, fmt.Errorf("scan audit top: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit top: %w", err)
	}
	return out, nil
}

// DeleteBefore removes events strictly older than cutoff.
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.builder.Delete(s.table).Where(squirrel.Lt{"occurred_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit purge sql: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}
