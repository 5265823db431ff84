package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warden/cmd/internal/dbx"

	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store using PostgreSQL (warden.sessions).
type PostgresStore struct {
	db    dbx.DBTX
	table string
}

// NewPostgresStore creates a Postgres-backed session store in schema ("warden" when empty).
func NewPostgresStore(db dbx.DBTX, schema string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("session: nil db")
	}
	if schema == "" {
		schema = dbx.DefaultSchema
	}
	schema, err := dbx.CheckSchema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, table: dbx.Ident(schema, "sessions")}, nil
}

const recordColumns = `id, token_hash, principal_id, created_at, expires_at, last_activity_at,
	origin, client_agent, active, COALESCE(revoke_reason, ''), revoked_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID,
		&r.TokenHash,
		&r.PrincipalID,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.LastActivityAt,
		&r.Fingerprint.Origin,
		&r.Fingerprint.ClientAgent,
		&r.Active,
		&r.RevokeReason,
		&r.RevokedAt,
	)
	return r, err
}

// Insert creates a session row; ON CONFLICT DO NOTHING guards against overwriting a live token.
func (s *PostgresStore) Insert(ctx context.Context, r Record) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (
			token_hash, id, principal_id,
			created_at, expires_at, last_activity_at,
			origin, client_agent, active
		) VALUES (
			$1, $2, $3,
			$4, $5, $4,
			$6, $7, TRUE
		)
		ON CONFLICT DO NOTHING
	`, r.TokenHash, r.ID, r.PrincipalID, r.CreatedAt, r.ExpiresAt, r.Fingerprint.Origin, r.Fingerprint.ClientAgent)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenCollision
	}
	return nil
}

// Touch refreshes last_activity_at in the same statement that checks liveness.
func (s *PostgresStore) Touch(ctx context.Context, tokenHash string, now time.Time) (Record, error) {
	r, err := scanRecord(s.db.QueryRow(ctx, `
		UPDATE `+s.table+`
		   SET last_activity_at = $2
		 WHERE token_hash = $1
		   AND active
		   AND expires_at > $2
		RETURNING `+recordColumns, tokenHash, now))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("touch session: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE `+s.table+`
		   SET active = FALSE,
		       revoke_reason = COALESCE(revoke_reason, $3),
		       revoked_at = COALESCE(revoked_at, $2)
		 WHERE token_hash = $1
		   AND active
		   AND expires_at <= $2
	`, tokenHash, now, ReasonTimeout); err != nil {
		return Record{}, fmt.Errorf("expire session: %w", err)
	}
	return Record{}, errNotFound
}

func (s *PostgresStore) revokeWhere(ctx context.Context, column, value, reason string, now time.Time) (Record, bool, error) {
	r, err := scanRecord(s.db.QueryRow(ctx, `
		UPDATE `+s.table+`
		   SET active = FALSE,
		       revoke_reason = COALESCE(revoke_reason, $3),
		       revoked_at = COALESCE(revoked_at, $2)
		 WHERE `+column+` = $1
		RETURNING `+recordColumns, value, now, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("revoke session: %w", err)
	}
	return r, true, nil
}

// RevokeByHash revokes a single session (idempotent).
func (s *PostgresStore) RevokeByHash(ctx context.Context, tokenHash, reason string, now time.Time) (Record, bool, error) {
	return s.revokeWhere(ctx, "token_hash", tokenHash, reason, now)
}

// RevokeByID revokes a single session by ID (idempotent).
func (s *PostgresStore) RevokeByID(ctx context.Context, id, reason string, now time.Time) (Record, bool, error) {
	return s.revokeWhere(ctx, "id", id, reason, now)
}

// RevokeAll revokes all active sessions for a principal.
func (s *PostgresStore) RevokeAll(ctx context.Context, principalID, reason string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE `+s.table+`
		   SET active = FALSE,
		       revoke_reason = COALESCE(revoke_reason, $3),
		       revoked_at = COALESCE(revoked_at, $2)
		 WHERE principal_id = $1
		   AND active
	`, principalID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke principal sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActive lists live sessions for a principal.
func (s *PostgresStore) ListActive(ctx context.Context, principalID string, now time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		  FROM `+s.table+`
		 WHERE principal_id = $1
		   AND active
		   AND expires_at > $2
		 ORDER BY created_at DESC, id DESC
	`, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
