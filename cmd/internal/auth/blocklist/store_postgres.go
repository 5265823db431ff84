package blocklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warden/cmd/internal/dbx"
)

// PostgresStore implements Store over the blocked_origins table.
type PostgresStore struct {
	db    dbx.DBTX
	table string
}

func NewPostgresStore(db dbx.DBTX, schema string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("blocklist: nil db")
	}
	if schema == "" {
		schema = dbx.DefaultSchema
	}
	schema, err := dbx.CheckSchema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, table: dbx.Ident(schema, "blocked_origins")}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, b Block) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (origin, reason, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (origin) DO UPDATE
		   SET reason = EXCLUDED.reason,
		       expires_at = EXCLUDED.expires_at,
		       updated_at = EXCLUDED.updated_at
	`, b.Origin, b.Reason, b.ExpiresAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert blocked origin: %w", err)
	}
	return nil
}

func (s *PostgresStore) Active(ctx context.Context, origin string, now time.Time) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM `+s.table+`
			 WHERE origin = $1 AND (expires_at IS NULL OR expires_at > $2)
		)
	`, origin, now).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query blocked origin: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) Delete(ctx context.Context, origin string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE origin = $1`, origin)
	if err != nil {
		return false, fmt.Errorf("delete blocked origin: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, now time.Time) ([]Block, error) {
	rows, err := s.db.Query(ctx, `
		SELECT origin, reason, expires_at, created_at, updated_at
		  FROM `+s.table+`
		 WHERE expires_at IS NULL OR expires_at > $1
		 ORDER BY updated_at DESC, origin ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list blocked origins: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.Origin, &b.Reason, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan blocked origin: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked origins: %w", err)
	}
	return out, nil
}
