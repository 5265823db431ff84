package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/dbx"

	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller; this store never closes it.
// Schema and table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	db     dbx.DB
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the store (default "warden").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		v, err := dbx.CheckSchema(schema)
		if err != nil {
			return err
		}
		s.schema = v
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db dbx.DB, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{db: db, schema: dbx.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.db == nil {
		return nil, errors.New("identity: nil db")
	}
	return st, nil
}

const principalColumns = `id, handle, handle_norm, COALESCE(email, ''), COALESCE(email_norm, ''), status, created_at, updated_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	var status string
	err := row.Scan(&p.ID, &p.Handle, &p.HandleNorm, &p.Email, &p.EmailNorm, &status, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Status(status)
	return p, err
}

// Create inserts a principal.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Principal, error) {
	const op = "identity.Create"

	in, err := validateCreate(op, in)
	if err != nil {
		return Principal{}, err
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Principal{}, err
	}

	var email, emailNorm *string
	if in.Email != "" {
		n := NormalizeEmail(in.Email)
		email, emailNorm = &in.Email, &n
	}

	p, err := scanPrincipal(s.db.QueryRow(ctx,
		`INSERT INTO `+dbx.Ident(s.schema, "principals")+` (
		     id, handle, handle_norm, email, email_norm, status, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		   RETURNING `+principalColumns,
		id,
		in.Handle,
		NormalizeHandle(in.Handle),
		email,
		emailNorm,
		string(in.Status),
		in.Now,
	))
	if err != nil {
		if c, ok := dbx.IsUniqueViolation(err); ok {
			return Principal{}, ConflictError{Op: op, Field: conflictField(c)}
		}
		return Principal{}, err
	}
	return p, nil
}

// GetByID loads a principal by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Principal, error) {
	const op = "identity.GetByID"

	p, err := scanPrincipal(s.db.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+dbx.Ident(s.schema, "principals")+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}
	return p, err
}

// GetByIdentifier resolves a handle or email (normalized) to a principal.
func (s *PostgresStore) GetByIdentifier(ctx context.Context, identifier string) (Principal, error) {
	const op = "identity.GetByIdentifier"

	norm := NormalizeIdentifier(identifier)
	if norm == "" {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}

	p, err := scanPrincipal(s.db.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+dbx.Ident(s.schema, "principals")+`
		  WHERE handle_norm = $1 OR email_norm = $1
		  LIMIT 1`,
		norm,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}
	return p, err
}

// SetStatus unconditionally sets a principal's status.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, to Status, now time.Time) (Principal, error) {
	const op = "identity.SetStatus"
	if !to.Valid() {
		return Principal{}, invalid(op, "unknown status")
	}

	p, err := scanPrincipal(s.db.QueryRow(ctx,
		`UPDATE `+dbx.Ident(s.schema, "principals")+`
		    SET status = $2, updated_at = $3
		  WHERE id = $1
		  RETURNING `+principalColumns,
		id, string(to), now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}
	return p, err
}

// TransitionStatus is a single conditional UPDATE; concurrent callers race on the row lock
// and exactly one of them observes RowsAffected == 1.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, to Status, from []Status, now time.Time) (bool, error) {
	const op = "identity.TransitionStatus"
	if !to.Valid() {
		return false, invalid(op, "unknown status")
	}
	if len(from) == 0 {
		return false, nil
	}

	fromRaw := make([]string, 0, len(from))
	for _, f := range from {
		if f != to {
			fromRaw = append(fromRaw, string(f))
		}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE `+dbx.Ident(s.schema, "principals")+`
		    SET status = $2, updated_at = $3
		  WHERE id = $1 AND status = ANY($4)`,
		id, string(to), now, fromRaw,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCredential replaces the principal's credential hash (upsert).
func (s *PostgresStore) SetCredential(ctx context.Context, principalID, hash string, now time.Time) error {
	const op = "identity.SetCredential"
	if trimmed(hash) == "" {
		return invalid(op, "empty credential hash")
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO `+dbx.Ident(s.schema, "credentials")+` (principal_id, secret_hash, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (principal_id) DO UPDATE
		   SET secret_hash = EXCLUDED.secret_hash, updated_at = EXCLUDED.updated_at`,
		principalID, hash, now,
	)
	if dbx.IsForeignKeyViolation(err) {
		return NotFoundError{Op: op, Resource: "principal"}
	}
	return err
}

// GetCredential loads the principal's credential.
func (s *PostgresStore) GetCredential(ctx context.Context, principalID string) (Credential, error) {
	var c Credential
	err := s.db.QueryRow(ctx,
		`SELECT principal_id, secret_hash, updated_at
		   FROM `+dbx.Ident(s.schema, "credentials")+`
		  WHERE principal_id = $1`,
		principalID,
	).Scan(&c.PrincipalID, &c.Hash, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, NotFoundError{Op: "identity.GetCredential", Resource: "credential"}
	}
	return c, err
}

// conflictField maps constraint names to stable logical fields.
func conflictField(constraint string) string {
	switch {
	case strings.Contains(constraint, "handle"):
		return "handle"
	case strings.Contains(constraint, "email"):
		return "email"
	default:
		return "unique"
	}
}
