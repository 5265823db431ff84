package identity

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is; the auth core maps them onto
// denials without exposing which one occurred.
var (
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: conflict")
)

// OpError carries the failing operation and its kind.
// Msg is operator-facing context and never holds secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string { return formatOp(e.Op, e.Kind, e.Msg) }

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict for a logical field ("handle", "email").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string { return formatOp(e.Op, ErrConflict, e.Field) }

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing principal or credential.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string { return formatOp(e.Op, ErrNotFound, e.Resource) }

func (e NotFoundError) Unwrap() error { return ErrNotFound }

func formatOp(op string, kind error, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%s: %v", op, kind)
	}
	return fmt.Sprintf("%s: %v: %s", op, kind, detail)
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
