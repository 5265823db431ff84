package authn

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks malformed requests. They never reach the stores.
	ErrInput = errors.New("invalid input")

	// ErrDenied is returned with a populated LoginResult when a login is refused.
	ErrDenied = errors.New("login denied")

	// ErrSystem covers storage and integrity failures. The operation did not
	// complete and the caller should try again.
	ErrSystem = errors.New("system error")

	// ErrInvalidSession is returned for unknown, expired or revoked sessions,
	// and for sessions whose principal is no longer active.
	ErrInvalidSession = errors.New("invalid session")

	ErrConfig = errors.New("invalid config")
)

// InputError reports which request field was rejected.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InputError) Unwrap() error { return ErrInput }

func inputError(field, msg string) error {
	return &InputError{Field: field, Message: msg}
}

// systemError logs nothing itself; callers log before wrapping.
func systemError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSystem, err)
}
