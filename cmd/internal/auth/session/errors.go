package session

import "errors"

var (
	// ErrInvalid covers every "no usable session" outcome: unknown token,
	// revoked, expired. Callers cannot tell them apart.
	ErrInvalid = errors.New("invalid session")

	// ErrTokenCollision is returned when a freshly minted token digest already exists.
	// The existing row is never overwritten.
	ErrTokenCollision = errors.New("session token collision")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// errNotFound is the store-level miss; Service maps it to ErrInvalid.
	errNotFound = errors.New("session not found")
)
