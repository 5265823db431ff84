package session

import (
	"context"
	"time"
)

// Revocation reasons recorded on closed sessions.
const (
	ReasonUser             = "user"
	ReasonTimeout          = "timeout"
	ReasonAdmin            = "admin"
	ReasonAccountSuspended = "account_suspended"
	// ReasonSystem closes a session whose issuance could not be audited.
	ReasonSystem = "system"
)

// Fingerprint is the client context captured when a session is created.
type Fingerprint struct {
	Origin      string `json:"origin,omitempty"`
	ClientAgent string `json:"client_agent,omitempty"`
}

// Record mirrors one warden.sessions row.
type Record struct {
	ID             string
	TokenHash      string
	PrincipalID    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Fingerprint    Fingerprint
	Active         bool
	RevokeReason   string
	RevokedAt      *time.Time
}

// Store persists sessions keyed by token digest.
type Store interface {
	// Insert adds r. A digest that already exists yields ErrTokenCollision and leaves the old row intact.
	Insert(ctx context.Context, r Record) error

	// Touch atomically refreshes last activity for an active, unexpired session and returns it.
	// On a miss it closes an expired-but-active row with ReasonTimeout and returns errNotFound.
	Touch(ctx context.Context, tokenHash string, now time.Time) (Record, error)

	// RevokeByHash closes one session. The first reason and time win. found is false when no row matches.
	RevokeByHash(ctx context.Context, tokenHash, reason string, now time.Time) (r Record, found bool, err error)

	// RevokeByID is RevokeByHash addressed by session ID.
	RevokeByID(ctx context.Context, id, reason string, now time.Time) (r Record, found bool, err error)

	// RevokeAll closes every active session of a principal and returns how many were closed.
	RevokeAll(ctx context.Context, principalID, reason string, now time.Time) (int64, error)

	// ListActive returns a principal's active, unexpired sessions, newest first.
	ListActive(ctx context.Context, principalID string, now time.Time) ([]Record, error)
}
