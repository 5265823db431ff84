package identity

import (
	"context"
	"time"
)

// Status is a principal's lifecycle state.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusBanned              Status = "banned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusSuspended, StatusBanned:
		return true
	default:
		return false
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(NormalizeHandle(raw))
	if !s.Valid() {
		return "", invalid("identity.ParseStatus", "unknown status")
	}
	return s, nil
}

// DenialMessage is the user-facing explanation for a non-active status.
func (s Status) DenialMessage() string {
	switch s {
	case StatusPendingVerification:
		return "account is pending verification"
	case StatusSuspended:
		return "account is suspended"
	case StatusBanned:
		return "account is banned"
	default:
		return ""
	}
}

// Principal is an authenticatable account.
type Principal struct {
	ID         string
	Handle     string
	HandleNorm string
	Email      string
	EmailNorm  string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential is the single stored secret hash for a principal. It is replaced wholesale.
type Credential struct {
	PrincipalID string
	Hash        string
	UpdatedAt   time.Time
}

// CreateInput describes a new principal. Handle is required; Email is optional.
type CreateInput struct {
	Handle string
	Email  string
	Status Status
	Now    time.Time
}

// Reader is the read side used by authentication.
type Reader interface {
	GetByID(ctx context.Context, id string) (Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (Principal, error)
}

// Store is the principal persistence boundary.
type Store interface {
	Reader

	Create(ctx context.Context, in CreateInput) (Principal, error)

	// SetStatus unconditionally sets a principal's status.
	SetStatus(ctx context.Context, id string, to Status, now time.Time) (Principal, error)

	// TransitionStatus moves the principal to "to" only if its current status is one of from.
	// It reports whether this call performed the transition.
	TransitionStatus(ctx context.Context, id string, to Status, from []Status, now time.Time) (bool, error)

	SetCredential(ctx context.Context, principalID, hash string, now time.Time) error
	GetCredential(ctx context.Context, principalID string) (Credential, error)
}

func validateCreate(op string, in CreateInput) (CreateInput, error) {
	in.Handle = trimmed(in.Handle)
	in.Email = trimmed(in.Email)
	if in.Handle == "" {
		return in, invalid(op, "handle is required")
	}
	if IsEmailLike(in.Handle) {
		return in, invalid(op, "handle must not look like an email")
	}
	if in.Email != "" && !IsEmailLike(in.Email) {
		return in, invalid(op, "email is malformed")
	}
	if in.Status == "" {
		in.Status = StatusPendingVerification
	}
	if !in.Status.Valid() {
		return in, invalid(op, "unknown status")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
