package authn

import (
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/identity/ids"
	"warden/cmd/internal/auth/audit"
)

// Stage is a step of the login state machine.
type Stage string

const (
	StageStart           Stage = "start"
	StageBlockCheck      Stage = "block_check"
	StageRateCheck       Stage = "rate_check"
	StageCredentialCheck Stage = "credential_check"
	StageStatusCheck     Stage = "status_check"
	StageSessionIssue    Stage = "session_issue"
	StageDone            Stage = "done"
)

// Reason says why a login was denied.
type Reason string

const (
	ReasonBlocked            Reason = "blocked"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonInactive           Reason = "inactive"
)

// GenericDenialMessage is shown for blocked, rate-limited and bad-credential denials alike.
const GenericDenialMessage = "Invalid credentials. Please try again later."

// SystemErrorMessage is the only text callers see for ErrSystem.
const SystemErrorMessage = "Something went wrong. Please try again."

// RequestMeta describes where a request came from.
type RequestMeta struct {
	Origin        string
	ClientAgent   string
	CorrelationID string
}

// withCorrelation fills in a correlation id when the caller did not supply a usable one.
func (m RequestMeta) withCorrelation() RequestMeta {
	m.Origin = strings.TrimSpace(m.Origin)
	m.ClientAgent = clip(strings.TrimSpace(m.ClientAgent), 512)
	if !ids.ValidCorrelationID(m.CorrelationID) {
		m.CorrelationID = ids.NewCorrelationID()
	}
	return m
}

func (m RequestMeta) source() audit.Source {
	return audit.Source{Origin: m.Origin, ClientAgent: m.ClientAgent, CorrelationID: m.CorrelationID}
}

// LoginRequest is one login attempt.
type LoginRequest struct {
	Identifier    string
	Secret        string
	RememberMe    bool
	Origin        string
	ClientAgent   string
	CorrelationID string
}

func (r LoginRequest) meta() RequestMeta {
	return RequestMeta{Origin: r.Origin, ClientAgent: r.ClientAgent, CorrelationID: r.CorrelationID}
}

// PrincipalView is the principal data handed back to callers.
type PrincipalView struct {
	ID     string          `json:"id"`
	Handle string          `json:"handle"`
	Email  string          `json:"email,omitempty"`
	Status identity.Status `json:"status"`
}

func viewOf(p identity.Principal) PrincipalView {
	return PrincipalView{ID: p.ID, Handle: p.Handle, Email: p.Email, Status: p.Status}
}

// LoginResult is the outcome of Login. OK is true only at StageDone.
type LoginResult struct {
	OK        bool
	Stage     Stage
	Reason    Reason
	Message   string
	Token     string
	SessionID string
	ExpiresAt time.Time
	Principal *PrincipalView
	// Status is set for ReasonInactive denials.
	Status identity.Status
	// CorrelationID ties the result to its audit events.
	CorrelationID string
}

// SessionContext is the validated caller identity threaded into handlers.
type SessionContext struct {
	SessionID     string
	Principal     PrincipalView
	Origin        string
	ClientAgent   string
	CorrelationID string
	ExpiresAt     time.Time
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
