package authapi

import (
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/authn"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	OK            bool                 `json:"ok"`
	Token         string               `json:"token,omitempty"`
	SessionID     string               `json:"session_id,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	Principal     *authn.PrincipalView `json:"principal,omitempty"`
	Message       string               `json:"message,omitempty"`
	Status        identity.Status      `json:"status,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
}

type sessionResponse struct {
	OK        bool                 `json:"ok"`
	SessionID string               `json:"session_id,omitempty"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Principal *authn.PrincipalView `json:"principal,omitempty"`
}

type scoreRequest struct {
	Password string `json:"password"`
}
