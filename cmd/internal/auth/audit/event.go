// Package audit is warden's append-only security event trail.
//
// Every security-relevant action is recorded through Trail.Record, which
// stamps a ULID and the server clock. Events are never updated; the only
// delete path is an explicit PurgeOlderThan.
package audit

import (
	"errors"
	"strings"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventLoginAttempt           EventType = "login_attempt"
	EventLoginSuccess           EventType = "login_success"
	EventLoginFailed            EventType = "login_failed"
	EventLoginRateLimited       EventType = "login_rate_limited"
	EventLoginBlockedOrigin     EventType = "login_blocked_origin"
	EventLoginStatusDenied      EventType = "login_status_denied"
	EventUserLogout             EventType = "user_logout"
	EventSessionRevoked         EventType = "session_revoked"
	EventOriginBlocked          EventType = "origin_blocked"
	EventOriginUnblocked        EventType = "origin_unblocked"
	EventSuspiciousActivity     EventType = "suspicious_activity"
	EventAccountFlagged         EventType = "account_flagged"
	EventPrincipalStatusChanged EventType = "principal_status_changed"
	EventAuditPurged            EventType = "audit_purged"
)

// Entity types referenced by events.
const (
	EntityPrincipal = "principal"
	EntitySession   = "session"
	EntityOrigin    = "origin"
	EntityAudit     = "audit"
)

var (
	// ErrStore wraps any persistence failure; callers must treat it as fatal for the operation.
	ErrStore = errors.New("audit store failure")
	// ErrInvalid reports a malformed entry or query argument.
	ErrInvalid = errors.New("invalid audit request")
)

// Entry is the caller-supplied part of an event.
type Entry struct {
	Type          EventType
	PrincipalID   string
	EntityType    string
	EntityID      string
	Action        string
	Metadata      map[string]any
	Origin        string
	ClientAgent   string
	CorrelationID string
}

// Source identifies the request an event came from.
type Source struct {
	Origin        string
	ClientAgent   string
	CorrelationID string
}

// Stamp copies src into e.
func (e Entry) Stamp(src Source) Entry {
	e.Origin = src.Origin
	e.ClientAgent = src.ClientAgent
	e.CorrelationID = src.CorrelationID
	return e
}

// Event is an immutable, persisted audit record.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"event_type"`
	PrincipalID   string         `json:"principal_id,omitempty"`
	EntityType    string         `json:"entity_type,omitempty"`
	EntityID      string         `json:"entity_id,omitempty"`
	Action        string         `json:"action,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Origin        string         `json:"origin,omitempty"`
	ClientAgent   string         `json:"client_agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Filter narrows Query and Count. Zero fields are ignored; From is inclusive, To exclusive.
type Filter struct {
	Type        EventType
	PrincipalID string
	EntityType  string
	Origin      string
	From        time.Time
	To          time.Time
	Search      string
}

// Page is one page of Query results, newest first.
type Page struct {
	Events   []Event `json:"events"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Stats summarizes the trail.
type Stats struct {
	Total            int               `json:"total"`
	Last24h          int               `json:"last_24h"`
	ByType           map[EventType]int `json:"by_type"`
	UniquePrincipals int               `json:"unique_principals"`
	UniqueOrigins    int               `json:"unique_origins"`
}

// Dimension selects the grouping key for MostActive.
type Dimension string

const (
	DimensionPrincipal Dimension = "principal"
	DimensionEventType Dimension = "event_type"
	DimensionOrigin    Dimension = "origin"
)

// ParseDimension validates a raw dimension name.
func ParseDimension(raw string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(raw))); d {
	case DimensionPrincipal, DimensionEventType, DimensionOrigin:
		return d, nil
	default:
		return "", ErrInvalid
	}
}

// Ranked is one row of a MostActive result.
type Ranked struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func (e Event) matches(f Filter) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.Origin != "" && e.Origin != f.Origin {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.OccurredAt.Before(f.To) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" && !e.contains(strings.ToLower(q)) {
		return false
	}
	return true
}

func (e Event) contains(needle string) bool {
	for _, hay := range []string{e.Action, e.EntityID, e.ClientAgent, metadataText(e.Metadata)} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
