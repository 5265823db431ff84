// Package ids mints the sortable identifiers used for sessions, audit
// events and request correlation.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a 26-char ULID stamped with now (or the current time when now is zero).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewCorrelationID returns a fresh ULID for tying a request's log lines and
// audit events together. It never fails.
func NewCorrelationID() string {
	return ulid.Make().String()
}

// ValidCorrelationID reports whether s is acceptable as a caller-supplied
// correlation id: 1..64 chars of [A-Za-z0-9._-].
func ValidCorrelationID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
