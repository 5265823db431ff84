package identity

import "strings"

// NormalizeHandle performs case-insensitive canonicalization.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier canonicalizes a login identifier that may be a handle or an email.
func NormalizeIdentifier(s string) string {
	if IsEmailLike(s) {
		return NormalizeEmail(s)
	}
	return NormalizeHandle(s)
}

// IsEmailLike is a shape check only; it is not address validation.
func IsEmailLike(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

func trimmed(s string) string { return strings.TrimSpace(s) }
