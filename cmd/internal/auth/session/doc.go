// Package session issues and validates opaque server-side sessions.
//
// A session token is 32 random bytes encoded as unpadded base64url. Only
// its digest is stored (HMAC-SHA256 when WARDEN_TOKEN_HMAC_KEY is set,
// SHA-256 otherwise), so a leaked table cannot be replayed.
//
// Validation is a single conditional update: a session that is inactive
// or past its expiry never gets its activity refreshed, and an expired row
// that is still marked active is closed with reason "timeout" on the way out.
package session
