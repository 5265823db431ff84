// Package authn is warden's login, session validation and logout flow.
//
// A login walks a fixed sequence of stages:
//
//	START → BLOCK_CHECK → RATE_CHECK → CREDENTIAL_CHECK → STATUS_CHECK → SESSION_ISSUE → DONE
//
// and may exit early as denied. Every transition that matters is written to
// the audit trail before the caller sees the result; if the trail cannot be
// written the login fails with ErrSystem.
//
// Blocked origins, rate-limited attempts and bad credentials all produce the
// same external message so a caller cannot tell which check refused it.
package authn
