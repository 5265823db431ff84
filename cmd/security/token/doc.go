// Package token provides opaque session token primitives for warden.
//
// Tokens are generated from crypto/rand and handed to clients exactly once.
// The server only ever persists a digest of the token:
// - HMAC-SHA256(token, key) when WARDEN_TOKEN_HMAC_KEY is configured.
// - SHA-256(token) otherwise (development mode).
//
// Digests are 64-char lowercase hex, suitable as a primary key.
package token
