// Package password implements warden's password policy and credential hashing.
//
// It provides:
// - Score: a pure, additive strength estimator with hard validation errors.
// - Argon2id hashing using a PHC-like encoded string format.
// - Strict hash decoding and verification with anti-DoS bounds.
//
// Hash strings are treated as untrusted input during Verify; parameters far
// above the configured cost are refused.
package password
