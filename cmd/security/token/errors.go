package token

import "errors"

var (
	// ErrHMACKeyMissing: WARDEN_TOKEN_HMAC_KEY is unset or blank.
	ErrHMACKeyMissing = errors.New("token: hmac key not configured")
	// ErrHMACKeyTooShort: the configured key is under the required byte length.
	ErrHMACKeyTooShort = errors.New("token: hmac key too short")
	// ErrTokenBytes: requested entropy is outside [MinBytes, MaxBytes].
	ErrTokenBytes = errors.New("token: entropy out of range")
)
