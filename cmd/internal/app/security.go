package app

import (
	"errors"
	"fmt"

	"warden/cmd/security/token"
)

// securityHasher builds the session token hasher and enforces the HMAC policy.
// require comes from WARDEN_REQUIRE_TOKEN_HMAC or WARDEN_SESSION_REQUIRE_HMAC.
func securityHasher(require bool) (token.Hasher, error) {
	h, err := token.HasherFromEnv(require, token.MinBytes)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, fmt.Errorf("security policy: token HMAC required but %s is missing", token.HMACEnvKey)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, token.MinBytes)
	case err != nil:
		return token.Hasher{}, err
	}

	if require && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
