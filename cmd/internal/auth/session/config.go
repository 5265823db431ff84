package session

import (
	"os"
	"strconv"
	"time"

	"warden/cmd/security/token"
)

// Config defines session lifetimes and token entropy.
type Config struct {
	// TTL is the lifetime of a normal session.
	TTL time.Duration

	// RememberMeTTL is used when the login asked to be remembered.
	RememberMeTTL time.Duration

	// TokenBytes is the random byte count behind each token (32..64).
	TokenBytes int

	// RequireHMAC refuses to start without WARDEN_TOKEN_HMAC_KEY.
	RequireHMAC bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		TokenBytes:    token.MinBytes,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - WARDEN_SESSION_TTL
//   - WARDEN_SESSION_REMEMBER_TTL
//   - WARDEN_SESSION_TOKEN_BYTES
//   - WARDEN_SESSION_REQUIRE_HMAC (true/false)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("WARDEN_SESSION_REMEMBER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RememberMeTTL = d
	}

	if v := os.Getenv("WARDEN_SESSION_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := os.Getenv("WARDEN_SESSION_REQUIRE_HMAC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.RequireHMAC = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and ordering.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.RememberMeTTL <= 0 {
		return ErrConfig
	}
	// A remembered session must not be shorter than a normal one.
	if c.RememberMeTTL < c.TTL {
		return ErrConfig
	}
	if c.TokenBytes < token.MinBytes || c.TokenBytes > token.MaxBytes {
		return ErrConfig
	}
	return nil
}
