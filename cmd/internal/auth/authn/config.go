package authn

import (
	"os"
	"strconv"
	"time"
)

// Config holds login flow knobs. Attempt budgets live in ratelimit.Config.
type Config struct {
	// BlockDuration is how long an origin stays blocked after exceeding a
	// budget. Zero blocks permanently.
	BlockDuration time.Duration

	// OpTimeout bounds each store call made on behalf of one request.
	OpTimeout time.Duration

	// CredentialTimeout bounds the secret verification step, which includes
	// the deliberately slow hash comparison.
	CredentialTimeout time.Duration

	MaxIdentifierLen int
	MaxSecretLen     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BlockDuration:     time.Hour,
		OpTimeout:         250 * time.Millisecond,
		CredentialTimeout: 2 * time.Second,
		MaxIdentifierLen:  254,
		MaxSecretLen:      1024,
	}
}

// LoadConfigFromEnv loads login configuration from environment variables.
//
// Optional:
//   - WARDEN_AUTH_BLOCK_DURATION (Go duration; "0" = permanent)
//   - WARDEN_AUTH_OP_TIMEOUT
//   - WARDEN_AUTH_CREDENTIAL_TIMEOUT
//   - WARDEN_AUTH_MAX_IDENTIFIER_LEN
//   - WARDEN_AUTH_MAX_SECRET_LEN
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WARDEN_AUTH_BLOCK_DURATION", &cfg.BlockDuration},
		{"WARDEN_AUTH_OP_TIMEOUT", &cfg.OpTimeout},
		{"WARDEN_AUTH_CREDENTIAL_TIMEOUT", &cfg.CredentialTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, ErrConfig
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WARDEN_AUTH_MAX_IDENTIFIER_LEN", &cfg.MaxIdentifierLen},
		{"WARDEN_AUTH_MAX_SECRET_LEN", &cfg.MaxSecretLen},
	}
	for _, n := range ints {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, ErrConfig
			}
			*n.dst = parsed
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.BlockDuration < 0 || c.OpTimeout <= 0 || c.CredentialTimeout <= 0 {
		return ErrConfig
	}
	if c.MaxIdentifierLen < 1 || c.MaxSecretLen < 1 {
		return ErrConfig
	}
	return nil
}
