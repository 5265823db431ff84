package ratelimit

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrConfig indicates an invalid limiter configuration.
var ErrConfig = errors.New("ratelimit: invalid config")

// Config holds the attempt budgets. It is immutable once a Limiter is built.
type Config struct {
	// MaxAttempts is the per-identifier budget inside Window.
	MaxAttempts int
	// OriginMaxAttempts is the per-origin budget inside Window.
	OriginMaxAttempts int
	Window            time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		OriginMaxAttempts: 20,
		Window:            15 * time.Minute,
	}
}

// LoadConfigFromEnv reads:
//   - WARDEN_RATELIMIT_MAX_ATTEMPTS
//   - WARDEN_RATELIMIT_ORIGIN_MAX_ATTEMPTS
//   - WARDEN_RATELIMIT_WINDOW (Go duration)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_RATELIMIT_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return Config{}, ErrConfig
		}
		cfg.MaxAttempts = n
	}

	if v := os.Getenv("WARDEN_RATELIMIT_ORIGIN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100000 {
			return Config{}, ErrConfig
		}
		cfg.OriginMaxAttempts = n
	}

	if v := os.Getenv("WARDEN_RATELIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			return Config{}, ErrConfig
		}
		cfg.Window = d
	}

	return cfg, cfg.Validate()
}

// Validate checks the invariants New relies on.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 || c.OriginMaxAttempts < 1 || c.Window <= 0 {
		return ErrConfig
	}
	return nil
}
