package suspicion

import (
	"errors"
	"os"
	"strconv"
	"time"
)

var ErrConfig = errors.New("suspicion: invalid config")

// Config sets when repeated reports suspend a principal.
type Config struct {
	Threshold int
	Window    time.Duration
}

func DefaultConfig() Config {
	return Config{Threshold: 10, Window: time.Hour}
}

// LoadConfigFromEnv reads WARDEN_SUSPICION_THRESHOLD and WARDEN_SUSPICION_WINDOW.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_SUSPICION_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, ErrConfig
		}
		cfg.Threshold = n
	}
	if v := os.Getenv("WARDEN_SUSPICION_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Window = d
	}
	return cfg, nil
}
