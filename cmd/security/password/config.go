package password

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, Hash refuses passwords that Score marks invalid.
	EnforceStrength bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used for interactive logins.
func DefaultConfig() Config {
	// Clamp to [1..4] so container limits stay predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads),
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:       MinLength,
			MaxLength:       256,
			EnforceStrength: true,
		},
	}
}

// FromEnv loads config from WARDEN_PASSWORD_* and WARDEN_ARGON2_* env vars.
// Unset keys keep DefaultConfig values; a malformed or out-of-range value is an error.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	settings := []struct {
		key   string
		apply func(string) error
	}{
		{"WARDEN_PASSWORD_MIN_LEN", intSetting(&cfg.Policy.MinLength, 1, 1024)},
		{"WARDEN_PASSWORD_MAX_LEN", intSetting(&cfg.Policy.MaxLength, 1, 4096)},
		{"WARDEN_PASSWORD_ENFORCE_STRENGTH", boolSetting(&cfg.Policy.EnforceStrength)},
		{"WARDEN_ARGON2_MEMORY_KIB", u32Setting(&cfg.Params.MemoryKiB, 8*1024, 1024*1024)},
		{"WARDEN_ARGON2_ITERATIONS", u32Setting(&cfg.Params.Iterations, 1, 20)},
		{"WARDEN_ARGON2_PARALLELISM", func(v string) error {
			var u uint32
			if err := u32Setting(&u, 1, 64)(v); err != nil {
				return err
			}
			cfg.Params.Parallelism = uint8(u)
			return nil
		}},
		{"WARDEN_ARGON2_SALT_LEN", u32Setting(&cfg.Params.SaltLength, 8, 64)},
		{"WARDEN_ARGON2_KEY_LEN", u32Setting(&cfg.Params.KeyLength, 16, 64)},
	}

	for _, s := range settings {
		v, ok := os.LookupEnv(s.key)
		if !ok {
			continue
		}
		if err := s.apply(strings.TrimSpace(v)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func intSetting(dst *int, minVal, maxVal int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("not an integer")
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = n
		return nil
	}
}

func u32Setting(dst *uint32, minVal, maxVal uint32) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.New("not an unsigned integer")
		}
		if u := uint32(n); u < minVal || u > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = uint32(n)
		return nil
	}
}

func boolSetting(dst *bool) func(string) error {
	return func(v string) error {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			return errors.New("invalid boolean")
		}
		return nil
	}
}
