package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TTL != 24*time.Hour || cfg.RememberMeTTL != 30*24*time.Hour || cfg.TokenBytes != 32 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("WARDEN_SESSION_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidTokenBytes(t *testing.T) {
	for _, v := range []string{"16", "65", "abc"} {
		t.Setenv("WARDEN_SESSION_TOKEN_BYTES", v)
		if _, err := LoadConfigFromEnv(); err != ErrConfig {
			t.Fatalf("expected ErrConfig for token bytes %q, got %v", v, err)
		}
	}
}

func TestLoadConfigFromEnv_RememberShorterThanTTL(t *testing.T) {
	t.Setenv("WARDEN_SESSION_TTL", "48h")
	t.Setenv("WARDEN_SESSION_REMEMBER_TTL", "24h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig when remember-me TTL < TTL, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("WARDEN_SESSION_TTL", "12h")
	t.Setenv("WARDEN_SESSION_REMEMBER_TTL", "168h")
	t.Setenv("WARDEN_SESSION_TOKEN_BYTES", "48")
	t.Setenv("WARDEN_SESSION_REQUIRE_HMAC", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TTL != 12*time.Hour || cfg.RememberMeTTL != 7*24*time.Hour || cfg.TokenBytes != 48 || !cfg.RequireHMAC {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
