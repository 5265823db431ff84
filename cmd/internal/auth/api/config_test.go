package authapi

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TrustProxy {
		t.Fatalf("proxy headers must not be trusted by default")
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("RequestTimeout=%s", cfg.RequestTimeout)
	}
	if cfg.CookieName != "warden_session" || cfg.CookieSameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("WARDEN_API_COOKIE_SAMESITE", "none")
	t.Setenv("WARDEN_API_COOKIE_SECURE", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestLoadConfigFromEnv_ShortAdminKey(t *testing.T) {
	t.Setenv("WARDEN_ADMIN_KEY", "short")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatalf("expected error for short admin key")
	}

	t.Setenv("WARDEN_ADMIN_KEY", strings.Repeat("k", MinAdminKeyLen))
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.AdminKey == "" {
		t.Fatalf("admin key not loaded")
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "None", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := parseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
