package authapi

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinAdminKeyLen is the shortest admin key accepted.
const MinAdminKeyLen = 32

var ErrConfig = errors.New("invalid api config")

// Config controls the HTTP surface.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// AdminKey guards /admin/*. Empty disables the admin routes.
	AdminKey string

	// Cookie transport for browser clients. The bearer header always works.
	CookieEnabled  bool
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	RequestTimeout time.Duration
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		TrustProxy:     envBool("WARDEN_API_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("WARDEN_API_MAX_BODY_BYTES", 64<<10),
		AdminKey:       strings.TrimSpace(os.Getenv("WARDEN_ADMIN_KEY")),
		CookieEnabled:  envBool("WARDEN_API_COOKIE_ENABLED", false),
		CookieName:     envString("WARDEN_API_COOKIE_NAME", "warden_session"),
		CookiePath:     envString("WARDEN_API_COOKIE_PATH", "/"),
		CookieDomain:   strings.TrimSpace(os.Getenv("WARDEN_API_COOKIE_DOMAIN")),
		CookieSecure:   envBool("WARDEN_API_COOKIE_SECURE", true),
		CookieSameSite: parseSameSite(os.Getenv("WARDEN_API_COOKIE_SAMESITE")),
		RequestTimeout: envDuration("WARDEN_API_REQUEST_TIMEOUT", 5*time.Second),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.AdminKey != "" && len(cfg.AdminKey) < MinAdminKeyLen {
		return Config{}, ErrConfig
	}
	return cfg, nil
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
