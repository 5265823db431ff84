package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig marks an invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool

	// RedisURL enables the shared rate-limit store; empty keeps counters in memory.
	RedisURL    string
	RedisPrefix string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, WARDEN_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	AlertQueueSize int
	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WARDEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WARDEN_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(EnvString("WARDEN_LOG_FORMAT", "json")),

		ReadHeaderTimeout: EnvDuration("WARDEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WARDEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WARDEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WARDEN_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("WARDEN_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    EnvInt("WARDEN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:    EnvString("WARDEN_DATABASE_URL", ""),
		DBMaxConns:     EnvInt32("WARDEN_DB_MAX_CONNS", 10),
		DBMinConns:     EnvInt32("WARDEN_DB_MIN_CONNS", 0),
		MigrateOnStart: EnvBool("WARDEN_DB_MIGRATE", true),

		RedisURL:    EnvString("WARDEN_REDIS_URL", ""),
		RedisPrefix: EnvString("WARDEN_REDIS_PREFIX", "warden"),

		ReadinessRequireDB: EnvBool("WARDEN_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("WARDEN_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("WARDEN_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("WARDEN_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("WARDEN_CORS_MAX_AGE_SECONDS", 600),

		AlertQueueSize: EnvInt("WARDEN_ALERT_QUEUE_SIZE", 256),
		MetricsEnabled: EnvBool("WARDEN_METRICS_ENABLED", true),
	}
}

// Validate reports settings the runtime cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%w: http addr is required", ErrConfig)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: log format must be json or pretty, got %q", ErrConfig, c.LogFormat)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("%w: db min conns exceeds max conns", ErrConfig)
	}
	if c.CORSAllowCredentials {
		for _, o := range c.CORSAllowedOrigins {
			if o == "*" {
				return fmt.Errorf("%w: cors credentials cannot be combined with a wildcard origin", ErrConfig)
			}
		}
	}
	return nil
}
