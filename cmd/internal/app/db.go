package app

import (
	"context"
	"fmt"
	"time"

	"warden/cmd/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbStartupPingTimeout = 3 * time.Second
	dbReadyPingTimeout   = 2 * time.Second
)

// NewDBPool opens the Postgres pool for cfg.DatabaseURL, checks it answers
// and applies pending migrations when cfg.MigrateOnStart is set.
func NewDBPool(ctx context.Context, cfg Config, log Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	pcfg.MinConns = min(max(cfg.DBMinConns, 0), pcfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			pool.Close()
		}
	}()

	if err := PingDB(ctx, pool, dbStartupPingTimeout); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if cfg.MigrateOnStart {
		start := time.Now()
		if err := migrations.Up(ctx, pool); err != nil {
			return nil, fmt.Errorf("db: migrate: %w", err)
		}
		log.Info("db.migrate.ok", "duration_ms", time.Since(start).Milliseconds())
	}

	log.Info("db.pool.ready", "max_conns", pcfg.MaxConns, "min_conns", pcfg.MinConns)
	ok = true
	return pool, nil
}

// PingDB round-trips to Postgres within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}
