package app

import (
	"context"
	"fmt"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/blocklist"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/dbx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// stores bundles the persistence backends chosen at startup.
// Postgres backs principals, sessions, audit and blocks when WARDEN_DATABASE_URL
// is set; Redis backs the rate-limit counters when WARDEN_REDIS_URL is set.
// Everything else falls back to in-memory stores.
type stores struct {
	principals identity.Store
	sessions   session.Store
	audit      audit.Store
	blocks     blocklist.Store
	counters   ratelimit.Store

	pool  *pgxpool.Pool
	redis *redis.Client
}

func newStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	st := &stores{}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st.redis = client
		st.counters = ratelimit.NewRedisStore(client, cfg.RedisPrefix)
		log.Info("ratelimit.store.redis")
	} else {
		st.counters = ratelimit.NewMemoryStore()
		log.Info("ratelimit.store.memory")
	}

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		st.principals = identity.NewMemoryStore()
		st.sessions = session.NewMemoryStore()
		st.audit = audit.NewMemoryStore()
		st.blocks = blocklist.NewMemoryStore()
		return st, nil
	}

	pool, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		st.close()
		return nil, err
	}
	st.pool = pool

	if err := st.openPostgres(pool); err != nil {
		st.close()
		return nil, err
	}
	log.Info("db.enabled.postgres_store")
	return st, nil
}

func (st *stores) openPostgres(pool *pgxpool.Pool) error {
	var err error
	if st.principals, err = identity.NewPostgresStore(pool, identity.WithSchema(dbx.DefaultSchema)); err != nil {
		return err
	}
	if st.sessions, err = session.NewPostgresStore(pool, dbx.DefaultSchema); err != nil {
		return err
	}
	if st.audit, err = audit.NewPostgresStore(pool, dbx.DefaultSchema); err != nil {
		return err
	}
	if st.blocks, err = blocklist.NewPostgresStore(pool, dbx.DefaultSchema); err != nil {
		return err
	}
	return nil
}

func (st *stores) close() {
	if st.pool != nil {
		st.pool.Close()
	}
	if st.redis != nil {
		_ = st.redis.Close()
	}
}
