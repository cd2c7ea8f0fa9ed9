// Package app wires infrastructure shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ananse-reader/internal/adapters/repo"
	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/cache"
	"ananse-reader/internal/infra/config"
	"ananse-reader/internal/infra/db"
)

// OpenStore connects to the configured database and applies the schema.
// The returned func releases the connection.
func OpenStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.Store, func(), error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info().Str("driver", cfg.DBDriver).Msg("storage ready")
		return repo.NewPostgres(pool), pool.Close, nil
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.MigrateSQLite(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info().Str("driver", cfg.DBDriver).Str("path", cfg.SQLitePath).Msg("storage ready")
		return repo.NewSQLite(conn), func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

// NewCache returns a Redis cache when REDIS_ADDR is set and an in-process one otherwise.
func NewCache(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		logger.Info().Dur("ttl", cfg.Cache.TTL).Msg("chapter cache: in-process")
		return cache.NewMemory(cfg.Cache.TTL), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("chapter cache: redis unreachable, reads fall through to storage until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("chapter cache: redis")
	}
	return cache.NewRedis(client, "ananse:"), func() { _ = client.Close() }
}
