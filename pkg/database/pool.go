package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abushana-oss/mithran-sub003/config"
)

// PoolConfig translates the database settings into a pgxpool configuration.
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolMax)
	poolConfig.MinConns = int32(cfg.PoolMinConns)
	poolConfig.MaxConnLifetime = cfg.PoolMaxConnLife
	poolConfig.MaxConnIdleTime = cfg.PoolMaxConnIdle
	poolConfig.HealthCheckPeriod = cfg.HealthCheck
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return poolConfig, nil
}

// NewPool creates the pool for calculator storage and verifies it with a ping.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database at %s:%s/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return pool, nil
}

// Close closes the pool if one was opened.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
