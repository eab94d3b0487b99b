package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/elektrahub/checkout/internal/infrastructure/config"
	"github.com/elektrahub/checkout/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool creates the connection pool and waits for the database to accept connections.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	backoff := retry.DefaultConfig()
	if cfg.ConnectRetries > 0 {
		backoff.MaxAttempts = uint(cfg.ConnectRetries)
	}
	err = retry.Do(ctx, backoff, func() error {
		return pool.Ping(ctx)
	}, func(n uint, err error) {
		logger.Warn().Err(err).Uint("attempt", n).Str("host", cfg.Host).Msg("database not ready")
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
