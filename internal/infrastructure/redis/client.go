package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/elektrahub/checkout/internal/infrastructure/config"
	"github.com/elektrahub/checkout/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient dials Redis and pings it with backoff until it answers.
func NewClient(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	backoff := retry.DefaultConfig()
	if cfg.ConnectRetries > 0 {
		backoff.MaxAttempts = uint(cfg.ConnectRetries)
	}
	if cfg.ConnectRetryDelay > 0 {
		backoff.InitialDelay = cfg.ConnectRetryDelay
	}

	err := retry.Do(ctx, backoff, func() error {
		return client.Ping(ctx).Err()
	}, func(n uint, err error) {
		logger.Warn().Err(err).Uint("attempt", n).Str("addr", cfg.RedisAddr()).Msg("redis not ready")
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", backoff.MaxAttempts, err)
	}

	return client, nil
}
