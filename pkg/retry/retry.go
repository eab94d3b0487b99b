package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config controls the backoff used when dialing infrastructure at startup.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Notify is called after every failed attempt, n starting at 1.
type Notify func(n uint, err error)

// Do runs fn until it succeeds, the attempts run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error, notify Notify) error {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if notify != nil {
				notify(n+1, err)
			}
		}),
	)
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error), notify Notify) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	}, notify)
	return result, err
}
