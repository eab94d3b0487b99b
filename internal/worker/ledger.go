// Package worker moves session events from the Redis stream into the attempt ledger.
package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	infraRedis "github.com/elektrahub/checkout/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Results reported for each handled message.
const (
	ResultRecorded     = "recorded"
	ResultDeadLettered = "dead_lettered"
	ResultError        = "error"
)

const readErrorBackoff = time.Second

// Source is a consumer group reader on the session event stream.
type Source interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// DeadLetters parks messages that can never be recorded.
type DeadLetters interface {
	PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error
}

// Ledger stores one session event.
type Ledger interface {
	Record(ctx context.Context, ev payment.SessionEvent) error
}

// Cleaner removes expired idempotency records.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Measurer receives per-message measurements.
type Measurer interface {
	MessageProcessed(stream, result string, elapsed time.Duration)
}

type nopMeasurer struct{}

func (nopMeasurer) MessageProcessed(string, string, time.Duration) {}

type Config struct {
	Stream        string
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	CleanupEvery  time.Duration
}

type Deps struct {
	Source      Source
	DeadLetters DeadLetters
	Ledger      Ledger
	Cleaner     Cleaner  // optional
	Measurer    Measurer // optional
}

// LedgerWorker records every session event exactly once per session and status. A message
// is acked only after it was recorded or dead-lettered; anything else stays pending and is
// picked up again by the claim loop.
type LedgerWorker struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

func NewLedgerWorker(cfg Config, deps Deps, logger zerolog.Logger) *LedgerWorker {
	if deps.Measurer == nil {
		deps.Measurer = nopMeasurer{}
	}
	if cfg.Stream == "" {
		cfg.Stream = infraRedis.SessionStream
	}
	return &LedgerWorker{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "ledger_worker").Str("stream", cfg.Stream).Logger(),
	}
}

// Run consumes until ctx is cancelled.
func (w *LedgerWorker) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.consume(gCtx) })
	if w.cfg.ClaimInterval > 0 {
		g.Go(func() error { return w.claim(gCtx) })
	}
	if w.deps.Cleaner != nil && w.cfg.CleanupEvery > 0 {
		g.Go(func() error { return w.cleanup(gCtx) })
	}

	return g.Wait()
}

func (w *LedgerWorker) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		messages, err := w.deps.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

func (w *LedgerWorker) claim(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		messages, err := w.deps.Source.ClaimStale(ctx, w.cfg.ClaimMinIdle)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Failed to claim stale messages")
			continue
		}
		if len(messages) > 0 {
			w.logger.Info().Int("count", len(messages)).Msg("Claimed stale messages")
		}
		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

func (w *LedgerWorker) cleanup(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := w.deps.Cleaner.Cleanup(ctx)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if n > 0 {
			w.logger.Info().Int64("removed", n).Msg("Removed expired idempotency keys")
		}
	}
}

// Handle processes one message and returns its result.
func (w *LedgerWorker) Handle(ctx context.Context, msg redis.XMessage) string {
	start := time.Now()
	result := w.handle(ctx, msg)
	w.deps.Measurer.MessageProcessed(w.cfg.Stream, result, time.Since(start))
	return result
}

func (w *LedgerWorker) handle(ctx context.Context, msg redis.XMessage) string {
	ev, err := infraRedis.DecodeSessionEvent(msg)
	if err != nil {
		return w.deadLetter(ctx, msg, err)
	}

	if err := w.deps.Ledger.Record(ctx, ev); err != nil {
		if errors.Is(err, domainErrors.ErrValidationFailed) {
			return w.deadLetter(ctx, msg, err)
		}
		w.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("session_id", ev.SessionID.String()).
			Msg("Failed to record attempt")
		return ResultError
	}

	w.ack(ctx, msg.ID)
	w.logger.Debug().
		Str("session_id", ev.SessionID.String()).
		Str("status", string(ev.Status)).
		Msg("Recorded session event")
	return ResultRecorded
}

func (w *LedgerWorker) deadLetter(ctx context.Context, msg redis.XMessage, cause error) string {
	if err := w.deps.DeadLetters.PublishToDLQ(ctx, msg, cause.Error()); err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to dead-letter message")
		return ResultError
	}
	w.logger.Warn().Err(cause).Str("message_id", msg.ID).Msg("Message moved to DLQ")
	w.ack(ctx, msg.ID)
	return ResultDeadLettered
}

func (w *LedgerWorker) ack(ctx context.Context, messageID string) {
	if err := w.deps.Source.Ack(ctx, messageID); err != nil {
		w.logger.Warn().Err(err).Str("message_id", messageID).Msg("Failed to ack message")
	}
}
