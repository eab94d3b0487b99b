package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/bootstrap"
	"github.com/elektrahub/checkout/internal/infrastructure/postgres"
	infraRedis "github.com/elektrahub/checkout/internal/infrastructure/redis"
	"github.com/elektrahub/checkout/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// metricsAddr serves the worker's /metrics; the API port is taken by cmd/api.
const metricsAddr = ":9091"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.SessionStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	ledger := worker.NewLedgerWorker(worker.Config{
		Stream:        infraRedis.SessionStream,
		ClaimInterval: workerCfg.ClaimInterval,
		ClaimMinIdle:  workerCfg.ClaimMinIdle,
		CleanupEvery:  workerCfg.CleanupEvery,
	}, worker.Deps{
		Source:      consumer,
		DeadLetters: infraRedis.NewStreamProducer(app.Redis),
		Ledger: checkout.NewAttemptLog(
			postgres.NewAttemptRepository(app.Pool),
			postgres.NewTxManager(app.Pool),
		),
		Cleaner:  postgres.NewIdempotencyRepository(app.Pool),
		Measurer: app.Metrics,
	}, app.Logger)

	app.Logger.Info().
		Str("stream", infraRedis.SessionStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ledger.Run(gCtx)
	})

	if gatherer := app.Gatherer(); gatherer != nil {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
