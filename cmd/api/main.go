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
	"github.com/elektrahub/checkout/internal/controller"
	"github.com/elektrahub/checkout/internal/infrastructure/postgres"
	infraRedis "github.com/elektrahub/checkout/internal/infrastructure/redis"
	"github.com/elektrahub/checkout/internal/infrastructure/storefront"
	"golang.org/x/sync/errgroup"
)

// idempotencyClaimTTL outlives the router's request timeout.
const idempotencyClaimTTL = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Storefront backend ---
	gateway := storefront.NewClient(storefront.Options{
		BaseURL:          cfg.Storefront.BaseURL,
		Timeout:          cfg.Storefront.RequestTimeout,
		BreakerThreshold: cfg.Storefront.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.Storefront.CircuitBreakerTimeout,
		Observer:         app.Metrics,
		Logger:           app.Logger,
	})

	// --- Sessions ---
	sessions := checkout.NewManager(checkout.Config{
		PollInterval:     cfg.Checkout.PollInterval,
		PaymentTimeout:   cfg.Checkout.PaymentTimeout,
		CountdownTick:    cfg.Checkout.CountdownTick,
		SessionRetention: cfg.Checkout.SessionRetention,
		PublishTimeout:   cfg.Checkout.PublishTimeout,
	}, checkout.Deps{
		Gateway:   gateway,
		Locker:    infraRedis.NewOrderLocker(app.Redis, cfg.Checkout.LockTTL),
		Publisher: infraRedis.NewStreamProducer(app.Redis),
		Recorder:  app.Metrics,
	}, app.Logger)

	// --- Attempt ledger ---
	attempts := checkout.NewAttemptLog(
		postgres.NewAttemptRepository(app.Pool),
		postgres.NewTxManager(app.Pool),
	)

	router := controller.NewRouter(controller.RouterDeps{
		Sessions:          sessions,
		Attempts:          attempts,
		IdempotencyStore:  postgres.NewIdempotencyRepository(app.Pool),
		IdempotencyClaims: infraRedis.NewIdempotencyClaims(app.Redis, idempotencyClaimTTL),
		IdempotencyTTL:    cfg.Worker.IdempotencyTTL,
		HealthChecks: []controller.HealthCheck{
			{Name: "database", Ping: app.Pool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }},
		},
		Metrics:    app.Metrics,
		Gatherer:   app.Gatherer(),
		CORSConfig: cfg.Server.CORS,
		Auth:       cfg.Auth,
		RateLimit:  cfg.RateLimit,
		Logger:     app.Logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		// Pending sessions lose their timers here; the order stays payable from the orders page.
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Sessions did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server error")
	}
	app.Logger.Info().Msg("Server exited")
}
