package controller

import (
	"net/http"
	"time"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/infrastructure/config"
	"github.com/elektrahub/checkout/internal/infrastructure/observability"
	customMW "github.com/elektrahub/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Sessions          *checkout.Manager
	Attempts          *checkout.AttemptLog
	IdempotencyStore  customMW.IdempotencyStore
	IdempotencyClaims customMW.IdempotencyClaimer // optional
	IdempotencyTTL    time.Duration
	HealthChecks      []HealthCheck
	Metrics           *observability.Metrics
	Gatherer          prometheus.Gatherer
	CORSConfig        config.CORSConfig
	Auth              config.AuthConfig
	RateLimit         config.RateLimitConfig
	Logger            zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.Sessions.ActiveSessions, deps.HealthChecks...)
	checkoutH := NewCheckoutController(deps.Sessions)
	orderH := NewOrderController(deps.Sessions, deps.Attempts)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.Auth.JWTSecret, deps.Auth.Issuer))

		// Every route below may send an STK push to the customer's phone.
		var charge []func(http.Handler) http.Handler
		if deps.RateLimit.Requests > 0 {
			charge = append(charge, customMW.RateLimit(deps.RateLimit.Requests, deps.RateLimit.Window))
		}
		if deps.IdempotencyStore != nil {
			charge = append(charge, customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyClaims, deps.IdempotencyTTL, deps.Logger))
		}

		r.Route("/checkout/sessions", func(r chi.Router) {
			r.With(charge...).Post("/", checkoutH.Start)
			r.Get("/{id}", checkoutH.Get)
			r.With(charge...).Post("/{id}/retry", checkoutH.Retry)
			r.Delete("/{id}", checkoutH.Close)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderH.List)
			r.With(charge...).Post("/{reference}/payment/retry", orderH.RetryPayment)
			r.Get("/{reference}/attempts", orderH.Attempts)
		})
	})

	return r
}
