package main

import (
	"flag"
	"os"

	"github.com/elektrahub/checkout/internal/infrastructure/config"
	"github.com/elektrahub/checkout/internal/infrastructure/observability"
	"github.com/elektrahub/checkout/internal/infrastructure/postgres"
)

func main() {
	var (
		direction string
		dbURL     string
	)
	flag.StringVar(&direction, "direction", "up", "Migration direction: up or down")
	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to the configured database)")
	flag.Parse()

	logger := observability.InitLogger("checkout-migrate", "info", os.Stdout)

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load config")
		}
		dbURL = cfg.Database.MigrationURL()
	}

	if err := postgres.Migrate(dbURL, postgres.Direction(direction)); err != nil {
		logger.Fatal().Err(err).Str("direction", direction).Msg("migration failed")
	}
	logger.Info().Str("direction", direction).Msg("migrations applied")
}
