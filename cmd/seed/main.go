// Command seed populates the history tables with deterministic
// synthetic enrollments, tutors and sessions for local development and
// model training.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/nerdboard/nerdboard/internal/config"
	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/logging"
	"github.com/nerdboard/nerdboard/internal/simulation"
	"log/slog"
)

func main() {
	days := flag.Int("days", 365, "days of history to generate")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, database.Config{
		URL:                cfg.Database.URL,
		MaxConnections:     cfg.Database.MaxOpenConns,
		MaxIdleConnections: cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		ConnectTimeout:     database.DefaultConfig().ConnectTimeout,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	historyRepo := database.NewHistoryRepository(db)
	generator := simulation.NewGenerator(historyRepo, simulation.DefaultProfiles(), *seed, logger)

	logger.Info("seeding history", "days", *days, "seed", *seed)
	if err := generator.Generate(ctx, time.Now(), *days); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete")
}
