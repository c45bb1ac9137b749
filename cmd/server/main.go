package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerdboard/nerdboard/internal/api"
	"github.com/nerdboard/nerdboard/internal/auth"
	"github.com/nerdboard/nerdboard/internal/capacity"
	"github.com/nerdboard/nerdboard/internal/classifier"
	"github.com/nerdboard/nerdboard/internal/confidence"
	"github.com/nerdboard/nerdboard/internal/config"
	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/explain"
	"github.com/nerdboard/nerdboard/internal/features"
	"github.com/nerdboard/nerdboard/internal/logging"
	"github.com/nerdboard/nerdboard/internal/metrics"
	"github.com/nerdboard/nerdboard/internal/models"
	"github.com/nerdboard/nerdboard/internal/prediction"
	"github.com/nerdboard/nerdboard/internal/quality"
	"github.com/nerdboard/nerdboard/internal/scheduler"
	"github.com/nerdboard/nerdboard/internal/server"
	"log/slog"
)

func main() {
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

	logger.Info("starting nerdboard")

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
	logger.Info("database connected")

	if err := database.RunMigrations(ctx, db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	historyRepo := database.NewHistoryRepository(db)
	featureRepo := database.NewFeatureRepository(db)
	predictionRepo := database.NewPredictionRepository(db)
	qualityRepo := database.NewQualityRepository(db)
	capacityRepo := database.NewCapacityRepository(db)
	modelRepo := database.NewModelRepository(db)

	// Metrics
	httpCollector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	pipelineCollector, err := metrics.NewPipelineCollector(httpCollector.Registry())
	if err != nil {
		logger.Error("failed to init pipeline metrics", "error", err)
		os.Exit(1)
	}

	// Pipeline stages
	engineer := features.NewEngineer(historyRepo, featureRepo, logger)
	builder := classifier.NewDatasetBuilder(featureRepo, historyRepo, cfg.Model.ShortageThreshold, logger)
	shortageClassifier := classifier.NewClassifier(cfg.Model, builder, modelRepo, logger)

	for _, horizon := range models.AllHorizons {
		if err := shortageClassifier.LoadLatest(ctx, horizon.Days()); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				logger.Warn("no persisted model for horizon, train before predicting", "horizon", horizon)
				continue
			}
			logger.Error("failed to load model", "horizon", horizon, "error", err)
			os.Exit(1)
		}
	}

	scorer := confidence.NewScorer(qualityRepo, predictionRepo, logger)
	explainEngine := explain.NewEngine(shortageClassifier, logger)
	predictionService := prediction.NewService(historyRepo, engineer, shortageClassifier, scorer, explainEngine, predictionRepo, pipelineCollector, logger)
	calculator := capacity.NewCalculator(historyRepo, capacityRepo, pipelineCollector, logger)
	validator := quality.NewValidator(quality.NewSQLChecker(db), historyRepo, qualityRepo, pipelineCollector, logger)

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.New(calculator, validator, predictionService, logger)
		if err != nil {
			logger.Error("failed to init scheduler", "error", err)
			os.Exit(1)
		}
		jobs.Start()
	} else {
		logger.Info("scheduler disabled")
	}

	// HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", httpCollector.Handler())

	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"nerdboard","status":"ready","version":"0.1.0"}`))
	})

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	api.SetupRoutes(mux, predictionRepo, capacityRepo, qualityRepo, predictionService, calculator, validator, authConfig, logger)

	mux.Handle("/api/admin/stats", auth.Middleware(authConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"database": database.Stats(db),
		})
	})))

	srv := server.New(cfg.Server, logger, httpCollector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("nerdboard started", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	if jobs != nil {
		jobs.Stop()
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
