package api

import (
	"net/http"

	"github.com/nerdboard/nerdboard/internal/auth"
	"github.com/nerdboard/nerdboard/internal/capacity"
	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/prediction"
	"github.com/nerdboard/nerdboard/internal/quality"
	"log/slog"
)

// SetupRoutes configures all API routes. Read endpoints are public;
// everything under /api/admin/ requires a valid admin token.
func SetupRoutes(mux *http.ServeMux, predictionRepo *database.PredictionRepository, capacityRepo *database.CapacityRepository, qualityRepo *database.QualityRepository, service *prediction.Service, calculator *capacity.Calculator, validator *quality.Validator, authConfig auth.Config, logger *slog.Logger) {
	predictionHandler := NewPredictionHandler(predictionRepo, service, logger)
	capacityHandler := NewCapacityHandler(capacityRepo, calculator, logger)
	qualityHandler := NewQualityHandler(qualityRepo, validator, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.Middleware(authConfig)
	admin := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	// Authentication routes
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/auth/validate", admin(authHandler.ValidateToken))

	// Prediction routes (public for reading)
	mux.HandleFunc("/api/predictions", predictionHandler.List)
	mux.HandleFunc("/api/predictions/", predictionHandler.Get)

	// Capacity and quality routes (public for reading)
	mux.HandleFunc("/api/capacity", capacityHandler.Status)
	mux.HandleFunc("/api/quality", qualityHandler.Latest)
	mux.HandleFunc("/api/quality/anomalies", qualityHandler.Anomalies)

	// Admin routes
	mux.Handle("/api/admin/predictions/run", admin(predictionHandler.Run))
	mux.Handle("/api/admin/predictions/run-all", admin(predictionHandler.RunAll))
	mux.Handle("/api/admin/models/train", admin(predictionHandler.Train))
	mux.Handle("/api/admin/capacity/refresh", admin(capacityHandler.Refresh))
	mux.Handle("/api/admin/quality/validate", admin(qualityHandler.Validate))
}
