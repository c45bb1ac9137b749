package api

import (
	"log/slog"
	"net/http"

	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/quality"
)

// QualityHandler handles data quality requests.
type QualityHandler struct {
	repo      *database.QualityRepository
	validator *quality.Validator
	logger    *slog.Logger
}

// NewQualityHandler creates a new quality handler.
func NewQualityHandler(repo *database.QualityRepository, validator *quality.Validator, logger *slog.Logger) *QualityHandler {
	return &QualityHandler{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// Latest handles GET /api/quality, returning the most recent report
// per table.
func (h *QualityHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reports, err := h.repo.LatestReports(r.Context())
	if err != nil {
		h.logger.Error("failed to load quality reports", "error", err)
		http.Error(w, "Failed to load quality reports", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// Validate handles POST /api/admin/quality/validate, running a fresh
// validation pass over every table.
func (h *QualityHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.validator.ValidateAll(r.Context())
	if err != nil {
		h.logger.Error("quality validation failed", "error", err)
		http.Error(w, "Quality validation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, summary)
}

// Anomalies handles GET /api/quality/anomalies, scanning recent row
// volumes for statistical outliers.
func (h *QualityHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	anomalies, err := h.validator.DetectAnomalies(r.Context())
	if err != nil {
		h.logger.Error("anomaly detection failed", "error", err)
		http.Error(w, "Anomaly detection failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}
