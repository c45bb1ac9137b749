package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerdboard/nerdboard/internal/classifier"
	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/models"
	"github.com/nerdboard/nerdboard/internal/prediction"
)

// PredictionHandler handles shortage prediction requests.
type PredictionHandler struct {
	repo    *database.PredictionRepository
	service *prediction.Service
	logger  *slog.Logger
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(repo *database.PredictionRepository, service *prediction.Service, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

// List handles GET /api/predictions with optional subject, horizon,
// severity and limit query parameters. Results are ordered by priority.
func (h *PredictionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := database.PredictionFilter{
		Subject: r.URL.Query().Get("subject"),
	}

	if horizon := r.URL.Query().Get("horizon"); horizon != "" {
		if !models.Horizon(horizon).Valid() {
			http.Error(w, "Invalid horizon", http.StatusBadRequest)
			return
		}
		filter.Horizon = models.Horizon(horizon)
	}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		filter.Severity = models.Severity(severity)
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	predictions, err := h.repo.ListActive(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list predictions", "error", err)
		http.Error(w, "Failed to list predictions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"predictions": predictions,
		"count":       len(predictions),
	})
}

// Get handles GET /api/predictions/:id, returning the prediction with
// its explanation.
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/predictions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Invalid prediction ID", http.StatusBadRequest)
		return
	}

	pred, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Prediction not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get prediction", "id", id, "error", err)
		http.Error(w, "Failed to get prediction", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{"prediction": pred}

	expl, err := h.repo.GetExplanation(r.Context(), id)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		h.logger.Error("failed to get explanation", "id", id, "error", err)
		http.Error(w, "Failed to get explanation", http.StatusInternalServerError)
		return
	}
	if expl != nil {
		response["explanation"] = expl
	}

	writeJSON(w, response)
}

// RunRequest triggers a single subject/horizon forecast.
type RunRequest struct {
	Subject string `json:"subject"`
	Horizon string `json:"horizon"`
}

// Run handles POST /api/admin/predictions/run.
func (h *PredictionHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Subject == "" {
		http.Error(w, "Subject is required", http.StatusBadRequest)
		return
	}
	horizon := models.Horizon(req.Horizon)
	if !horizon.Valid() {
		http.Error(w, "Invalid horizon", http.StatusBadRequest)
		return
	}

	pred, created, err := h.service.Run(r.Context(), req.Subject, horizon)
	if err != nil {
		if errors.Is(err, classifier.ErrModelNotLoaded) {
			http.Error(w, "No trained model for this horizon", http.StatusConflict)
			return
		}
		h.logger.Error("prediction run failed",
			"subject", req.Subject, "horizon", horizon, "error", err)
		http.Error(w, "Prediction run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"prediction": pred,
		"created":    created,
	})
}

// RunAll handles POST /api/admin/predictions/run-all.
func (h *PredictionHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.service.RunAll(r.Context())
	if err != nil {
		h.logger.Error("batch prediction run failed", "error", err)
		http.Error(w, "Batch run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, summary)
}

// TrainRequest triggers model training for one horizon.
type TrainRequest struct {
	HorizonDays int  `json:"horizon_days"`
	Tune        bool `json:"tune"`
}

// Train handles POST /api/admin/models/train.
func (h *PredictionHandler) Train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid := false
	for _, days := range models.HorizonDays {
		if days == req.HorizonDays {
			valid = true
			break
		}
	}
	if !valid {
		http.Error(w, "Invalid horizon_days", http.StatusBadRequest)
		return
	}

	trainingMetrics, err := h.service.TrainModel(r.Context(), req.HorizonDays, req.Tune)
	if err != nil {
		if errors.Is(err, classifier.ErrInsufficientTrainingData) {
			http.Error(w, "Not enough training data", http.StatusConflict)
			return
		}
		h.logger.Error("training failed", "horizon_days", req.HorizonDays, "error", err)
		http.Error(w, "Training failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, trainingMetrics)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already written; nothing left to do but note it.
		slog.Default().Error("failed to encode response", "error", err)
	}
}
