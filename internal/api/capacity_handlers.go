package api

import (
	"log/slog"
	"net/http"

	"github.com/nerdboard/nerdboard/internal/capacity"
	"github.com/nerdboard/nerdboard/internal/database"
)

// CapacityHandler handles capacity status requests.
type CapacityHandler struct {
	repo       *database.CapacityRepository
	calculator *capacity.Calculator
	logger     *slog.Logger
}

// NewCapacityHandler creates a new capacity handler.
func NewCapacityHandler(repo *database.CapacityRepository, calculator *capacity.Calculator, logger *slog.Logger) *CapacityHandler {
	return &CapacityHandler{
		repo:       repo,
		calculator: calculator,
		logger:     logger,
	}
}

// Status handles GET /api/capacity, returning the latest snapshot per
// (subject, window) pair, optionally filtered by subject.
func (h *CapacityHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots, err := h.repo.Latest(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		h.logger.Error("failed to load capacity snapshots", "error", err)
		http.Error(w, "Failed to load capacity status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// Refresh handles POST /api/admin/capacity/refresh, recalculating and
// persisting snapshots for every subject.
func (h *CapacityHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots, err := h.calculator.CalculateAll(r.Context())
	if err != nil {
		h.logger.Error("capacity refresh failed", "error", err)
		http.Error(w, "Capacity refresh failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}
