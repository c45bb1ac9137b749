package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

// ModelRepository stores serialized classifier artifacts. The newest
// artifact per horizon is the live one; older rows are kept for audit.
type ModelRepository struct {
	db *sql.DB
}

// NewModelRepository creates a new model repository.
func NewModelRepository(db *sql.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// Save stores a serialized model and its training metrics for a horizon.
func (r *ModelRepository) Save(ctx context.Context, horizonDays int, artifact []byte, metrics models.TrainingMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal training metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO model_artifacts (horizon_days, artifact, metrics, created_at)
		VALUES ($1, $2, $3, $4)
	`, horizonDays, artifact, metricsJSON, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}

	return nil
}

// LoadLatest returns the newest artifact and metrics for a horizon, or
// ErrNotFound when no model has been trained yet.
func (r *ModelRepository) LoadLatest(ctx context.Context, horizonDays int) ([]byte, models.TrainingMetrics, error) {
	var (
		artifact    []byte
		metricsJSON []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT artifact, metrics
		FROM model_artifacts
		WHERE horizon_days = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, horizonDays).Scan(&artifact, &metricsJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.TrainingMetrics{}, ErrNotFound
	}
	if err != nil {
		return nil, models.TrainingMetrics{}, fmt.Errorf("failed to load model artifact: %w", err)
	}

	var metrics models.TrainingMetrics
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &metrics); err != nil {
			return nil, models.TrainingMetrics{}, fmt.Errorf("failed to unmarshal training metrics: %w", err)
		}
	}

	return artifact, metrics, nil
}
