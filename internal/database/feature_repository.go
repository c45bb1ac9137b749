package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

// FeatureRepository persists extracted feature vectors, keyed by
// (subject, reference_date).
type FeatureRepository struct {
	db *sql.DB
}

// NewFeatureRepository creates a new feature repository.
func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// Upsert inserts a feature vector, replacing any previous extraction for
// the same (subject, reference_date). Re-extraction always wins.
func (r *FeatureRepository) Upsert(ctx context.Context, vec *models.FeatureVector) error {
	valuesJSON, err := json.Marshal(vec.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal feature values: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO prediction_features (subject, reference_date, features, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, reference_date)
		DO UPDATE SET features = EXCLUDED.features, created_at = EXCLUDED.created_at
	`, vec.Subject, vec.ReferenceDate, valuesJSON, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert feature vector: %w", err)
	}

	return nil
}

// Get retrieves the feature vector for a (subject, reference_date) pair,
// returning ErrNotFound when none was extracted.
func (r *FeatureRepository) Get(ctx context.Context, subject string, referenceDate time.Time) (*models.FeatureVector, error) {
	var (
		vec        models.FeatureVector
		valuesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT subject, reference_date, features
		FROM prediction_features
		WHERE subject = $1 AND reference_date = $2
	`, subject, referenceDate).Scan(&vec.Subject, &vec.ReferenceDate, &valuesJSON)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature vector: %w", err)
	}

	if err := json.Unmarshal(valuesJSON, &vec.Values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature values: %w", err)
	}

	return &vec, nil
}

// ListBefore returns all feature vectors with a reference date at or
// before the cutoff, oldest first. Training uses this to select
// snapshots old enough for their outcome window to have closed.
func (r *FeatureRepository) ListBefore(ctx context.Context, cutoff time.Time) ([]models.FeatureVector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject, reference_date, features
		FROM prediction_features
		WHERE reference_date <= $1
		ORDER BY reference_date ASC, subject ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature vectors: %w", err)
	}
	defer rows.Close()

	var vectors []models.FeatureVector
	for rows.Next() {
		var (
			vec        models.FeatureVector
			valuesJSON []byte
		)
		if err := rows.Scan(&vec.Subject, &vec.ReferenceDate, &valuesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan feature vector: %w", err)
		}
		if err := json.Unmarshal(valuesJSON, &vec.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature values: %w", err)
		}
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature vectors: %w", err)
	}

	return vectors, nil
}

// Count returns the number of stored feature vectors.
func (r *FeatureRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_features`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feature vectors: %w", err)
	}
	return count, nil
}
