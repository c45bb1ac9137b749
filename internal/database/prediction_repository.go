package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Probability delta below which a new prediction for an already-covered
// (subject, horizon) slot is treated as a duplicate and suppressed.
const dedupProbabilityDelta = 0.10

// PredictionRepository handles prediction and explanation persistence.
type PredictionRepository struct {
	db *sql.DB
}

// NewPredictionRepository creates a new prediction repository.
func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// ShouldSupersede reports whether a candidate forecast differs enough
// from the active one to replace it. Moves of at most 0.10 in shortage
// probability, in either direction, are treated as duplicates.
func ShouldSupersede(activeProbability, candidateProbability float64) bool {
	return math.Abs(candidateProbability-activeProbability) > dedupProbabilityDelta
}

// PredictionFilter narrows ListActive results. Zero values match all.
type PredictionFilter struct {
	Subject  string
	Horizon  models.Horizon
	Severity models.Severity
	Limit    int
}

// CreateSuperseding persists a prediction and its explanation, applying
// the duplicate-suppression policy: if an active prediction already
// covers the same (subject, horizon) slot and the shortage probability
// moved by no more than 0.10, nothing is written and created is false.
// Otherwise the previous active row is expired and the new row inserted,
// all in one transaction. The active-row check takes a row lock, so two
// concurrent writers serialize when the slot is occupied; for an empty
// slot there is no row to lock and the unique partial index on active
// (subject, horizon) rejects the second insert. Either way a lost race
// surfaces as ErrConflict.
func (r *PredictionRepository) CreateSuperseding(ctx context.Context, pred *models.Prediction, expl *models.Explanation) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		previousID          string
		previousProbability float64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, shortage_probability
		FROM predictions
		WHERE subject = $1 AND horizon = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, pred.Subject, pred.Horizon).Scan(&previousID, &previousProbability)

	switch {
	case err == nil:
		if !ShouldSupersede(previousProbability, pred.ShortageProbability) {
			return false, nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE predictions SET status = 'expired', updated_at = $1 WHERE id = $2
		`, time.Now(), previousID)
		if err != nil {
			return false, fmt.Errorf("failed to expire superseded prediction: %w", mapConflict(err))
		}
	case errors.Is(err, sql.ErrNoRows):
		// No active prediction for this slot; the unique partial index
		// arbitrates if another writer inserts concurrently.
	default:
		return false, fmt.Errorf("failed to check active prediction: %w", mapConflict(err))
	}

	if pred.ID == "" {
		pred.ID = uuid.New().String()
	}
	now := time.Now()
	if pred.CreatedAt.IsZero() {
		pred.CreatedAt = now
	}
	pred.UpdatedAt = now
	pred.Status = models.PredictionStatusActive

	breakdownJSON, err := json.Marshal(pred.ConfidenceBreakdown)
	if err != nil {
		return false, fmt.Errorf("failed to marshal confidence breakdown: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO predictions (
			id, subject, shortage_probability, predicted_shortage_date, days_until_shortage,
			predicted_peak_utilization, severity, horizon, horizon_days,
			confidence_score, confidence_level, confidence_breakdown,
			priority_score, is_critical, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		pred.ID, pred.Subject, pred.ShortageProbability, pred.PredictedShortageDate, pred.DaysUntilShortage,
		pred.PredictedPeakUtilization, pred.Severity, pred.Horizon, pred.HorizonDays,
		pred.ConfidenceScore, pred.ConfidenceLevel, breakdownJSON,
		pred.PriorityScore, pred.IsCritical, pred.Status, pred.CreatedAt, pred.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert prediction: %w", mapConflict(err))
	}

	if expl != nil {
		expl.PredictionID = pred.ID
		if expl.CreatedAt.IsZero() {
			expl.CreatedAt = now
		}

		featuresJSON, err := json.Marshal(expl.TopFeatures)
		if err != nil {
			return false, fmt.Errorf("failed to marshal top features: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO explanations (prediction_id, top_features, explanation_text, created_at)
			VALUES ($1, $2, $3, $4)
		`, expl.PredictionID, featuresJSON, expl.Narrative, expl.CreatedAt)
		if err != nil {
			return false, fmt.Errorf("failed to insert explanation: %w", mapConflict(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit prediction: %w", mapConflict(err))
	}

	return true, nil
}

const predictionColumns = `
	id, subject, shortage_probability, predicted_shortage_date, days_until_shortage,
	predicted_peak_utilization, severity, horizon, horizon_days,
	confidence_score, confidence_level, confidence_breakdown,
	priority_score, is_critical, status, created_at, updated_at
`

// Get retrieves a prediction by ID, returning ErrNotFound when absent.
func (r *PredictionRepository) Get(ctx context.Context, id string) (*models.Prediction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)

	pred, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return pred, nil
}

// LatestActive returns the active prediction for a (subject, horizon)
// slot, or ErrNotFound when none exists.
func (r *PredictionRepository) LatestActive(ctx context.Context, subject string, horizon models.Horizon) (*models.Prediction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE subject = $1 AND horizon = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, subject, horizon)

	pred, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest active prediction: %w", err)
	}
	return pred, nil
}

// ListActive returns active predictions ordered by priority, highest
// first, applying the optional filter.
func (r *PredictionRepository) ListActive(ctx context.Context, filter PredictionFilter) ([]models.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE status = 'active'`
	args := []interface{}{}

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if filter.Horizon != "" {
		args = append(args, filter.Horizon)
		query += fmt.Sprintf(" AND horizon = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	query += " ORDER BY priority_score DESC, created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []models.Prediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *pred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	return predictions, nil
}

// UpdateStatus transitions a prediction's lifecycle status.
func (r *PredictionRepository) UpdateStatus(ctx context.Context, id string, status models.PredictionStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE predictions SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update prediction status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ExpirePastDue expires active predictions whose predicted shortage date
// has passed without resolution. Returns the number of rows expired.
func (r *PredictionRepository) ExpirePastDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE predictions
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND predicted_shortage_date < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire past-due predictions: %w", err)
	}

	return result.RowsAffected()
}

// CountForSubject returns how many predictions have ever been made for
// a subject, in any status.
func (r *PredictionRepository) CountForSubject(ctx context.Context, subject string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM predictions WHERE subject = $1
	`, subject).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions for subject: %w", err)
	}
	return count, nil
}

// GetExplanation retrieves the explanation for a prediction, returning
// ErrNotFound when the prediction has none.
func (r *PredictionRepository) GetExplanation(ctx context.Context, predictionID string) (*models.Explanation, error) {
	var (
		expl         models.Explanation
		featuresJSON []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT prediction_id, top_features, explanation_text, created_at
		FROM explanations
		WHERE prediction_id = $1
	`, predictionID).Scan(&expl.PredictionID, &featuresJSON, &expl.Narrative, &expl.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get explanation: %w", err)
	}

	if err := json.Unmarshal(featuresJSON, &expl.TopFeatures); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top features: %w", err)
	}

	return &expl, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*models.Prediction, error) {
	var (
		pred          models.Prediction
		breakdownJSON []byte
	)
	err := row.Scan(
		&pred.ID, &pred.Subject, &pred.ShortageProbability, &pred.PredictedShortageDate, &pred.DaysUntilShortage,
		&pred.PredictedPeakUtilization, &pred.Severity, &pred.Horizon, &pred.HorizonDays,
		&pred.ConfidenceScore, &pred.ConfidenceLevel, &breakdownJSON,
		&pred.PriorityScore, &pred.IsCritical, &pred.Status, &pred.CreatedAt, &pred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &pred.ConfidenceBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal confidence breakdown: %w", err)
		}
	}

	return &pred, nil
}

// mapConflict translates PostgreSQL lock and serialization failures into
// ErrConflict so callers can retry.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}
