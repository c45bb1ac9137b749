package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

// CapacityRepository persists capacity utilization snapshots.
type CapacityRepository struct {
	db *sql.DB
}

// NewCapacityRepository creates a new capacity repository.
func NewCapacityRepository(db *sql.DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

// Insert records a snapshot.
func (r *CapacityRepository) Insert(ctx context.Context, snap *models.CapacitySnapshot) error {
	if snap.SnapshotTime.IsZero() {
		snap.SnapshotTime = time.Now()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO capacity_snapshots (subject, time_window, total_hours, booked_hours, utilization_rate, status, snapshot_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, snap.Subject, snap.TimeWindow, snap.TotalHours, snap.BookedHours, snap.UtilizationRate, snap.Status, snap.SnapshotTime).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("failed to insert capacity snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recent snapshot per (subject, window) pair,
// optionally filtered by subject.
func (r *CapacityRepository) Latest(ctx context.Context, subject string) ([]models.CapacitySnapshot, error) {
	query := `
		SELECT DISTINCT ON (subject, time_window)
			id, subject, time_window, total_hours, booked_hours, utilization_rate, status, snapshot_time
		FROM capacity_snapshots
	`
	args := []interface{}{}
	if subject != "" {
		query += " WHERE subject = $1"
		args = append(args, subject)
	}
	query += " ORDER BY subject, time_window, snapshot_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query capacity snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.CapacitySnapshot
	for rows.Next() {
		var snap models.CapacitySnapshot
		if err := rows.Scan(&snap.ID, &snap.Subject, &snap.TimeWindow, &snap.TotalHours, &snap.BookedHours, &snap.UtilizationRate, &snap.Status, &snap.SnapshotTime); err != nil {
			return nil, fmt.Errorf("failed to scan capacity snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capacity snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteOlderThan removes snapshots older than the cutoff and returns
// the number deleted.
func (r *CapacityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM capacity_snapshots WHERE snapshot_time < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old capacity snapshots: %w", err)
	}

	return result.RowsAffected()
}
