package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nerdboard/nerdboard/internal/models"
)

// QualityRepository persists data quality validation results. The
// confidence scorer reads recent scores from here.
type QualityRepository struct {
	db *sql.DB
}

// NewQualityRepository creates a new quality repository.
func NewQualityRepository(db *sql.DB) *QualityRepository {
	return &QualityRepository{db: db}
}

// InsertReport records one table validation outcome.
func (r *QualityRepository) InsertReport(ctx context.Context, report *models.QualityReport) error {
	issuesJSON, err := json.Marshal(report.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal quality issues: %w", err)
	}

	if report.ValidationTime.IsZero() {
		report.ValidationTime = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO data_quality_log (table_name, quality_score, critical_issues, warnings, issues, validation_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, report.TableName, report.QualityScore, report.CriticalIssues, report.Warnings, issuesJSON, report.ValidationTime)
	if err != nil {
		return fmt.Errorf("failed to insert quality report: %w", err)
	}

	return nil
}

// RecentScores returns the quality scores of the most recent checks for
// the given tables since the cutoff, newest first, capped at limit.
func (r *QualityRepository) RecentScores(ctx context.Context, tables []string, since time.Time, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT quality_score
		FROM data_quality_log
		WHERE table_name = ANY($1) AND validation_time >= $2
		ORDER BY validation_time DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(tables), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent quality scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("failed to scan quality score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality scores: %w", err)
	}

	return scores, nil
}

// LatestReports returns the most recent report per table.
func (r *QualityRepository) LatestReports(ctx context.Context) ([]models.QualityReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (table_name)
			table_name, quality_score, critical_issues, warnings, issues, validation_time
		FROM data_quality_log
		ORDER BY table_name, validation_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest quality reports: %w", err)
	}
	defer rows.Close()

	var reports []models.QualityReport
	for rows.Next() {
		var (
			report     models.QualityReport
			issuesJSON []byte
		)
		if err := rows.Scan(&report.TableName, &report.QualityScore, &report.CriticalIssues, &report.Warnings, &issuesJSON, &report.ValidationTime); err != nil {
			return nil, fmt.Errorf("failed to scan quality report: %w", err)
		}
		if len(issuesJSON) > 0 {
			if err := json.Unmarshal(issuesJSON, &report.Issues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal quality issues: %w", err)
			}
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality reports: %w", err)
	}

	return reports, nil
}
