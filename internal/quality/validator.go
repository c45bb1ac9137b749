package quality

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nerdboard/nerdboard/internal/metrics"
	"github.com/nerdboard/nerdboard/internal/models"
)

// Scoring penalties and the alerting threshold.
const (
	criticalPenalty = 20.0
	warningPenalty  = 5.0
	alertThreshold  = 80.0
)

// Anomaly detection parameters: rolling window length and the z-score
// at which a daily volume counts as anomalous.
const (
	anomalyWindowDays = 7
	anomalyZScore     = 3.0
)

// Rule severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Rule is one validation check: a counting query whose result is the
// number of violating rows.
type Rule struct {
	Name     string
	Type     string
	Severity string
	Query    string
}

// Checker runs validation queries against the history tables.
type Checker interface {
	CountViolations(ctx context.Context, query string) (int, error)
}

// VolumeSource provides daily row volumes for anomaly detection.
type VolumeSource interface {
	DailyRowCounts(ctx context.Context, table string, days int) ([]float64, error)
}

// ReportStore persists validation outcomes.
type ReportStore interface {
	InsertReport(ctx context.Context, report *models.QualityReport) error
}

// Validation rules per table. Counting queries return the number of
// rows violating each rule.
var tableRules = map[string][]Rule{
	"enrollments": {
		{"missing_subject", "completeness", SeverityCritical,
			"SELECT COUNT(*) FROM enrollments WHERE subject IS NULL OR subject = ''"},
		{"missing_start_date", "completeness", SeverityCritical,
			"SELECT COUNT(*) FROM enrollments WHERE start_date IS NULL"},
		{"future_start_date", "validity", SeverityWarning,
			"SELECT COUNT(*) FROM enrollments WHERE start_date > NOW() + INTERVAL '1 day'"},
		{"engagement_out_of_range", "validity", SeverityWarning,
			"SELECT COUNT(*) FROM enrollments WHERE engagement_score < 0 OR engagement_score > 100"},
	},
	"sessions": {
		{"missing_subject", "completeness", SeverityCritical,
			"SELECT COUNT(*) FROM sessions WHERE subject IS NULL OR subject = ''"},
		{"nonpositive_duration", "validity", SeverityCritical,
			"SELECT COUNT(*) FROM sessions WHERE duration_minutes <= 0"},
		{"excessive_duration", "validity", SeverityWarning,
			"SELECT COUNT(*) FROM sessions WHERE duration_minutes > 480"},
		{"orphaned_tutor", "consistency", SeverityWarning,
			"SELECT COUNT(*) FROM sessions s LEFT JOIN tutors t ON t.id = s.tutor_id WHERE t.id IS NULL"},
	},
	"tutors": {
		{"empty_subjects", "completeness", SeverityCritical,
			"SELECT COUNT(*) FROM tutors WHERE subjects IS NULL OR cardinality(subjects) = 0"},
		{"nonpositive_capacity", "validity", SeverityCritical,
			"SELECT COUNT(*) FROM tutors WHERE weekly_capacity_hours <= 0"},
		{"implausible_capacity", "validity", SeverityWarning,
			"SELECT COUNT(*) FROM tutors WHERE weekly_capacity_hours > 80"},
		{"utilization_out_of_range", "validity", SeverityWarning,
			"SELECT COUNT(*) FROM tutors WHERE utilization_rate < 0 OR utilization_rate > 1.5"},
	},
}

// Tables returns the validated table names in a stable order.
func Tables() []string {
	return []string{"enrollments", "sessions", "tutors"}
}

// Validator runs rule-based quality checks and volume anomaly
// detection over the history tables.
type Validator struct {
	checker   Checker
	volumes   VolumeSource
	store     ReportStore
	collector *metrics.PipelineCollector
	logger    *slog.Logger
}

// NewValidator creates a validator. volumes, store and collector may be
// nil; a nil volumes source disables anomaly detection.
func NewValidator(checker Checker, volumes VolumeSource, store ReportStore, collector *metrics.PipelineCollector, logger *slog.Logger) *Validator {
	return &Validator{
		checker:   checker,
		volumes:   volumes,
		store:     store,
		collector: collector,
		logger:    logger,
	}
}

// ValidateTable runs every rule for one table and scores the result.
func (v *Validator) ValidateTable(ctx context.Context, table string) (*models.QualityReport, error) {
	rules, ok := tableRules[table]
	if !ok {
		return nil, fmt.Errorf("no validation rules for table %q", table)
	}

	report := &models.QualityReport{
		TableName:      table,
		ValidationTime: time.Now(),
	}

	for _, rule := range rules {
		violations, err := v.checker.CountViolations(ctx, rule.Query)
		if err != nil {
			return nil, fmt.Errorf("rule %s on %s: %w", rule.Name, table, err)
		}
		if violations == 0 {
			continue
		}

		report.Issues = append(report.Issues, models.QualityIssue{
			Rule:       rule.Name,
			Type:       rule.Type,
			Severity:   rule.Severity,
			Violations: violations,
		})
		if rule.Severity == SeverityCritical {
			report.CriticalIssues++
		} else {
			report.Warnings++
		}
	}

	report.QualityScore = ScoreFor(report.CriticalIssues, report.Warnings)

	return report, nil
}

// ValidateAll validates every table, persists the reports, updates the
// quality gauges, and logs an alert for any table below the threshold.
func (v *Validator) ValidateAll(ctx context.Context) (*models.QualitySummary, error) {
	summary := &models.QualitySummary{ValidationTime: time.Now()}

	total := 0.0
	for _, table := range Tables() {
		report, err := v.ValidateTable(ctx, table)
		if err != nil {
			return nil, err
		}

		if v.store != nil {
			if err := v.store.InsertReport(ctx, report); err != nil {
				return nil, fmt.Errorf("persist quality report for %s: %w", table, err)
			}
		}
		if v.collector != nil {
			v.collector.SetQualityScore(table, report.QualityScore)
		}

		if report.QualityScore < alertThreshold {
			summary.TablesBelowThreshold++
			v.logger.Warn("data quality below threshold",
				"table", table,
				"score", report.QualityScore,
				"critical_issues", report.CriticalIssues,
				"warnings", report.Warnings)
		}

		summary.Reports = append(summary.Reports, *report)
		total += report.QualityScore
	}

	summary.TablesValidated = len(summary.Reports)
	if summary.TablesValidated > 0 {
		summary.AverageQualityScore = total / float64(summary.TablesValidated)
	}

	v.logger.Info("quality validation complete",
		"tables", summary.TablesValidated,
		"average_score", summary.AverageQualityScore,
		"below_threshold", summary.TablesBelowThreshold)

	return summary, nil
}

// DetectAnomalies flags tables whose most recent daily row volume
// drifted outside the rolling statistical envelope of the preceding
// days.
func (v *Validator) DetectAnomalies(ctx context.Context) ([]models.Anomaly, error) {
	if v.volumes == nil {
		return nil, nil
	}

	var anomalies []models.Anomaly

	for _, table := range Tables() {
		counts, err := v.volumes.DailyRowCounts(ctx, table, anomalyWindowDays)
		if err != nil {
			return nil, fmt.Errorf("daily counts for %s: %w", table, err)
		}
		// Need a baseline of at least two prior days plus the latest.
		if len(counts) < 3 {
			continue
		}

		baseline := counts[:len(counts)-1]
		latest := counts[len(counts)-1]

		mean, std := stat.MeanStdDev(baseline, nil)
		if std == 0 {
			continue
		}

		z := (latest - mean) / std
		if math.Abs(z) <= anomalyZScore {
			continue
		}

		severity := SeverityWarning
		if math.Abs(z) > anomalyZScore+1 {
			severity = SeverityCritical
		}

		anomalies = append(anomalies, models.Anomaly{
			Table:         table,
			Metric:        "daily_row_count",
			Value:         latest,
			ExpectedRange: fmt.Sprintf("%.1f - %.1f", mean-anomalyZScore*std, mean+anomalyZScore*std),
			ZScore:        z,
			Severity:      severity,
		})

		v.logger.Warn("volume anomaly detected",
			"table", table, "value", latest, "z_score", z)
	}

	return anomalies, nil
}

// ScoreFor converts issue counts into a 0-100 quality score.
func ScoreFor(criticalIssues, warnings int) float64 {
	score := 100.0 - criticalPenalty*float64(criticalIssues) - warningPenalty*float64(warnings)
	if score < 0 {
		return 0
	}
	return score
}

// SQLChecker runs validation queries directly against the database.
type SQLChecker struct {
	db *sql.DB
}

// NewSQLChecker wraps a database handle for rule execution.
func NewSQLChecker(db *sql.DB) *SQLChecker {
	return &SQLChecker{db: db}
}

// CountViolations executes a counting query and returns its result.
func (c *SQLChecker) CountViolations(ctx context.Context, query string) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to run validation query: %w", err)
	}
	return count, nil
}
