package quality

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/nerdboard/nerdboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// fakeChecker maps rule-query substrings to violation counts; queries
// without a match report zero violations.
type fakeChecker struct {
	violations map[string]int
}

func (f fakeChecker) CountViolations(_ context.Context, query string) (int, error) {
	for substring, count := range f.violations {
		if strings.Contains(query, substring) {
			return count, nil
		}
	}
	return 0, nil
}

type fakeVolumes struct {
	counts map[string][]float64
}

func (f fakeVolumes) DailyRowCounts(_ context.Context, table string, _ int) ([]float64, error) {
	return f.counts[table], nil
}

type memoryReports struct {
	reports []models.QualityReport
}

func (m *memoryReports) InsertReport(_ context.Context, report *models.QualityReport) error {
	m.reports = append(m.reports, *report)
	return nil
}

func TestScoreFor(t *testing.T) {
	tests := []struct {
		name     string
		critical int
		warnings int
		want     float64
	}{
		{"clean", 0, 0, 100},
		{"one warning", 0, 1, 95},
		{"one critical", 1, 0, 80},
		{"mixed", 2, 3, 45},
		{"floors at zero", 5, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreFor(tt.critical, tt.warnings); got != tt.want {
				t.Errorf("ScoreFor(%d, %d) = %v, want %v", tt.critical, tt.warnings, got, tt.want)
			}
		})
	}
}

func TestValidateTableCountsIssues(t *testing.T) {
	checker := fakeChecker{violations: map[string]int{
		"duration_minutes <= 0":  4,
		"duration_minutes > 480": 2,
	}}
	v := NewValidator(checker, nil, nil, nil, testLogger())

	report, err := v.ValidateTable(context.Background(), "sessions")
	if err != nil {
		t.Fatalf("ValidateTable failed: %v", err)
	}

	if report.CriticalIssues != 1 {
		t.Errorf("critical issues = %d, want 1", report.CriticalIssues)
	}
	if report.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", report.Warnings)
	}
	if report.QualityScore != 75 {
		t.Errorf("score = %v, want 75 (100 - 20 - 5)", report.QualityScore)
	}
	if len(report.Issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(report.Issues))
	}
	for _, issue := range report.Issues {
		if issue.Violations == 0 {
			t.Errorf("issue %s recorded with zero violations", issue.Rule)
		}
	}
}

func TestValidateTableUnknownTable(t *testing.T) {
	v := NewValidator(fakeChecker{}, nil, nil, nil, testLogger())
	if _, err := v.ValidateTable(context.Background(), "students"); err == nil {
		t.Fatal("expected error for table without rules")
	}
}

func TestValidateAllPersistsAndFlagsLowScores(t *testing.T) {
	// Two criticals on enrollments drop its score to 60, under the
	// alert threshold. The other tables stay clean.
	checker := fakeChecker{violations: map[string]int{
		"subject IS NULL OR subject = ''": 3,
	}}
	store := &memoryReports{}
	v := NewValidator(checker, nil, store, nil, testLogger())

	summary, err := v.ValidateAll(context.Background())
	if err != nil {
		t.Fatalf("ValidateAll failed: %v", err)
	}

	if summary.TablesValidated != 3 {
		t.Errorf("tables validated = %d, want 3", summary.TablesValidated)
	}
	if len(store.reports) != 3 {
		t.Errorf("persisted %d reports, want 3", len(store.reports))
	}
	// enrollments and sessions both match the missing-subject rule:
	// each loses one critical (80), tutors stays at 100.
	if summary.TablesBelowThreshold != 0 {
		t.Errorf("tables below threshold = %d, want 0 at score 80", summary.TablesBelowThreshold)
	}
	wantAvg := (80.0 + 80.0 + 100.0) / 3
	if math.Abs(summary.AverageQualityScore-wantAvg) > 1e-9 {
		t.Errorf("average score = %v, want %v", summary.AverageQualityScore, wantAvg)
	}
}

func TestDetectAnomalies(t *testing.T) {
	volumes := fakeVolumes{counts: map[string][]float64{
		// Baseline mean 10, tight spread; final day spikes.
		"enrollments": {10, 11, 9, 10, 11, 9, 100},
		// Steady volume, no anomaly.
		"sessions": {20, 21, 19, 20, 21, 19, 20},
		// Too little history to judge.
		"tutors": {5, 6},
	}}
	v := NewValidator(fakeChecker{}, volumes, nil, nil, testLogger())

	anomalies, err := v.DetectAnomalies(context.Background())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1: %+v", len(anomalies), anomalies)
	}

	a := anomalies[0]
	if a.Table != "enrollments" {
		t.Errorf("anomaly table = %s, want enrollments", a.Table)
	}
	if a.Value != 100 {
		t.Errorf("anomaly value = %v, want 100", a.Value)
	}
	if a.ZScore <= anomalyZScore {
		t.Errorf("z-score = %v, want above %v", a.ZScore, anomalyZScore)
	}
	if a.Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical for an extreme spike", a.Severity)
	}
	if a.ExpectedRange == "" {
		t.Error("expected range not populated")
	}
}

func TestDetectAnomaliesWithoutVolumeSource(t *testing.T) {
	v := NewValidator(fakeChecker{}, nil, nil, nil, testLogger())
	anomalies, err := v.DetectAnomalies(context.Background())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}
	if anomalies != nil {
		t.Errorf("expected no anomalies without a volume source, got %v", anomalies)
	}
}
