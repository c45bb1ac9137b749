package prediction

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeSubjects struct {
	subjects []string
	err      error
}

func (f fakeSubjects) Subjects(context.Context) ([]string, error) {
	return f.subjects, f.err
}

type fakeExtractor struct {
	failFor string
}

func (f fakeExtractor) Extract(_ context.Context, subject string, referenceDate time.Time) (*models.FeatureVector, error) {
	if subject == f.failFor {
		return nil, errors.New("history unavailable")
	}
	vec := models.NewFeatureVector(subject, referenceDate)
	vec.Set(models.FeatureUtilizationCurrentWeek, 88)
	vec.Set(models.FeatureUtilizationTrend, 2)
	vec.Set(models.FeatureEnrollmentVelocity, 0.3)
	return &vec, nil
}

type fakeModel struct {
	core    *models.PredictionCore
	loaded  map[models.Horizon]bool
	metrics models.TrainingMetrics
	err     error
}

func (f fakeModel) Predict(_ *models.FeatureVector, horizon models.Horizon) (*models.PredictionCore, error) {
	if f.err != nil {
		return nil, f.err
	}
	core := *f.core
	core.Horizon = horizon
	core.HorizonDays = horizon.Days()
	return &core, nil
}

func (f fakeModel) Train(context.Context, int, bool) (models.TrainingMetrics, error) {
	return f.metrics, f.err
}

func (f fakeModel) Loaded(horizon models.Horizon) bool {
	if f.loaded == nil {
		return true
	}
	return f.loaded[horizon]
}

type fakeScorer struct {
	score float64
}

func (f fakeScorer) Score(context.Context, string, float64, *models.FeatureVector) models.Confidence {
	return models.Confidence{
		Score:       f.score,
		Level:       models.ConfidenceHigh,
		IsUncertain: f.score < 60,
	}
}

type fakeExplainer struct{}

func (fakeExplainer) Explain(*models.FeatureVector, models.Horizon, int) []models.FeatureContribution {
	return []models.FeatureContribution{
		{Feature: models.FeatureEnrollmentVelocity, Attribution: 0.2, Importance: 0.2,
			Description: "Week-over-week enrollment growth, increasing shortage risk"},
	}
}

type captureStore struct {
	mu           sync.Mutex
	created      bool
	err          error
	predictions  []*models.Prediction
	explanations []*models.Explanation
}

func (s *captureStore) CreateSuperseding(_ context.Context, pred *models.Prediction, expl *models.Explanation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.predictions = append(s.predictions, pred)
	s.explanations = append(s.explanations, expl)
	return s.created, nil
}

func (s *captureStore) ExpirePastDue(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func shortageCore() *models.PredictionCore {
	return &models.PredictionCore{
		ShortageProbability:      0.82,
		PredictedShortageDate:    time.Now().AddDate(0, 0, 10),
		DaysUntilShortage:        10,
		PredictedPeakUtilization: 118,
		Severity:                 models.SeverityHigh,
	}
}

func newTestService(store *captureStore, model fakeModel, subjects fakeSubjects, extractor fakeExtractor) *Service {
	return NewService(subjects, extractor, model, fakeScorer{score: 85}, fakeExplainer{}, store, nil, testLogger())
}

func TestRunCreatesPrediction(t *testing.T) {
	store := &captureStore{created: true}
	svc := newTestService(store, fakeModel{core: shortageCore()}, fakeSubjects{}, fakeExtractor{})

	pred, created, err := svc.Run(context.Background(), "Physics", models.Horizon4Week)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !created {
		t.Fatal("expected prediction to be created")
	}

	if pred.ID == "" {
		t.Error("prediction ID not assigned")
	}
	if pred.Subject != "Physics" {
		t.Errorf("subject = %q, want Physics", pred.Subject)
	}
	if pred.Horizon != models.Horizon4Week || pred.HorizonDays != 28 {
		t.Errorf("horizon = %s/%d, want 4week/28", pred.Horizon, pred.HorizonDays)
	}
	if pred.Status != models.PredictionStatusActive {
		t.Errorf("status = %s, want active", pred.Status)
	}
	if !pred.IsCritical {
		t.Error("10 days, confidence 85, high severity should be critical")
	}

	// urgency 7/10 * confidence 0.85 * high multiplier 1.0 * 100
	wantPriority := 0.7 * 0.85 * 100
	if math.Abs(pred.PriorityScore-wantPriority) > 1e-9 {
		t.Errorf("priority = %v, want %v", pred.PriorityScore, wantPriority)
	}

	if len(store.explanations) != 1 {
		t.Fatalf("got %d explanations, want 1", len(store.explanations))
	}
	expl := store.explanations[0]
	if expl.PredictionID != pred.ID {
		t.Errorf("explanation prediction_id = %q, want %q", expl.PredictionID, pred.ID)
	}
	if expl.Narrative == "" {
		t.Error("explanation narrative is empty")
	}
	if len(expl.TopFeatures) == 0 {
		t.Error("explanation has no top features")
	}
}

func TestRunSuppressesDuplicate(t *testing.T) {
	store := &captureStore{created: false}
	svc := newTestService(store, fakeModel{core: shortageCore()}, fakeSubjects{}, fakeExtractor{})

	pred, created, err := svc.Run(context.Background(), "Physics", models.Horizon2Week)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if created {
		t.Error("duplicate forecast should not report created")
	}
	if pred == nil {
		t.Error("suppressed run should still return the computed prediction")
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	store := &captureStore{created: true}
	svc := newTestService(store,
		fakeModel{core: shortageCore(), loaded: map[models.Horizon]bool{models.Horizon2Week: true}},
		fakeSubjects{subjects: []string{"Math", "Physics", "Chemistry"}},
		fakeExtractor{failFor: "Chemistry"})

	summary, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if summary.SubjectsAnalyzed != 3 {
		t.Errorf("subjects analyzed = %d, want 3", summary.SubjectsAnalyzed)
	}
	if len(summary.Horizons) != 1 || summary.Horizons[0] != models.Horizon2Week {
		t.Errorf("horizons = %v, want only 2week (others unloaded)", summary.Horizons)
	}
	if summary.PredictionsCreated != 2 {
		t.Errorf("created = %d, want 2", summary.PredictionsCreated)
	}
	if summary.Failures != 1 {
		t.Errorf("failures = %d, want 1", summary.Failures)
	}
	if summary.PredictionsBySubject["Chemistry"] != 0 {
		t.Error("failed subject should have no predictions")
	}
}

func TestRunAllSubjectLookupFailure(t *testing.T) {
	svc := newTestService(&captureStore{}, fakeModel{core: shortageCore()},
		fakeSubjects{err: errors.New("db down")}, fakeExtractor{})

	if _, err := svc.RunAll(context.Background()); err == nil {
		t.Fatal("expected error when subject enumeration fails")
	}
}

func TestPriorityScore(t *testing.T) {
	tests := []struct {
		name       string
		daysUntil  int
		confidence float64
		severity   models.Severity
		want       float64
	}{
		{"imminent high severity saturates", 7, 100, models.SeverityHigh, 100},
		{"two weeks halves urgency", 14, 100, models.SeverityHigh, 50},
		{"zero days clamps to one", 0, 100, models.SeverityHigh, 100},
		{"medium severity scales", 1, 80, models.SeverityMedium, 60},
		{"distant low severity", 28, 50, models.SeverityLow, 6.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityScore(tt.daysUntil, tt.confidence, tt.severity)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PriorityScore(%d, %v, %s) = %v, want %v",
					tt.daysUntil, tt.confidence, tt.severity, got, tt.want)
			}
		})
	}
}

func TestIsCriticalBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		daysUntil  int
		confidence float64
		severity   models.Severity
		want       bool
	}{
		{"inside window", 13, 71, models.SeverityHigh, true},
		{"fourteen days excluded", 14, 71, models.SeverityHigh, false},
		{"confidence exactly seventy excluded", 13, 70, models.SeverityHigh, false},
		{"medium severity excluded", 13, 90, models.SeverityMedium, false},
		{"zero days critical", 0, 100, models.SeverityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCritical(tt.daysUntil, tt.confidence, tt.severity); got != tt.want {
				t.Errorf("IsCritical(%d, %v, %s) = %v, want %v",
					tt.daysUntil, tt.confidence, tt.severity, got, tt.want)
			}
		})
	}
}
