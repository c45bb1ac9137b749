package confidence

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestModelCertaintySymmetry(t *testing.T) {
	probabilities := []float64{0.0, 0.1, 0.25, 0.4, 0.5}

	for _, p := range probabilities {
		left := ModelCertainty(p)
		right := ModelCertainty(1 - p)
		if math.Abs(left-right) > 1e-9 {
			t.Errorf("ModelCertainty(%v) = %v but ModelCertainty(%v) = %v", p, left, 1-p, right)
		}
	}

	if got := ModelCertainty(0.5); got != 0 {
		t.Errorf("ModelCertainty(0.5) = %v, want 0", got)
	}
	if got := ModelCertainty(0); got != 100 {
		t.Errorf("ModelCertainty(0) = %v, want 100", got)
	}
	if got := ModelCertainty(1); got != 100 {
		t.Errorf("ModelCertainty(1) = %v, want 100", got)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightModelCertainty + WeightDataQuality + WeightPatternStrength + WeightHistoricalAccuracy
	if math.Abs(sum-1.0) > 1e-12 {
		t.Fatalf("weights sum to %v, want exactly 1.0", sum)
	}
}

func TestPatternStrength(t *testing.T) {
	tests := []struct {
		name     string
		trend    float64
		velocity float64
		want     float64
	}{
		{"no signal", 0, 0, 0},
		{"strong trend caps at 100", 25, 0, 50},       // trend term 100 capped, velocity 0
		{"strong velocity caps at 100", 0, 1.0, 50},   // velocity term 100 capped
		{"both capped", 50, 2.0, 100},
		{"moderate signals", 5, 0.2, 45}, // (50 + 40) / 2
		{"negative signals use magnitude", -5, -0.2, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PatternStrength(tt.trend, tt.velocity)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PatternStrength(%v, %v) = %v, want %v", tt.trend, tt.velocity, got, tt.want)
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  models.ConfidenceLevel
	}{
		{95, models.ConfidenceHigh},
		{80, models.ConfidenceHigh},
		{79.9, models.ConfidenceMedium},
		{60, models.ConfidenceMedium},
		{59.9, models.ConfidenceLow},
		{10, models.ConfidenceLow},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

type stubQuality struct {
	scores []float64
	err    error
}

func (s stubQuality) RecentScores(context.Context, []string, time.Time, int) ([]float64, error) {
	return s.scores, s.err
}

type stubCounter struct {
	count int
	err   error
}

func (s stubCounter) CountForSubject(context.Context, string) (int, error) {
	return s.count, s.err
}

func scoringVector(trend, velocity float64) *models.FeatureVector {
	vec := models.NewFeatureVector("Math", time.Now())
	vec.Set(models.FeatureUtilizationTrend, trend)
	vec.Set(models.FeatureEnrollmentVelocity, velocity)
	return &vec
}

func TestScoreWeightedSum(t *testing.T) {
	scorer := NewScorer(stubQuality{scores: []float64{100, 80}}, stubCounter{count: 12}, testLogger())

	conf := scorer.Score(context.Background(), "Math", 0.9, scoringVector(5, 0.2))

	// certainty 80, quality 90, pattern 45, history 75
	want := 0.40*80 + 0.25*90 + 0.20*45 + 0.15*75
	if math.Abs(conf.Score-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", conf.Score, want)
	}
	if conf.Breakdown.ModelCertainty != 80 {
		t.Errorf("model certainty = %v, want 80", conf.Breakdown.ModelCertainty)
	}
	if conf.Breakdown.DataQuality != 90 {
		t.Errorf("data quality = %v, want 90", conf.Breakdown.DataQuality)
	}
	if conf.Breakdown.HistoricalAccuracy != 75 {
		t.Errorf("historical accuracy = %v, want 75", conf.Breakdown.HistoricalAccuracy)
	}
	if conf.Level != models.ConfidenceMedium {
		t.Errorf("level = %v, want medium", conf.Level)
	}
	if conf.IsUncertain {
		t.Error("expected confident result")
	}
}

func TestScoreDegradesGracefully(t *testing.T) {
	t.Run("quality lookup error defaults to 90", func(t *testing.T) {
		scorer := NewScorer(stubQuality{err: errors.New("db down")}, stubCounter{}, testLogger())
		conf := scorer.Score(context.Background(), "Math", 0.5, scoringVector(0, 0))
		if conf.Breakdown.DataQuality != 90 {
			t.Errorf("data quality = %v, want default 90", conf.Breakdown.DataQuality)
		}
	})

	t.Run("no quality checks defaults to 90", func(t *testing.T) {
		scorer := NewScorer(stubQuality{}, stubCounter{}, testLogger())
		conf := scorer.Score(context.Background(), "Math", 0.5, scoringVector(0, 0))
		if conf.Breakdown.DataQuality != 90 {
			t.Errorf("data quality = %v, want default 90", conf.Breakdown.DataQuality)
		}
	})

	t.Run("nil sources use defaults", func(t *testing.T) {
		scorer := NewScorer(nil, nil, testLogger())
		conf := scorer.Score(context.Background(), "Math", 0.5, scoringVector(0, 0))
		if conf.Breakdown.DataQuality != 90 {
			t.Errorf("data quality = %v, want 90", conf.Breakdown.DataQuality)
		}
		if conf.Breakdown.HistoricalAccuracy != 50 {
			t.Errorf("historical accuracy = %v, want 50", conf.Breakdown.HistoricalAccuracy)
		}
	})
}

func TestHistoricalAccuracyTiers(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{0, 50},
		{1, 60},
		{10, 60},
		{11, 75},
		{100, 75},
	}

	for _, tt := range tests {
		scorer := NewScorer(nil, stubCounter{count: tt.count}, testLogger())
		conf := scorer.Score(context.Background(), "Math", 0.5, scoringVector(0, 0))
		if conf.Breakdown.HistoricalAccuracy != tt.want {
			t.Errorf("count %d: historical accuracy = %v, want %v", tt.count, conf.Breakdown.HistoricalAccuracy, tt.want)
		}
	}
}

func TestIsUncertainBelowSixty(t *testing.T) {
	// Probability 0.5 zeroes certainty; flat signals zero pattern
	// strength; defaults leave 0.25*90 + 0.15*50 = 30.
	scorer := NewScorer(nil, nil, testLogger())
	conf := scorer.Score(context.Background(), "Math", 0.5, scoringVector(0, 0))

	if !conf.IsUncertain {
		t.Errorf("score %v should be uncertain", conf.Score)
	}
	if conf.Level != models.ConfidenceLow {
		t.Errorf("level = %v, want low", conf.Level)
	}
}
