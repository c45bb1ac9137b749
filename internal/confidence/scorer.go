package confidence

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Sub-score weights. They sum to exactly 1.0.
const (
	WeightModelCertainty     = 0.40
	WeightDataQuality        = 0.25
	WeightPatternStrength    = 0.20
	WeightHistoricalAccuracy = 0.15
)

const (
	defaultDataQuality = 90.0
	qualityWindow      = 24 * time.Hour
	qualityCheckLimit  = 10
)

// Tables whose quality checks feed the data-quality sub-score.
var qualityTables = []string{"enrollments", "sessions", "tutors"}

// QualitySource supplies recent data quality check scores.
type QualitySource interface {
	RecentScores(ctx context.Context, tables []string, since time.Time, limit int) ([]float64, error)
}

// PredictionCounter reports how many predictions exist for a subject.
type PredictionCounter interface {
	CountForSubject(ctx context.Context, subject string) (int, error)
}

// Scorer combines model certainty, data quality, pattern strength and
// historical accuracy into a 0-100 confidence score with a breakdown.
type Scorer struct {
	quality QualitySource
	history PredictionCounter
	logger  *slog.Logger
}

// NewScorer creates a confidence scorer. quality and history may be nil;
// their sub-scores then fall back to documented defaults.
func NewScorer(quality QualitySource, history PredictionCounter, logger *slog.Logger) *Scorer {
	return &Scorer{
		quality: quality,
		history: history,
		logger:  logger,
	}
}

// Score computes the confidence for one prediction. External signal
// failures degrade to defaults rather than failing the prediction.
func (s *Scorer) Score(ctx context.Context, subject string, probability float64, vec *models.FeatureVector) models.Confidence {
	breakdown := models.ConfidenceBreakdown{
		ModelCertainty:     ModelCertainty(probability),
		DataQuality:        s.dataQuality(ctx),
		PatternStrength:    PatternStrength(vec.Get(models.FeatureUtilizationTrend), vec.Get(models.FeatureEnrollmentVelocity)),
		HistoricalAccuracy: s.historicalAccuracy(ctx, subject),
	}

	score := WeightModelCertainty*breakdown.ModelCertainty +
		WeightDataQuality*breakdown.DataQuality +
		WeightPatternStrength*breakdown.PatternStrength +
		WeightHistoricalAccuracy*breakdown.HistoricalAccuracy

	return models.Confidence{
		Score:       score,
		Level:       LevelFor(score),
		Breakdown:   breakdown,
		IsUncertain: score < 60,
	}
}

// ModelCertainty measures how far the probability sits from the 0.5
// coin-flip point, scaled to 0-100. Maximal at 0 and 1, zero at 0.5.
func ModelCertainty(probability float64) float64 {
	return math.Abs(probability-0.5) / 0.5 * 100
}

// PatternStrength averages two clamped signal magnitudes: utilization
// trend (x10) and enrollment velocity (x200), each capped at 100.
func PatternStrength(utilizationTrend, enrollmentVelocity float64) float64 {
	trendTerm := math.Min(math.Abs(utilizationTrend)*10, 100)
	velocityTerm := math.Min(math.Abs(enrollmentVelocity)*200, 100)
	return (trendTerm + velocityTerm) / 2
}

// LevelFor buckets a confidence score.
func LevelFor(score float64) models.ConfidenceLevel {
	switch {
	case score >= 80:
		return models.ConfidenceHigh
	case score >= 60:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func (s *Scorer) dataQuality(ctx context.Context) float64 {
	if s.quality == nil {
		return defaultDataQuality
	}

	scores, err := s.quality.RecentScores(ctx, qualityTables, time.Now().Add(-qualityWindow), qualityCheckLimit)
	if err != nil {
		s.logger.Warn("data quality lookup failed, using default", "error", err)
		return defaultDataQuality
	}
	if len(scores) == 0 {
		return defaultDataQuality
	}

	sum := 0.0
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

// historicalAccuracy is a tiered stand-in for real backtested accuracy:
// subjects with a longer prediction history score higher. Replace once
// resolved predictions carry outcome data.
// TODO: backtest resolved predictions against realized utilization and
// derive this from the actual hit rate.
func (s *Scorer) historicalAccuracy(ctx context.Context, subject string) float64 {
	if s.history == nil {
		return 50
	}

	count, err := s.history.CountForSubject(ctx, subject)
	if err != nil {
		s.logger.Warn("prediction history lookup failed, using default", "subject", subject, "error", err)
		return 50
	}

	switch {
	case count > 10:
		return 75
	case count > 0:
		return 60
	default:
		return 50
	}
}
