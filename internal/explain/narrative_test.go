package explain

import (
	"strings"
	"testing"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

func narrativeCore(probability float64, daysUntil int, severity models.Severity) *models.PredictionCore {
	return &models.PredictionCore{
		ShortageProbability:      probability,
		PredictedShortageDate:    time.Now().AddDate(0, 0, daysUntil),
		DaysUntilShortage:        daysUntil,
		PredictedPeakUtilization: 108,
		Severity:                 severity,
		Horizon:                  models.Horizon4Week,
		HorizonDays:              28,
	}
}

func narrativeConfidence(score, certainty, quality, pattern float64) models.Confidence {
	return models.Confidence{
		Score: score,
		Level: LevelForTest(score),
		Breakdown: models.ConfidenceBreakdown{
			ModelCertainty:     certainty,
			DataQuality:        quality,
			PatternStrength:    pattern,
			HistoricalAccuracy: 60,
		},
		IsUncertain: score < 60,
	}
}

// LevelForTest mirrors the confidence package's banding without
// importing it.
func LevelForTest(score float64) models.ConfidenceLevel {
	switch {
	case score >= 80:
		return models.ConfidenceHigh
	case score >= 60:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func topFeatures() []models.FeatureContribution {
	return []models.FeatureContribution{
		{Feature: "enrollment_velocity", Attribution: 0.2, Importance: 0.2, Description: Describe("enrollment_velocity", 0.2)},
		{Feature: "utilization_trend", Attribution: 0.15, Importance: 0.15, Description: Describe("utilization_trend", 0.15)},
		{Feature: "is_back_to_school_season", Attribution: 0.1, Importance: 0.1, Description: Describe("is_back_to_school_season", 0.1)},
	}
}

func TestGenerateSections(t *testing.T) {
	narrative := Generate("Physics",
		narrativeCore(0.85, 10, models.SeverityHigh),
		narrativeConfidence(82, 75, 90, 60),
		topFeatures())

	sections := strings.Split(narrative, "\n\n")
	if len(sections) != 5 {
		t.Fatalf("got %d sections, want 5 (seasonal factor present):\n%s", len(sections), narrative)
	}

	if !strings.HasPrefix(sections[0], "Physics will likely") {
		t.Errorf("main statement = %q, want 'will likely' phrasing at 85%%", sections[0])
	}
	if !strings.Contains(sections[0], "in approximately 10 days") {
		t.Errorf("main statement = %q, want 10-day timeframe", sections[0])
	}
	if !strings.Contains(sections[1], "1.") || !strings.Contains(sections[1], "3.") {
		t.Errorf("factors section should number three factors: %q", sections[1])
	}
	if strings.Contains(sections[1], "shortage risk") {
		t.Errorf("factors section should strip directional suffixes: %q", sections[1])
	}
	if !strings.Contains(sections[2], "high confidence") {
		t.Errorf("confidence section = %q, want high band at 82", sections[2])
	}
	if !strings.Contains(sections[3], "back-to-school") {
		t.Errorf("seasonal section = %q, want back-to-school context", sections[3])
	}
	if !strings.Contains(sections[4], "Recommended action") {
		t.Errorf("missing recommendation section: %q", sections[4])
	}
}

func TestGenerateOmitsSeasonalWithoutSeasonalFeature(t *testing.T) {
	features := []models.FeatureContribution{
		{Feature: "tutor_count", Description: Describe("tutor_count", -0.1)},
	}

	narrative := Generate("Math",
		narrativeCore(0.55, 20, models.SeverityMedium),
		narrativeConfidence(50, 10, 70, 20),
		features)

	sections := strings.Split(narrative, "\n\n")
	if len(sections) != 4 {
		t.Fatalf("got %d sections, want 4 without seasonal context:\n%s", len(sections), narrative)
	}
	for _, s := range sections {
		if strings.Contains(s, "season") {
			t.Errorf("unexpected seasonal text: %q", s)
		}
	}
}

func TestCertaintyPhrasing(t *testing.T) {
	tests := []struct {
		probability float64
		want        string
	}{
		{0.9, "will likely"},
		{0.7, "will likely"},
		{0.6, "may"},
		{0.5, "may"},
		{0.3, "has a low probability to"},
	}

	for _, tt := range tests {
		narrative := Generate("Math", narrativeCore(tt.probability, 10, models.SeverityLow),
			narrativeConfidence(50, 10, 70, 20), nil)
		if !strings.Contains(narrative, tt.want) {
			t.Errorf("probability %v: narrative missing %q", tt.probability, tt.want)
		}
	}
}

func TestTimeframePhrasing(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{3, "within the next week"},
		{7, "within the next week"},
		{12, "in approximately 12 days"},
		{21, "in about 3 weeks"},
		{45, "in approximately 1 months"},
	}

	for _, tt := range tests {
		narrative := Generate("Math", narrativeCore(0.8, tt.days, models.SeverityLow),
			narrativeConfidence(50, 10, 70, 20), nil)
		if !strings.Contains(narrative, tt.want) {
			t.Errorf("days %d: narrative missing %q", tt.days, tt.want)
		}
	}
}

func TestConfidenceSectionFallsBackToBarePercentage(t *testing.T) {
	// No sub-score clears its callout threshold.
	narrative := Generate("Math", narrativeCore(0.55, 20, models.SeverityLow),
		narrativeConfidence(45, 20, 70, 30), nil)

	if !strings.Contains(narrative, "Confidence in this prediction is 45%.") {
		t.Errorf("expected bare percentage confidence statement:\n%s", narrative)
	}
}

func TestRecommendationTiers(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		prob     float64
		severity models.Severity
		want     string
	}{
		{"urgent", 5, 0.9, models.SeverityHigh, "urgent"},
		{"act within week", 12, 0.8, models.SeverityMedium, "within the week"},
		{"monitor", 25, 0.6, models.SeverityLow, "monitor"},
		{"long term", 45, 0.4, models.SeverityLow, "long-term"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			narrative := Generate("Math", narrativeCore(tt.prob, tt.days, tt.severity),
				narrativeConfidence(50, 10, 70, 20), nil)
			lower := strings.ToLower(narrative)
			if !strings.Contains(lower, tt.want) {
				t.Errorf("expected recommendation containing %q:\n%s", tt.want, narrative)
			}
		})
	}
}
