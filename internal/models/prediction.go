package models

import (
	"time"
)

// Horizon identifies a forecast lookahead window.
type Horizon string

const (
	Horizon2Week Horizon = "2week"
	Horizon4Week Horizon = "4week"
	Horizon6Week Horizon = "6week"
	Horizon8Week Horizon = "8week"
)

// HorizonDays maps each horizon to its lookahead in days.
var HorizonDays = map[Horizon]int{
	Horizon2Week: 14,
	Horizon4Week: 28,
	Horizon6Week: 42,
	Horizon8Week: 56,
}

// AllHorizons lists every supported horizon in ascending order.
var AllHorizons = []Horizon{Horizon2Week, Horizon4Week, Horizon6Week, Horizon8Week}

// Days returns the horizon lookahead in days, defaulting to 14 for
// unknown values.
func (h Horizon) Days() int {
	if d, ok := HorizonDays[h]; ok {
		return d
	}
	return 14
}

// Valid reports whether the horizon is one of the supported windows.
func (h Horizon) Valid() bool {
	_, ok := HorizonDays[h]
	return ok
}

// Severity describes the magnitude of a projected shortage,
// independent of probability or timing.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PredictionStatus tracks the lifecycle of a persisted prediction.
type PredictionStatus string

const (
	PredictionStatusActive   PredictionStatus = "active"
	PredictionStatusResolved PredictionStatus = "resolved"
	PredictionStatusExpired  PredictionStatus = "expired"
)

// PredictionCore is the raw classifier output for one (subject, horizon)
// pair, before confidence scoring and prioritization.
type PredictionCore struct {
	ShortageProbability      float64   `json:"shortage_probability"`
	PredictedShortageDate    time.Time `json:"predicted_shortage_date"`
	DaysUntilShortage        int       `json:"days_until_shortage"`
	PredictedPeakUtilization float64   `json:"predicted_peak_utilization"`
	Severity                 Severity  `json:"severity"`
	Horizon                  Horizon   `json:"horizon"`
	HorizonDays              int       `json:"horizon_days"`
}

// ConfidenceBreakdown holds the four weighted sub-scores behind a
// confidence score, each on a 0-100 scale.
type ConfidenceBreakdown struct {
	ModelCertainty     float64 `json:"model_certainty"`
	DataQuality        float64 `json:"data_quality"`
	PatternStrength    float64 `json:"pattern_strength"`
	HistoricalAccuracy float64 `json:"historical_accuracy"`
}

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Confidence is the result of multi-factor confidence scoring.
type Confidence struct {
	Score       float64             `json:"confidence_score"`
	Level       ConfidenceLevel     `json:"confidence_level"`
	Breakdown   ConfidenceBreakdown `json:"breakdown"`
	IsUncertain bool                `json:"is_uncertain"`
}

// Prediction is a persisted capacity shortage forecast for one
// (subject, horizon) pair. Mutated only through status transitions;
// all other fields are immutable after creation.
type Prediction struct {
	ID                       string              `json:"prediction_id"`
	Subject                  string              `json:"subject"`
	ShortageProbability      float64             `json:"shortage_probability"`
	PredictedShortageDate    time.Time           `json:"predicted_shortage_date"`
	DaysUntilShortage        int                 `json:"days_until_shortage"`
	PredictedPeakUtilization float64             `json:"predicted_peak_utilization"`
	Severity                 Severity            `json:"severity"`
	Horizon                  Horizon             `json:"horizon"`
	HorizonDays              int                 `json:"horizon_days"`
	ConfidenceScore          float64             `json:"confidence_score"`
	ConfidenceLevel          ConfidenceLevel     `json:"confidence_level"`
	ConfidenceBreakdown      ConfidenceBreakdown `json:"confidence_breakdown"`
	PriorityScore            float64             `json:"priority_score"`
	IsCritical               bool                `json:"is_critical"`
	Status                   PredictionStatus    `json:"status"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
}

// BatchSummary aggregates the outcome of a full prediction run across
// all subjects and horizons.
type BatchSummary struct {
	Timestamp            time.Time      `json:"timestamp"`
	SubjectsAnalyzed     int            `json:"subjects_analyzed"`
	Horizons             []Horizon      `json:"horizons"`
	PredictionsCreated   int            `json:"predictions_created"`
	PredictionsSkipped   int            `json:"predictions_skipped"`
	Failures             int            `json:"failures"`
	PredictionsBySubject map[string]int `json:"predictions_by_subject"`
	DurationSeconds      float64        `json:"duration_seconds"`
}
