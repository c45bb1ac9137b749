package models

import (
	"time"
)

// Canonical feature names shared between the feature engineer, the
// classifier and the explainability engine. Window-scoped features are
// produced as name_short / name_medium / name_long.
const (
	FeatureEnrollmentVelocity     = "enrollment_velocity"
	FeatureEnrollmentThisWeek     = "enrollment_this_week"
	FeatureEnrollmentLastWeek     = "enrollment_last_week"
	FeatureTutorCount             = "tutor_count"
	FeatureTotalCapacityHours     = "total_capacity_hours"
	FeatureAvgTutorUtilization    = "avg_tutor_utilization"
	FeatureUtilizationCurrentWeek = "utilization_current_week"
	FeatureUtilizationTrend       = "utilization_trend"
	FeatureUtilizationAvg4Weeks   = "utilization_avg_4weeks"
	FeatureSeasonalFactor         = "seasonal_factor"
	FeatureMonthOfYear            = "month_of_year"
	FeatureSeasonalMultiplier     = "known_seasonal_multiplier"
	FeatureIsBackToSchoolSeason   = "is_back_to_school_season"
	FeatureIsSummerSeason         = "is_summer_season"
)

// FeatureVector is a flat numeric feature mapping for one
// (subject, reference date) pair. Subject and ReferenceDate are side
// metadata and are never part of the numeric vector fed to the
// classifier.
type FeatureVector struct {
	Subject       string             `json:"subject"`
	ReferenceDate time.Time          `json:"reference_date"`
	Values        map[string]float64 `json:"values"`
}

// NewFeatureVector allocates an empty vector for the given subject and
// reference date.
func NewFeatureVector(subject string, referenceDate time.Time) FeatureVector {
	return FeatureVector{
		Subject:       subject,
		ReferenceDate: referenceDate,
		Values:        make(map[string]float64),
	}
}

// Get returns the named feature value, defaulting to 0.0 for missing
// names so partially populated vectors stay usable downstream.
func (v FeatureVector) Get(name string) float64 {
	return v.Values[name]
}

// Set stores a feature value.
func (v FeatureVector) Set(name string, value float64) {
	v.Values[name] = value
}

// Align orders the vector against the trained column schema. Missing
// columns are padded with 0.0 and extra columns are dropped, matching
// training-time column order exactly.
func (v FeatureVector) Align(columns []string) []float64 {
	row := make([]float64, len(columns))
	for i, col := range columns {
		row[i] = v.Values[col]
	}
	return row
}
