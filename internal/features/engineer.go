package features

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Trailing window lengths in days. Window-scoped features carry the
// suffix in their name, e.g. enrollment_count_short.
var windows = []struct {
	Suffix string
	Days   int
}{
	{"short", 7},
	{"medium", 14},
	{"long", 30},
}

const trendWeeks = 4

// HistoryStore provides read access to the operational history tables.
type HistoryStore interface {
	EnrollmentCount(ctx context.Context, subject string, from, to time.Time) (int, error)
	SessionStats(ctx context.Context, subject string, from, to time.Time) (models.WindowStats, error)
	TutorStats(ctx context.Context, subject string) (models.TutorStats, error)
	WeeklyUtilizations(ctx context.Context, subject string, refDate time.Time, weeks int) ([]float64, error)
}

// FeatureStore persists extracted vectors keyed by (subject, reference_date).
type FeatureStore interface {
	Upsert(ctx context.Context, vec *models.FeatureVector) error
}

// Engineer turns raw time-stamped records into a flat numeric feature
// vector per (subject, reference date). The five feature groups are
// independently computable; a store, when configured, receives every
// extracted vector with latest-write-wins semantics.
type Engineer struct {
	history HistoryStore
	store   FeatureStore
	logger  *slog.Logger
}

// NewEngineer creates a feature engineer. store may be nil to disable
// persistence of extracted vectors.
func NewEngineer(history HistoryStore, store FeatureStore, logger *slog.Logger) *Engineer {
	return &Engineer{
		history: history,
		store:   store,
		logger:  logger,
	}
}

// Extract computes the full feature vector for a subject as of the
// reference date and persists it when a store is configured.
func (e *Engineer) Extract(ctx context.Context, subject string, referenceDate time.Time) (*models.FeatureVector, error) {
	vec := models.NewFeatureVector(subject, referenceDate)

	if err := e.enrollmentFeatures(ctx, &vec); err != nil {
		return nil, fmt.Errorf("enrollment features for %s: %w", subject, err)
	}
	if err := e.tutorFeatures(ctx, &vec); err != nil {
		return nil, fmt.Errorf("tutor features for %s: %w", subject, err)
	}
	if err := e.sessionFeatures(ctx, &vec); err != nil {
		return nil, fmt.Errorf("session features for %s: %w", subject, err)
	}
	if err := e.utilizationFeatures(ctx, &vec); err != nil {
		return nil, fmt.Errorf("utilization features for %s: %w", subject, err)
	}
	if err := e.seasonalFeatures(ctx, &vec); err != nil {
		return nil, fmt.Errorf("seasonal features for %s: %w", subject, err)
	}

	if e.store != nil {
		if err := e.store.Upsert(ctx, &vec); err != nil {
			return nil, fmt.Errorf("persist features for %s: %w", subject, err)
		}
	}

	e.logger.Debug("extracted features",
		"subject", subject,
		"reference_date", referenceDate.Format("2006-01-02"),
		"feature_count", len(vec.Values))

	return &vec, nil
}

func (e *Engineer) enrollmentFeatures(ctx context.Context, vec *models.FeatureVector) error {
	ref := vec.ReferenceDate

	for _, w := range windows {
		count, err := e.history.EnrollmentCount(ctx, vec.Subject, ref.AddDate(0, 0, -w.Days), ref)
		if err != nil {
			return err
		}
		vec.Set("enrollment_count_"+w.Suffix, float64(count))
		vec.Set("enrollment_rate_"+w.Suffix, float64(count)/float64(w.Days))
	}

	thisWeek, err := e.history.EnrollmentCount(ctx, vec.Subject, ref.AddDate(0, 0, -7), ref)
	if err != nil {
		return err
	}
	lastWeek, err := e.history.EnrollmentCount(ctx, vec.Subject, ref.AddDate(0, 0, -14), ref.AddDate(0, 0, -7))
	if err != nil {
		return err
	}

	vec.Set(models.FeatureEnrollmentThisWeek, float64(thisWeek))
	vec.Set(models.FeatureEnrollmentLastWeek, float64(lastWeek))
	vec.Set(models.FeatureEnrollmentVelocity, Velocity(thisWeek, lastWeek))

	return nil
}

// Velocity is the week-over-week enrollment growth rate. A zero
// last-week count yields 0 when this week is also zero, otherwise 1.0
// as a 100% growth proxy.
func Velocity(thisWeek, lastWeek int) float64 {
	if lastWeek == 0 {
		if thisWeek == 0 {
			return 0
		}
		return 1.0
	}
	return float64(thisWeek-lastWeek) / float64(lastWeek)
}

func (e *Engineer) tutorFeatures(ctx context.Context, vec *models.FeatureVector) error {
	stats, err := e.history.TutorStats(ctx, vec.Subject)
	if err != nil {
		return err
	}

	vec.Set(models.FeatureTutorCount, float64(stats.TutorCount))
	vec.Set(models.FeatureTotalCapacityHours, stats.CapacityHours)
	vec.Set(models.FeatureAvgTutorUtilization, stats.AvgUtilization)

	return nil
}

func (e *Engineer) sessionFeatures(ctx context.Context, vec *models.FeatureVector) error {
	ref := vec.ReferenceDate

	for _, w := range windows {
		stats, err := e.history.SessionStats(ctx, vec.Subject, ref.AddDate(0, 0, -w.Days), ref)
		if err != nil {
			return err
		}
		vec.Set("session_count_"+w.Suffix, float64(stats.Count))
		vec.Set("session_hours_"+w.Suffix, stats.TotalHours)
		vec.Set("session_rate_"+w.Suffix, float64(stats.Count)/float64(w.Days))
	}

	return nil
}

func (e *Engineer) utilizationFeatures(ctx context.Context, vec *models.FeatureVector) error {
	// Index 0 is the most recent week; values are fractions.
	weekly, err := e.history.WeeklyUtilizations(ctx, vec.Subject, vec.ReferenceDate, trendWeeks)
	if err != nil {
		return err
	}

	percents := make([]float64, len(weekly))
	for i, u := range weekly {
		percents[i] = u * 100
	}

	names := []string{
		models.FeatureUtilizationCurrentWeek,
		"utilization_last_week",
		"utilization_2_weeks_ago",
		"utilization_3_weeks_ago",
	}
	for i, name := range names {
		if i < len(percents) {
			vec.Set(name, percents[i])
		} else {
			vec.Set(name, 0)
		}
	}

	vec.Set(models.FeatureUtilizationTrend, TrendSlope(percents))
	vec.Set(models.FeatureUtilizationAvg4Weeks, mean(percents))

	return nil
}

// TrendSlope fits an ordinary least-squares line through the weekly
// utilization points in chronological order and returns its slope in
// percentage points per week. Input index 0 is the most recent week.
// Fewer than two points yield 0.
func TrendSlope(mostRecentFirst []float64) float64 {
	n := len(mostRecentFirst)
	if n < 2 {
		return 0
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = float64(i)
		ys[i] = mostRecentFirst[n-1-i]
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (e *Engineer) seasonalFeatures(ctx context.Context, vec *models.FeatureVector) error {
	ref := vec.ReferenceDate

	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	currentMonth, err := e.history.EnrollmentCount(ctx, vec.Subject, monthStart, ref)
	if err != nil {
		return err
	}

	yearTotal, err := e.history.EnrollmentCount(ctx, vec.Subject, ref.AddDate(-1, 0, 0), ref)
	if err != nil {
		return err
	}

	monthlyAverage := float64(yearTotal) / 12.0
	seasonalFactor := 1.0
	if monthlyAverage > 0 {
		seasonalFactor = float64(currentMonth) / monthlyAverage
	}

	vec.Set(models.FeatureSeasonalFactor, seasonalFactor)
	vec.Set(models.FeatureMonthOfYear, float64(ref.Month()))
	vec.Set(models.FeatureSeasonalMultiplier, SeasonalMultiplier(ref.Month()))
	vec.Set(models.FeatureIsBackToSchoolSeason, boolFeature(isBackToSchool(ref.Month())))
	vec.Set(models.FeatureIsSummerSeason, boolFeature(isSummer(ref.Month())))

	return nil
}

// SeasonalMultiplier returns the fixed demand multiplier for a month:
// 1.3 for back-to-school (Sep-Oct), 0.8 for summer (Jun-Aug), else 1.0.
func SeasonalMultiplier(m time.Month) float64 {
	switch {
	case isBackToSchool(m):
		return 1.3
	case isSummer(m):
		return 0.8
	default:
		return 1.0
	}
}

func isBackToSchool(m time.Month) bool {
	return m == time.September || m == time.October
}

func isSummer(m time.Month) bool {
	return m >= time.June && m <= time.August
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
