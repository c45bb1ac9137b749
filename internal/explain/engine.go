package explain

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/nerdboard/nerdboard/internal/models"
)

// DefaultTopN is the number of contributions kept in an explanation.
const DefaultTopN = 5

// AttributionModel exposes the classifier's attribution surfaces. Both
// methods fail with the classifier's sentinel errors when no model is
// loaded for the horizon.
type AttributionModel interface {
	PathAttributions(vec *models.FeatureVector, horizon models.Horizon) (map[string]float64, error)
	Importances(horizon models.Horizon) (map[string]float64, error)
}

// Engine ranks per-feature contributions for a single prediction.
// Attribution is best-effort with a three-tier fallback chain; it never
// fails a prediction outright.
type Engine struct {
	model  AttributionModel
	logger *slog.Logger
}

// NewEngine creates an explainability engine.
func NewEngine(model AttributionModel, logger *slog.Logger) *Engine {
	return &Engine{model: model, logger: logger}
}

// Explain produces the topN ranked feature contributions for a vector.
// Preferred path: decision-path attributions from the loaded forest.
// First fallback: impurity importance scaled by feature value. Last
// resort: raw feature magnitudes. All paths share one output shape.
func (e *Engine) Explain(vec *models.FeatureVector, horizon models.Horizon, topN int) []models.FeatureContribution {
	if topN <= 0 {
		topN = DefaultTopN
	}

	attributions, err := e.model.PathAttributions(vec, horizon)
	if err != nil {
		e.logger.Warn("path attribution unavailable, falling back to importances", "error", err)

		importances, impErr := e.model.Importances(horizon)
		if impErr != nil {
			e.logger.Warn("importances unavailable, falling back to raw magnitudes", "error", impErr)
			attributions = rawMagnitudes(vec)
		} else {
			attributions = make(map[string]float64, len(importances))
			for name, importance := range importances {
				attributions[name] = importance * vec.Get(name)
			}
		}
	}

	contributions := make([]models.FeatureContribution, 0, len(attributions))
	for name, attribution := range attributions {
		contributions = append(contributions, models.FeatureContribution{
			Feature:     name,
			Attribution: attribution,
			Value:       vec.Get(name),
			Importance:  math.Abs(attribution),
			Description: Describe(name, attribution),
		})
	}

	sort.Slice(contributions, func(i, j int) bool {
		if contributions[i].Importance != contributions[j].Importance {
			return contributions[i].Importance > contributions[j].Importance
		}
		return contributions[i].Feature < contributions[j].Feature
	})

	if len(contributions) > topN {
		contributions = contributions[:topN]
	}

	return contributions
}

func rawMagnitudes(vec *models.FeatureVector) map[string]float64 {
	out := make(map[string]float64, len(vec.Values))
	for name, value := range vec.Values {
		out[name] = value
	}
	return out
}

// Description templates keyed by feature-name substring, checked in
// order so more specific patterns win.
var descriptionTemplates = []struct {
	substring string
	template  string
}{
	{"enrollment_velocity", "Week-over-week enrollment growth"},
	{"utilization_trend", "The utilization trend over recent weeks"},
	{"utilization_current", "Current tutor utilization"},
	{"utilization", "Recent tutor utilization"},
	{"is_back_to_school", "The back-to-school season"},
	{"is_summer", "The summer season"},
	{"seasonal", "Seasonal enrollment patterns"},
	{"tutor_count", "The number of available tutors"},
	{"capacity_hours", "Total tutor capacity hours"},
	{"session_rate", "The pace of session bookings"},
	{"session", "Recent session volume"},
	{"enrollment_rate", "The pace of new enrollments"},
	{"enrollment", "Recent enrollment volume"},
}

// Direction suffixes appended to every description. The narrative
// generator strips them with StripDirection.
const (
	suffixIncreasing = ", increasing shortage risk"
	suffixDecreasing = ", decreasing shortage risk"
)

// Describe maps a feature name and its attribution to a human-readable
// sentence fragment carrying the direction of impact.
func Describe(feature string, attribution float64) string {
	base := ""
	for _, t := range descriptionTemplates {
		if strings.Contains(feature, t.substring) {
			base = t.template
			break
		}
	}
	if base == "" {
		base = titleCase(feature)
	}

	if attribution >= 0 {
		return base + suffixIncreasing
	}
	return base + suffixDecreasing
}

// StripDirection removes the direction-of-impact suffix from a
// description, for contexts that phrase direction separately.
func StripDirection(description string) string {
	description = strings.TrimSuffix(description, suffixIncreasing)
	description = strings.TrimSuffix(description, suffixDecreasing)
	return description
}

func titleCase(feature string) string {
	words := strings.Split(feature, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
