package explain

import (
	"fmt"
	"strings"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Generate composes the plain-language narrative for a prediction:
// five ordered sections joined by blank lines. Output is fully
// deterministic for identical inputs.
func Generate(subject string, core *models.PredictionCore, conf models.Confidence, topFeatures []models.FeatureContribution) string {
	sections := []string{
		mainStatement(subject, core),
		factorsSection(topFeatures),
		confidenceSection(conf),
	}

	if seasonal := seasonalSection(topFeatures); seasonal != "" {
		sections = append(sections, seasonal)
	}

	sections = append(sections, recommendation(core))

	return strings.Join(sections, "\n\n")
}

func mainStatement(subject string, core *models.PredictionCore) string {
	return fmt.Sprintf("%s %s experience a %s-severity tutor capacity shortage %s (%.0f%% probability, projected peak utilization %.0f%%).",
		subject,
		certaintyPhrase(core.ShortageProbability),
		core.Severity,
		timeframePhrase(core.DaysUntilShortage),
		core.ShortageProbability*100,
		core.PredictedPeakUtilization,
	)
}

func certaintyPhrase(probability float64) string {
	switch {
	case probability >= 0.7:
		return "will likely"
	case probability >= 0.5:
		return "may"
	default:
		return "has a low probability to"
	}
}

func timeframePhrase(daysUntil int) string {
	switch {
	case daysUntil <= 7:
		return "within the next week"
	case daysUntil <= 14:
		return fmt.Sprintf("in approximately %d days", daysUntil)
	case daysUntil <= 30:
		return fmt.Sprintf("in about %d weeks", daysUntil/7)
	default:
		return fmt.Sprintf("in approximately %d months", daysUntil/30)
	}
}

func factorsSection(topFeatures []models.FeatureContribution) string {
	if len(topFeatures) == 0 {
		return "No individual factor stood out in this prediction."
	}

	limit := 3
	if len(topFeatures) < limit {
		limit = len(topFeatures)
	}

	var b strings.Builder
	b.WriteString("Key factors driving this prediction:")
	for i := 0; i < limit; i++ {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, StripDirection(topFeatures[i].Description)))
	}
	return b.String()
}

// Sub-score thresholds for calling out supporting evidence.
const (
	certaintyCallout = 70.0
	qualityCallout   = 80.0
	patternCallout   = 70.0
)

func confidenceSection(conf models.Confidence) string {
	var supports []string
	if conf.Breakdown.ModelCertainty > certaintyCallout {
		supports = append(supports, "strong model certainty")
	}
	if conf.Breakdown.DataQuality > qualityCallout {
		supports = append(supports, "reliable underlying data")
	}
	if conf.Breakdown.PatternStrength > patternCallout {
		supports = append(supports, "clear demand patterns")
	}

	if len(supports) == 0 {
		return fmt.Sprintf("Confidence in this prediction is %.0f%%.", conf.Score)
	}

	return fmt.Sprintf("This prediction carries %s confidence (%.0f%%), supported by %s.",
		confidenceBand(conf.Score), conf.Score, joinClauses(supports))
}

func confidenceBand(score float64) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 60:
		return "moderate"
	default:
		return "limited"
	}
}

func joinClauses(clauses []string) string {
	switch len(clauses) {
	case 1:
		return clauses[0]
	case 2:
		return clauses[0] + " and " + clauses[1]
	default:
		return strings.Join(clauses[:len(clauses)-1], ", ") + ", and " + clauses[len(clauses)-1]
	}
}

func seasonalSection(topFeatures []models.FeatureContribution) string {
	for _, f := range topFeatures {
		switch {
		case strings.Contains(f.Feature, "back_to_school"):
			return "This period coincides with the back-to-school season, when tutoring demand historically rises sharply."
		case strings.Contains(f.Feature, "summer"):
			return "This period falls in the summer season, when tutoring demand typically softens but capacity also shrinks."
		case strings.Contains(f.Feature, "seasonal"):
			return "Seasonal enrollment patterns are playing a significant role in this forecast."
		}
	}
	return ""
}

func recommendation(core *models.PredictionCore) string {
	days := core.DaysUntilShortage
	switch {
	case days <= 7 && core.Severity == models.SeverityHigh:
		return "Recommended action: urgent. Recruit or reallocate tutors for this subject immediately; capacity is projected to run out within days."
	case days <= 14 && core.ShortageProbability >= 0.7:
		return "Recommended action: begin tutor recruitment for this subject within the week to stay ahead of the projected shortage."
	case days <= 30:
		return "Recommended action: monitor this subject closely and start planning additional capacity."
	default:
		return "Recommended action: no immediate steps needed; factor this subject into long-term capacity planning."
	}
}
