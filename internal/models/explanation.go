package models

import (
	"time"
)

// FeatureContribution is one ranked entry in a prediction explanation:
// how much a single feature pushed the forecast toward or away from a
// shortage.
type FeatureContribution struct {
	Feature     string  `json:"feature"`
	Attribution float64 `json:"attribution_value"`
	Value       float64 `json:"feature_value"`
	Importance  float64 `json:"importance"`
	Description string  `json:"readable_description"`
}

// Explanation is the 1:1 companion record of a Prediction: the ranked
// feature contributions plus the composed narrative. Created atomically
// with its prediction and never updated independently.
type Explanation struct {
	PredictionID string                `json:"prediction_id"`
	TopFeatures  []FeatureContribution `json:"top_features"`
	Narrative    string                `json:"explanation_text"`
	CreatedAt    time.Time             `json:"created_at"`
}
