package models

import (
	"time"
)

// TrainingMetrics summarizes a classifier training run. Precision,
// recall and F1 report 0 rather than failing when a class is absent
// from the predictions.
type TrainingMetrics struct {
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	F1Score      float64   `json:"f1_score"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	HorizonDays  int       `json:"horizon_days"`
	TrainedAt    time.Time `json:"trained_at"`
}
