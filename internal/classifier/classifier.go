package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/nerdboard/nerdboard/internal/config"
	"github.com/nerdboard/nerdboard/internal/models"
)

var (
	// ErrModelNotLoaded indicates an inference call before any model was
	// trained or loaded for the requested horizon. The caller must load
	// or train first; retrying without doing so cannot succeed.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInsufficientTrainingData indicates training was requested with
	// too few labeled rows to produce a meaningful model.
	ErrInsufficientTrainingData = errors.New("insufficient training data")
)

// The utilization percentage at which a subject is in shortage.
const shortagePercent = 95.0

// trainedModel is the serializable artifact for one horizon: the
// forest, its column schema, and the threshold it was labeled with.
type trainedModel struct {
	Forest      *Forest   `json:"forest"`
	Columns     []string  `json:"feature_columns"`
	Threshold   float64   `json:"shortage_threshold"`
	HorizonDays int       `json:"horizon_days"`
	TrainedAt   time.Time `json:"trained_at"`
}

// ModelStore persists serialized model artifacts.
type ModelStore interface {
	Save(ctx context.Context, horizonDays int, artifact []byte, metrics models.TrainingMetrics) error
	LoadLatest(ctx context.Context, horizonDays int) ([]byte, models.TrainingMetrics, error)
}

// Classifier trains, stores and serves one shortage model per horizon.
// Loaded models are read-only; retraining swaps the whole model
// atomically, so concurrent Predict calls never observe a partial
// update.
type Classifier struct {
	cfg     config.ModelConfig
	builder *DatasetBuilder
	store   ModelStore
	logger  *slog.Logger

	byHorizon map[int]*atomic.Pointer[trainedModel]
}

// NewClassifier creates a classifier covering every supported horizon.
// store may be nil to disable artifact persistence.
func NewClassifier(cfg config.ModelConfig, builder *DatasetBuilder, store ModelStore, logger *slog.Logger) *Classifier {
	byHorizon := make(map[int]*atomic.Pointer[trainedModel], len(models.AllHorizons))
	for _, h := range models.AllHorizons {
		byHorizon[h.Days()] = &atomic.Pointer[trainedModel]{}
	}

	return &Classifier{
		cfg:       cfg,
		builder:   builder,
		store:     store,
		logger:    logger,
		byHorizon: byHorizon,
	}
}

// Train builds a labeled dataset for the horizon, fits a forest,
// evaluates it on a stratified holdout, swaps the live model and
// persists the artifact. With tune set, a small hyperparameter grid is
// searched on the holdout before the final fit.
func (c *Classifier) Train(ctx context.Context, horizonDays int, tune bool) (models.TrainingMetrics, error) {
	ds, err := c.builder.Build(ctx, horizonDays, time.Now())
	if err != nil {
		return models.TrainingMetrics{}, fmt.Errorf("failed to build dataset: %w", err)
	}
	if len(ds.Rows) == 0 {
		return models.TrainingMetrics{}, fmt.Errorf("%w: no labeled rows for horizon %d", ErrInsufficientTrainingData, horizonDays)
	}
	if len(ds.Rows) < c.cfg.MinTrainingRows {
		return models.TrainingMetrics{}, fmt.Errorf("%w: %d rows, need at least %d", ErrInsufficientTrainingData, len(ds.Rows), c.cfg.MinTrainingRows)
	}

	train, test := StratifiedSplit(ds, 0.2, 42)

	forestCfg := ForestConfig{
		TreeCount:  c.cfg.TreeCount,
		MaxDepth:   c.cfg.MaxDepth,
		MinSamples: 2,
		Seed:       42,
	}
	if tune {
		forestCfg = c.tuneHyperparameters(train, test, forestCfg)
	}

	forest := TrainForest(train.Rows, train.Labels, forestCfg)

	probs := make([]float64, len(test.Rows))
	for i, row := range test.Rows {
		probs[i] = forest.Probability(row)
	}
	accuracy, precision, recall, f1 := EvaluateBinary(probs, test.Labels)

	metrics := models.TrainingMetrics{
		Accuracy:     accuracy,
		Precision:    precision,
		Recall:       recall,
		F1Score:      f1,
		TrainSamples: len(train.Rows),
		TestSamples:  len(test.Rows),
		HorizonDays:  horizonDays,
		TrainedAt:    time.Now(),
	}

	model := &trainedModel{
		Forest:      forest,
		Columns:     ds.Columns,
		Threshold:   c.cfg.ShortageThreshold,
		HorizonDays: horizonDays,
		TrainedAt:   metrics.TrainedAt,
	}
	c.swap(horizonDays, model)

	if c.store != nil {
		artifact, err := json.Marshal(model)
		if err != nil {
			return metrics, fmt.Errorf("failed to serialize model: %w", err)
		}
		if err := c.store.Save(ctx, horizonDays, artifact, metrics); err != nil {
			return metrics, fmt.Errorf("failed to persist model: %w", err)
		}
	}

	c.logger.Info("trained shortage model",
		"horizon_days", horizonDays,
		"trees", forestCfg.TreeCount,
		"max_depth", forestCfg.MaxDepth,
		"accuracy", accuracy,
		"f1", f1)

	return metrics, nil
}

func (c *Classifier) tuneHyperparameters(train, test *Dataset, base ForestConfig) ForestConfig {
	treeCounts := []int{50, 100}
	depths := []int{6, 10}

	best := base
	bestF1 := -1.0

	for _, trees := range treeCounts {
		for _, depth := range depths {
			candidate := base
			candidate.TreeCount = trees
			candidate.MaxDepth = depth

			forest := TrainForest(train.Rows, train.Labels, candidate)
			probs := make([]float64, len(test.Rows))
			for i, row := range test.Rows {
				probs[i] = forest.Probability(row)
			}
			_, _, _, f1 := EvaluateBinary(probs, test.Labels)

			if f1 > bestF1 {
				bestF1 = f1
				best = candidate
			}
		}
	}

	c.logger.Info("hyperparameter search complete",
		"trees", best.TreeCount, "max_depth", best.MaxDepth, "holdout_f1", bestF1)

	return best
}

// LoadLatest restores the newest persisted model for a horizon. Store
// errors pass through wrapped so callers can distinguish "no model yet"
// from real failures.
func (c *Classifier) LoadLatest(ctx context.Context, horizonDays int) error {
	if c.store == nil {
		return fmt.Errorf("no model store configured")
	}

	artifact, _, err := c.store.LoadLatest(ctx, horizonDays)
	if err != nil {
		return fmt.Errorf("failed to load model for horizon %d: %w", horizonDays, err)
	}

	var model trainedModel
	if err := json.Unmarshal(artifact, &model); err != nil {
		return fmt.Errorf("failed to deserialize model for horizon %d: %w", horizonDays, err)
	}

	c.swap(horizonDays, &model)
	c.logger.Info("loaded shortage model", "horizon_days", horizonDays, "trained_at", model.TrainedAt)

	return nil
}

// Loaded reports whether a model is available for the horizon.
func (c *Classifier) Loaded(horizon models.Horizon) bool {
	return c.active(horizon.Days()) != nil
}

// Predict runs inference for one feature vector at the given horizon.
func (c *Classifier) Predict(vec *models.FeatureVector, horizon models.Horizon) (*models.PredictionCore, error) {
	model := c.active(horizon.Days())
	if model == nil {
		return nil, fmt.Errorf("%w: horizon %s", ErrModelNotLoaded, horizon)
	}

	row := vec.Align(model.Columns)
	probability := model.Forest.Probability(row)

	current := vec.Get(models.FeatureUtilizationCurrentWeek)
	trend := vec.Get(models.FeatureUtilizationTrend)
	horizonDays := horizon.Days()

	days := EstimateDaysUntil(current, trend, probability, horizonDays)
	peak := PeakUtilization(current, trend, days)

	return &models.PredictionCore{
		ShortageProbability:      probability,
		PredictedShortageDate:    vec.ReferenceDate.AddDate(0, 0, days),
		DaysUntilShortage:        days,
		PredictedPeakUtilization: peak,
		Severity:                 SeverityFor(peak),
		Horizon:                  horizon,
		HorizonDays:              horizonDays,
	}, nil
}

// PathAttributions decomposes a prediction into per-feature
// contributions via the decision paths of the loaded forest.
func (c *Classifier) PathAttributions(vec *models.FeatureVector, horizon models.Horizon) (map[string]float64, error) {
	model := c.active(horizon.Days())
	if model == nil {
		return nil, fmt.Errorf("%w: horizon %s", ErrModelNotLoaded, horizon)
	}

	row := vec.Align(model.Columns)
	_, contributions := model.Forest.PathContributions(row)

	out := make(map[string]float64, len(model.Columns))
	for i, col := range model.Columns {
		out[col] = contributions[i]
	}
	return out, nil
}

// Importances returns the loaded forest's normalized impurity-gain
// feature importances.
func (c *Classifier) Importances(horizon models.Horizon) (map[string]float64, error) {
	model := c.active(horizon.Days())
	if model == nil {
		return nil, fmt.Errorf("%w: horizon %s", ErrModelNotLoaded, horizon)
	}

	out := make(map[string]float64, len(model.Columns))
	for i, col := range model.Columns {
		out[col] = model.Forest.Importances[i]
	}
	return out, nil
}

func (c *Classifier) active(horizonDays int) *trainedModel {
	ptr, ok := c.byHorizon[horizonDays]
	if !ok {
		return nil
	}
	return ptr.Load()
}

func (c *Classifier) swap(horizonDays int, model *trainedModel) {
	ptr, ok := c.byHorizon[horizonDays]
	if !ok {
		ptr = &atomic.Pointer[trainedModel]{}
		c.byHorizon[horizonDays] = ptr
	}
	ptr.Store(model)
}

// EstimateDaysUntil derives the projected days until shortage. With a
// rising utilization trend the current level is extrapolated linearly
// to the threshold, clamped to [0, horizonDays]; otherwise the estimate
// degrades to horizonDays scaled by (1 - probability), pushing unlikely
// shortages toward the horizon edge. Fractional days truncate.
func EstimateDaysUntil(currentUtilization, trend, probability float64, horizonDays int) int {
	if trend > 0 {
		days := (shortagePercent - currentUtilization) / trend
		if days < 0 {
			days = 0
		}
		if days > float64(horizonDays) {
			days = float64(horizonDays)
		}
		return int(days)
	}

	return int(float64(horizonDays) * (1 - probability))
}

// PeakUtilization projects utilization at the estimated shortage date.
func PeakUtilization(currentUtilization, trend float64, daysUntil int) float64 {
	return currentUtilization + trend*float64(daysUntil)
}

// SeverityFor maps projected peak utilization (percent) to a severity
// band based on how far past the shortage threshold it lands.
func SeverityFor(peakUtilization float64) models.Severity {
	shortageAmount := math.Max(0, peakUtilization-shortagePercent)
	switch {
	case shortageAmount < 10:
		return models.SeverityLow
	case shortageAmount < 20:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}
