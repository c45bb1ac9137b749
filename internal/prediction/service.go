package prediction

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerdboard/nerdboard/internal/explain"
	"github.com/nerdboard/nerdboard/internal/metrics"
	"github.com/nerdboard/nerdboard/internal/models"
)

// defaultWorkers bounds concurrent subject/horizon pairs in a batch run.
const defaultWorkers = 4

// Severity multipliers applied to priority scores.
const (
	multiplierLow    = 0.5
	multiplierMedium = 0.75
	multiplierHigh   = 1.0
)

// FeatureExtractor computes the feature vector for a subject as of a
// reference date.
type FeatureExtractor interface {
	Extract(ctx context.Context, subject string, referenceDate time.Time) (*models.FeatureVector, error)
}

// ShortageModel is the trained classifier surface the pipeline needs.
type ShortageModel interface {
	Predict(vec *models.FeatureVector, horizon models.Horizon) (*models.PredictionCore, error)
	Train(ctx context.Context, horizonDays int, tune bool) (models.TrainingMetrics, error)
	Loaded(horizon models.Horizon) bool
}

// ConfidenceScorer produces the multi-factor confidence for a forecast.
type ConfidenceScorer interface {
	Score(ctx context.Context, subject string, probability float64, vec *models.FeatureVector) models.Confidence
}

// Explainer ranks per-feature contributions for a forecast.
type Explainer interface {
	Explain(vec *models.FeatureVector, horizon models.Horizon, topN int) []models.FeatureContribution
}

// Store persists predictions with their explanations under the
// single-active-per-slot policy. The boolean reports whether a new
// record was created; false means the candidate was suppressed as a
// duplicate of the active prediction.
type Store interface {
	CreateSuperseding(ctx context.Context, pred *models.Prediction, expl *models.Explanation) (bool, error)
	ExpirePastDue(ctx context.Context, now time.Time) (int64, error)
}

// SubjectSource enumerates the subjects present in the history tables.
type SubjectSource interface {
	Subjects(ctx context.Context) ([]string, error)
}

// Service runs the full forecasting pipeline for one subject/horizon
// pair or for the whole catalog: feature extraction, classification,
// confidence scoring, explanation, prioritization and persistence.
type Service struct {
	subjects  SubjectSource
	extractor FeatureExtractor
	model     ShortageModel
	scorer    ConfidenceScorer
	explainer Explainer
	store     Store
	collector *metrics.PipelineCollector
	logger    *slog.Logger

	workers int
	now     func() time.Time
}

// NewService wires the pipeline stages together. collector may be nil.
func NewService(subjects SubjectSource, extractor FeatureExtractor, model ShortageModel, scorer ConfidenceScorer, explainer Explainer, store Store, collector *metrics.PipelineCollector, logger *slog.Logger) *Service {
	return &Service{
		subjects:  subjects,
		extractor: extractor,
		model:     model,
		scorer:    scorer,
		explainer: explainer,
		store:     store,
		collector: collector,
		logger:    logger,
		workers:   defaultWorkers,
		now:       time.Now,
	}
}

// Run executes the pipeline for one subject and horizon. The returned
// boolean reports whether a prediction was persisted; false with a nil
// error means the forecast duplicated the active prediction and was
// suppressed.
func (s *Service) Run(ctx context.Context, subject string, horizon models.Horizon) (*models.Prediction, bool, error) {
	vec, err := s.extractor.Extract(ctx, subject, s.now())
	if err != nil {
		return nil, false, err
	}

	core, err := s.model.Predict(vec, horizon)
	if err != nil {
		return nil, false, err
	}

	conf := s.scorer.Score(ctx, subject, core.ShortageProbability, vec)
	topFeatures := s.explainer.Explain(vec, horizon, 0)

	now := s.now()
	pred := &models.Prediction{
		ID:                       uuid.NewString(),
		Subject:                  subject,
		ShortageProbability:      core.ShortageProbability,
		PredictedShortageDate:    core.PredictedShortageDate,
		DaysUntilShortage:        core.DaysUntilShortage,
		PredictedPeakUtilization: core.PredictedPeakUtilization,
		Severity:                 core.Severity,
		Horizon:                  core.Horizon,
		HorizonDays:              core.HorizonDays,
		ConfidenceScore:          conf.Score,
		ConfidenceLevel:          conf.Level,
		ConfidenceBreakdown:      conf.Breakdown,
		PriorityScore:            PriorityScore(core.DaysUntilShortage, conf.Score, core.Severity),
		IsCritical:               IsCritical(core.DaysUntilShortage, conf.Score, core.Severity),
		Status:                   models.PredictionStatusActive,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	expl := &models.Explanation{
		PredictionID: pred.ID,
		TopFeatures:  topFeatures,
		Narrative:    explain.Generate(subject, core, conf, topFeatures),
		CreatedAt:    now,
	}

	created, err := s.store.CreateSuperseding(ctx, pred, expl)
	if err != nil {
		return nil, false, err
	}

	if s.collector != nil {
		if created {
			s.collector.PredictionCreated(string(horizon))
		} else {
			s.collector.PredictionSkipped(string(horizon))
		}
	}

	s.logger.Info("prediction run complete",
		"subject", subject,
		"horizon", horizon,
		"probability", core.ShortageProbability,
		"severity", core.Severity,
		"priority", pred.PriorityScore,
		"created", created)

	return pred, created, nil
}

// RunAll executes the pipeline for every subject across all horizons
// with loaded models, using a bounded worker pool. Individual pair
// failures are counted and logged without aborting the batch.
func (s *Service) RunAll(ctx context.Context) (*models.BatchSummary, error) {
	start := s.now()

	expired, err := s.store.ExpirePastDue(ctx, start)
	if err != nil {
		s.logger.Error("failed to expire past-due predictions", "error", err)
	} else if expired > 0 {
		s.logger.Info("expired past-due predictions", "count", expired)
	}

	subjects, err := s.subjects.Subjects(ctx)
	if err != nil {
		return nil, err
	}

	var horizons []models.Horizon
	for _, h := range models.AllHorizons {
		if s.model.Loaded(h) {
			horizons = append(horizons, h)
		} else {
			s.logger.Warn("skipping horizon without loaded model", "horizon", h)
		}
	}

	summary := &models.BatchSummary{
		Timestamp:            start,
		SubjectsAnalyzed:     len(subjects),
		Horizons:             horizons,
		PredictionsBySubject: make(map[string]int, len(subjects)),
	}

	type pair struct {
		subject string
		horizon models.Horizon
	}

	jobs := make(chan pair)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				_, created, err := s.Run(ctx, p.subject, p.horizon)

				mu.Lock()
				switch {
				case err != nil:
					summary.Failures++
				case created:
					summary.PredictionsCreated++
					summary.PredictionsBySubject[p.subject]++
				default:
					summary.PredictionsSkipped++
				}
				mu.Unlock()

				if err != nil {
					if s.collector != nil {
						s.collector.PredictionFailed()
					}
					s.logger.Error("prediction failed",
						"subject", p.subject, "horizon", p.horizon, "error", err)
				}
			}
		}()
	}

	for _, subject := range subjects {
		for _, horizon := range horizons {
			jobs <- pair{subject: subject, horizon: horizon}
		}
	}
	close(jobs)
	wg.Wait()

	summary.DurationSeconds = s.now().Sub(start).Seconds()

	if s.collector != nil {
		s.collector.ObserveBatch(time.Duration(summary.DurationSeconds * float64(time.Second)))
	}

	s.logger.Info("batch run complete",
		"subjects", summary.SubjectsAnalyzed,
		"created", summary.PredictionsCreated,
		"skipped", summary.PredictionsSkipped,
		"failures", summary.Failures,
		"duration_seconds", summary.DurationSeconds)

	return summary, nil
}

// TrainModel trains the classifier for one horizon and records the
// outcome.
func (s *Service) TrainModel(ctx context.Context, horizonDays int, tune bool) (models.TrainingMetrics, error) {
	m, err := s.model.Train(ctx, horizonDays, tune)
	if err != nil {
		if s.collector != nil {
			s.collector.TrainingFailed()
		}
		return m, err
	}

	if s.collector != nil {
		for h, days := range models.HorizonDays {
			if days == horizonDays {
				s.collector.TrainingCompleted(string(h), m.Accuracy)
			}
		}
	}
	return m, nil
}

// PriorityScore combines urgency, confidence and severity into a 0-100
// score. Urgency saturates for shortages within a week.
func PriorityScore(daysUntil int, confidence float64, severity models.Severity) float64 {
	urgency := math.Min(7.0/math.Max(float64(daysUntil), 1), 1.0)
	return urgency * (confidence / 100) * severityMultiplier(severity) * 100
}

// IsCritical flags predictions that demand immediate attention: a
// high-severity shortage projected inside two weeks with confidence
// above 70.
func IsCritical(daysUntil int, confidence float64, severity models.Severity) bool {
	return daysUntil < 14 && confidence > 70 && severity == models.SeverityHigh
}

func severityMultiplier(severity models.Severity) float64 {
	switch severity {
	case models.SeverityHigh:
		return multiplierHigh
	case models.SeverityMedium:
		return multiplierMedium
	default:
		return multiplierLow
	}
}
