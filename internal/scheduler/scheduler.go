package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Hourly job schedules, staggered so the pipeline stages never contend
// for the database at the same minute.
const (
	capacitySchedule   = "0 * * * *"
	qualitySchedule    = "15 * * * *"
	predictionSchedule = "30 * * * *"
)

const jobTimeout = 10 * time.Minute

// CapacityRunner snapshots capacity utilization.
type CapacityRunner interface {
	CalculateAll(ctx context.Context) ([]models.CapacitySnapshot, error)
}

// QualityRunner validates the history tables and scans for volume
// anomalies.
type QualityRunner interface {
	ValidateAll(ctx context.Context) (*models.QualitySummary, error)
	DetectAnomalies(ctx context.Context) ([]models.Anomaly, error)
}

// PredictionRunner executes the full forecasting batch.
type PredictionRunner interface {
	RunAll(ctx context.Context) (*models.BatchSummary, error)
}

// Scheduler drives the recurring pipeline jobs. Each job carries a
// skip-if-running guard so a slow run is never stacked on top of
// itself.
type Scheduler struct {
	cron        *cron.Cron
	capacity    CapacityRunner
	quality     QualityRunner
	predictions PredictionRunner
	logger      *slog.Logger

	capacityRunning   atomic.Bool
	qualityRunning    atomic.Bool
	predictionRunning atomic.Bool
}

// New creates a scheduler with the standard hourly jobs registered.
func New(capacity CapacityRunner, quality QualityRunner, predictions PredictionRunner, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		capacity:    capacity,
		quality:     quality,
		predictions: predictions,
		logger:      logger,
	}

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"capacity", capacitySchedule, s.runCapacity},
		{"quality", qualitySchedule, s.runQuality},
		{"predictions", predictionSchedule, s.runPredictions},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.schedule, job.run); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
	}

	return s, nil
}

// Start begins executing jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		"capacity", capacitySchedule,
		"quality", qualitySchedule,
		"predictions", predictionSchedule)
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCapacity() {
	if !s.capacityRunning.CompareAndSwap(false, true) {
		s.logger.Warn("capacity job still running, skipping this tick")
		return
	}
	defer s.capacityRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	snapshots, err := s.capacity.CalculateAll(ctx)
	if err != nil {
		s.logger.Error("scheduled capacity run failed", "error", err)
		return
	}
	s.logger.Info("scheduled capacity run finished", "snapshots", len(snapshots))
}

func (s *Scheduler) runQuality() {
	if !s.qualityRunning.CompareAndSwap(false, true) {
		s.logger.Warn("quality job still running, skipping this tick")
		return
	}
	defer s.qualityRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary, err := s.quality.ValidateAll(ctx)
	if err != nil {
		s.logger.Error("scheduled quality run failed", "error", err)
		return
	}

	anomalies, err := s.quality.DetectAnomalies(ctx)
	if err != nil {
		s.logger.Error("scheduled anomaly scan failed", "error", err)
		return
	}

	s.logger.Info("scheduled quality run finished",
		"average_score", summary.AverageQualityScore,
		"anomalies", len(anomalies))
}

func (s *Scheduler) runPredictions() {
	if !s.predictionRunning.CompareAndSwap(false, true) {
		s.logger.Warn("prediction job still running, skipping this tick")
		return
	}
	defer s.predictionRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary, err := s.predictions.RunAll(ctx)
	if err != nil {
		s.logger.Error("scheduled prediction run failed", "error", err)
		return
	}
	s.logger.Info("scheduled prediction run finished",
		"created", summary.PredictionsCreated,
		"skipped", summary.PredictionsSkipped,
		"failures", summary.Failures)
}
