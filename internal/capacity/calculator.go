package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerdboard/nerdboard/internal/database"
	"github.com/nerdboard/nerdboard/internal/metrics"
	"github.com/nerdboard/nerdboard/internal/models"
)

// Utilization thresholds for status banding.
const (
	warningThreshold  = 0.85
	criticalThreshold = 0.95
)

// Snapshots older than this are purged during batch runs.
const retention = 90 * 24 * time.Hour

// HistorySource provides the pool and booking data behind a snapshot.
type HistorySource interface {
	Subjects(ctx context.Context) ([]string, error)
	TutorStats(ctx context.Context, subject string) (models.TutorStats, error)
	BookedHours(ctx context.Context, subject string, from, to time.Time) (float64, error)
}

// SnapshotStore persists capacity snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snap *models.CapacitySnapshot) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Calculator measures current and near-term tutor capacity utilization
// per subject across Monday-aligned reporting windows.
type Calculator struct {
	history   HistorySource
	store     SnapshotStore
	collector *metrics.PipelineCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewCalculator creates a capacity calculator. store and collector may
// be nil for read-only use.
func NewCalculator(history HistorySource, store SnapshotStore, collector *metrics.PipelineCollector, logger *slog.Logger) *Calculator {
	return &Calculator{
		history:   history,
		store:     store,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Calculate measures one (subject, window) pair without persisting.
func (c *Calculator) Calculate(ctx context.Context, subject string, window models.TimeWindow) (*models.CapacitySnapshot, error) {
	stats, err := c.history.TutorStats(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("tutor stats for %s: %w", subject, err)
	}

	start, weeks := WindowBounds(window, c.now())
	end := start.AddDate(0, 0, 7*weeks)

	booked, err := c.history.BookedHours(ctx, subject, start, end)
	if err != nil {
		return nil, fmt.Errorf("booked hours for %s: %w", subject, err)
	}

	totalHours := stats.CapacityHours * float64(weeks)
	rate := 0.0
	if totalHours > 0 {
		rate = booked / totalHours
	}

	return &models.CapacitySnapshot{
		Subject:         subject,
		TimeWindow:      window,
		TotalHours:      totalHours,
		BookedHours:     booked,
		UtilizationRate: rate,
		Status:          StatusFor(rate),
		SnapshotTime:    c.now(),
	}, nil
}

// CalculateAll snapshots every subject across all reporting windows,
// persists the results, and purges snapshots past retention. Per-pair
// failures are logged and skipped.
func (c *Calculator) CalculateAll(ctx context.Context) ([]models.CapacitySnapshot, error) {
	subjects, err := c.history.Subjects(ctx)
	if err != nil {
		return nil, err
	}

	var snapshots []models.CapacitySnapshot
	for _, subject := range subjects {
		for _, window := range models.AllTimeWindows {
			snap, err := c.Calculate(ctx, subject, window)
			if err != nil {
				c.logger.Error("capacity calculation failed",
					"subject", subject, "window", window, "error", err)
				continue
			}

			if c.store != nil {
				if err := c.store.Insert(ctx, snap); err != nil {
					c.logger.Error("failed to persist capacity snapshot",
						"subject", subject, "window", window, "error", err)
					continue
				}
				if c.collector != nil {
					c.collector.CapacitySnapshotWritten()
				}
			}

			snapshots = append(snapshots, *snap)
		}
	}

	if c.store != nil {
		deleted, err := c.store.DeleteOlderThan(ctx, c.now().Add(-retention))
		if err != nil {
			c.logger.Error("failed to purge old capacity snapshots", "error", err)
		} else if deleted > 0 {
			c.logger.Info("purged old capacity snapshots", "deleted", deleted)
		}
	}

	c.logger.Info("capacity run complete", "snapshots", len(snapshots))

	return snapshots, nil
}

// WindowBounds returns the Monday-aligned start and span in weeks of a
// reporting window relative to now. The current week covers the week
// containing now; the forward windows start the following Monday.
func WindowBounds(window models.TimeWindow, now time.Time) (time.Time, int) {
	weekStart := database.WeekStart(now)
	nextMonday := weekStart.AddDate(0, 0, 7)

	switch window {
	case models.WindowNext2Weeks:
		return nextMonday, 2
	case models.WindowNext4Weeks:
		return nextMonday, 4
	case models.WindowNext8Weeks:
		return nextMonday, 8
	default:
		return weekStart, 1
	}
}

// StatusFor buckets a utilization rate.
func StatusFor(rate float64) models.CapacityStatus {
	switch {
	case rate >= criticalThreshold:
		return models.CapacityCritical
	case rate >= warningThreshold:
		return models.CapacityWarning
	default:
		return models.CapacityNormal
	}
}
