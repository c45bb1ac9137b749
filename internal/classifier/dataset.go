package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

// Dataset is a labeled training matrix over a fixed column schema.
type Dataset struct {
	Columns []string
	Rows    [][]float64
	Labels  []float64
}

// SnapshotSource lists historical feature vectors eligible for training.
type SnapshotSource interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]models.FeatureVector, error)
}

// OutcomeSource answers whether a shortage materialized after a
// snapshot was taken.
type OutcomeSource interface {
	MaxWeeklyUtilization(ctx context.Context, subject string, from, to time.Time) (float64, error)
}

// DatasetBuilder constructs forward-looking labeled datasets from
// persisted feature snapshots. For each snapshot, the label is 1 when
// any weekly utilization in the horizon window after the snapshot's
// reference date reached the shortage threshold. Only snapshots whose
// full outcome window has already closed are eligible, so no label
// depends on data that did not exist at feature time.
type DatasetBuilder struct {
	snapshots SnapshotSource
	outcomes  OutcomeSource
	threshold float64
	logger    *slog.Logger
}

// NewDatasetBuilder creates a dataset builder with the given shortage
// threshold (utilization fraction, e.g. 0.95).
func NewDatasetBuilder(snapshots SnapshotSource, outcomes OutcomeSource, threshold float64, logger *slog.Logger) *DatasetBuilder {
	return &DatasetBuilder{
		snapshots: snapshots,
		outcomes:  outcomes,
		threshold: threshold,
		logger:    logger,
	}
}

// Build assembles the labeled dataset for a horizon, as of now.
func (b *DatasetBuilder) Build(ctx context.Context, horizonDays int, now time.Time) (*Dataset, error) {
	cutoff := now.AddDate(0, 0, -horizonDays)
	vectors, err := b.snapshots.ListBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature snapshots: %w", err)
	}
	if len(vectors) == 0 {
		return &Dataset{}, nil
	}

	// The first snapshot fixes the column schema; later vectors are
	// aligned against it, padding missing names with 0.
	columns := make([]string, 0, len(vectors[0].Values))
	for name := range vectors[0].Values {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	ds := &Dataset{Columns: columns}
	positives := 0

	for i := range vectors {
		vec := &vectors[i]
		windowEnd := vec.ReferenceDate.AddDate(0, 0, horizonDays)

		peak, err := b.outcomes.MaxWeeklyUtilization(ctx, vec.Subject, vec.ReferenceDate, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to compute outcome for %s at %s: %w",
				vec.Subject, vec.ReferenceDate.Format("2006-01-02"), err)
		}

		label := 0.0
		if peak >= b.threshold {
			label = 1.0
			positives++
		}

		ds.Rows = append(ds.Rows, vec.Align(columns))
		ds.Labels = append(ds.Labels, label)
	}

	b.logger.Info("built training dataset",
		"horizon_days", horizonDays,
		"rows", len(ds.Rows),
		"positives", positives,
		"columns", len(columns))

	return ds, nil
}

// StratifiedSplit partitions a dataset into train and test sets,
// preserving the label ratio in both. The split is deterministic for a
// given seed.
func StratifiedSplit(ds *Dataset, testFraction float64, seed int64) (train, test *Dataset) {
	rng := rand.New(rand.NewSource(seed))

	var posIdx, negIdx []int
	for i, label := range ds.Labels {
		if label >= 0.5 {
			posIdx = append(posIdx, i)
		} else {
			negIdx = append(negIdx, i)
		}
	}
	rng.Shuffle(len(posIdx), func(i, j int) { posIdx[i], posIdx[j] = posIdx[j], posIdx[i] })
	rng.Shuffle(len(negIdx), func(i, j int) { negIdx[i], negIdx[j] = negIdx[j], negIdx[i] })

	train = &Dataset{Columns: ds.Columns}
	test = &Dataset{Columns: ds.Columns}

	appendSplit := func(indices []int) {
		testCount := int(math.Round(float64(len(indices)) * testFraction))
		for i, idx := range indices {
			if i < testCount {
				test.Rows = append(test.Rows, ds.Rows[idx])
				test.Labels = append(test.Labels, ds.Labels[idx])
			} else {
				train.Rows = append(train.Rows, ds.Rows[idx])
				train.Labels = append(train.Labels, ds.Labels[idx])
			}
		}
	}
	appendSplit(posIdx)
	appendSplit(negIdx)

	return train, test
}

// EvaluateBinary computes accuracy, precision, recall and F1 for
// probability predictions against binary labels, thresholding at 0.5.
// Metrics whose denominator is zero report 0 instead of failing.
func EvaluateBinary(probabilities, labels []float64) (accuracy, precision, recall, f1 float64) {
	if len(probabilities) == 0 || len(probabilities) != len(labels) {
		return 0, 0, 0, 0
	}

	var tp, tn, fp, fn float64
	for i, p := range probabilities {
		predicted := p >= 0.5
		actual := labels[i] >= 0.5
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		default:
			tn++
		}
	}

	accuracy = (tp + tn) / float64(len(labels))
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return accuracy, precision, recall, f1
}
