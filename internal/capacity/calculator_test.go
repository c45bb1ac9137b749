package capacity

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/nerdboard/nerdboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeHistory struct {
	subjects      []string
	capacityHours float64
	bookedByWeeks map[int]float64
	statsErr      error
}

func (f fakeHistory) Subjects(context.Context) ([]string, error) {
	return f.subjects, nil
}

func (f fakeHistory) TutorStats(context.Context, string) (models.TutorStats, error) {
	if f.statsErr != nil {
		return models.TutorStats{}, f.statsErr
	}
	return models.TutorStats{TutorCount: 15, CapacityHours: f.capacityHours}, nil
}

func (f fakeHistory) BookedHours(_ context.Context, _ string, from, to time.Time) (float64, error) {
	weeks := int(to.Sub(from).Hours() / 24 / 7)
	return f.bookedByWeeks[weeks], nil
}

type memorySnapshots struct {
	inserted []models.CapacitySnapshot
	deleted  int64
	cutoff   time.Time
}

func (m *memorySnapshots) Insert(_ context.Context, snap *models.CapacitySnapshot) error {
	snap.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *snap)
	return nil
}

func (m *memorySnapshots) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.deleted, nil
}

func TestCalculateWarningBand(t *testing.T) {
	// 600 weekly capacity hours with 540 booked is 90% utilization.
	history := fakeHistory{
		capacityHours: 600,
		bookedByWeeks: map[int]float64{1: 540},
	}
	calc := NewCalculator(history, nil, nil, testLogger())

	snap, err := calc.Calculate(context.Background(), "Physics", models.WindowCurrentWeek)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if snap.TotalHours != 600 {
		t.Errorf("total hours = %v, want 600", snap.TotalHours)
	}
	if snap.BookedHours != 540 {
		t.Errorf("booked hours = %v, want 540", snap.BookedHours)
	}
	if math.Abs(snap.UtilizationRate-0.9) > 1e-9 {
		t.Errorf("utilization = %v, want 0.9", snap.UtilizationRate)
	}
	if snap.Status != models.CapacityWarning {
		t.Errorf("status = %s, want warning", snap.Status)
	}
}

func TestCalculateScalesCapacityByWindowWeeks(t *testing.T) {
	history := fakeHistory{
		capacityHours: 100,
		bookedByWeeks: map[int]float64{4: 200},
	}
	calc := NewCalculator(history, nil, nil, testLogger())

	snap, err := calc.Calculate(context.Background(), "Math", models.WindowNext4Weeks)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if snap.TotalHours != 400 {
		t.Errorf("total hours = %v, want 400 (4 weeks x 100)", snap.TotalHours)
	}
	if math.Abs(snap.UtilizationRate-0.5) > 1e-9 {
		t.Errorf("utilization = %v, want 0.5", snap.UtilizationRate)
	}
	if snap.Status != models.CapacityNormal {
		t.Errorf("status = %s, want normal", snap.Status)
	}
}

func TestCalculateZeroCapacity(t *testing.T) {
	history := fakeHistory{capacityHours: 0, bookedByWeeks: map[int]float64{1: 0}}
	calc := NewCalculator(history, nil, nil, testLogger())

	snap, err := calc.Calculate(context.Background(), "Latin", models.WindowCurrentWeek)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if snap.UtilizationRate != 0 {
		t.Errorf("utilization = %v, want 0 with no capacity", snap.UtilizationRate)
	}
	if snap.Status != models.CapacityNormal {
		t.Errorf("status = %s, want normal", snap.Status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		rate float64
		want models.CapacityStatus
	}{
		{0.5, models.CapacityNormal},
		{0.849, models.CapacityNormal},
		{0.85, models.CapacityWarning},
		{0.949, models.CapacityWarning},
		{0.95, models.CapacityCritical},
		{1.2, models.CapacityCritical},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.rate); got != tt.want {
			t.Errorf("StatusFor(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	// Wednesday 2026-01-14; the containing week starts Monday 2026-01-12.
	now := time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC)
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		window    models.TimeWindow
		wantStart time.Time
		wantWeeks int
	}{
		{models.WindowCurrentWeek, monday, 1},
		{models.WindowNext2Weeks, monday.AddDate(0, 0, 7), 2},
		{models.WindowNext4Weeks, monday.AddDate(0, 0, 7), 4},
		{models.WindowNext8Weeks, monday.AddDate(0, 0, 7), 8},
	}

	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			start, weeks := WindowBounds(tt.window, now)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if weeks != tt.wantWeeks {
				t.Errorf("weeks = %d, want %d", weeks, tt.wantWeeks)
			}
		})
	}
}

func TestCalculateAllPersistsAndPurges(t *testing.T) {
	history := fakeHistory{
		subjects:      []string{"Math", "Physics"},
		capacityHours: 100,
		bookedByWeeks: map[int]float64{1: 96, 2: 100, 4: 150, 8: 200},
	}
	store := &memorySnapshots{deleted: 3}
	calc := NewCalculator(history, store, nil, testLogger())

	snapshots, err := calc.CalculateAll(context.Background())
	if err != nil {
		t.Fatalf("CalculateAll failed: %v", err)
	}

	wantCount := len(history.subjects) * len(models.AllTimeWindows)
	if len(snapshots) != wantCount {
		t.Errorf("got %d snapshots, want %d", len(snapshots), wantCount)
	}
	if len(store.inserted) != wantCount {
		t.Errorf("persisted %d snapshots, want %d", len(store.inserted), wantCount)
	}

	// Current week at 96% should land in the critical band.
	if store.inserted[0].Status != models.CapacityCritical {
		t.Errorf("current week status = %s, want critical", store.inserted[0].Status)
	}

	if store.cutoff.IsZero() {
		t.Error("expected retention purge to run")
	}
	if age := time.Since(store.cutoff); age < 89*24*time.Hour || age > 91*24*time.Hour {
		t.Errorf("purge cutoff %v not near 90 days", age)
	}
}

func TestCalculateAllSkipsFailedSubjects(t *testing.T) {
	history := fakeHistory{
		subjects: []string{"Math"},
		statsErr: errors.New("db down"),
	}
	store := &memorySnapshots{}
	calc := NewCalculator(history, store, nil, testLogger())

	snapshots, err := calc.CalculateAll(context.Background())
	if err != nil {
		t.Fatalf("CalculateAll failed: %v", err)
	}
	if len(snapshots) != 0 || len(store.inserted) != 0 {
		t.Error("failed subject should produce no snapshots")
	}
}
