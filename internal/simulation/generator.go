package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/nerdboard/nerdboard/internal/features"
	"github.com/nerdboard/nerdboard/internal/models"
)

// Subject demand profiles for synthetic history. BaseWeeklyEnrollments
// sets the average signup volume; Tutors and capacity shape supply so
// some subjects run hot and others stay comfortable.
type SubjectProfile struct {
	Name                  string
	BaseWeeklyEnrollments float64
	Tutors                int
	CapacityHoursPerTutor float64
	SessionsPerEnrollment float64
}

// DefaultProfiles covers a catalog with deliberately uneven
// supply/demand balance so trained models see both classes.
func DefaultProfiles() []SubjectProfile {
	return []SubjectProfile{
		{"Math", 40, 18, 20, 1.8},
		{"Physics", 25, 6, 15, 2.2},
		{"Chemistry", 20, 8, 18, 1.6},
		{"Biology", 15, 9, 20, 1.2},
		{"English", 30, 14, 20, 1.4},
		{"Computer Science", 22, 5, 12, 2.5},
	}
}

// HistoryWriter receives generated records.
type HistoryWriter interface {
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	CreateTutor(ctx context.Context, t *models.Tutor) error
	CreateSession(ctx context.Context, s *models.Session) error
}

// Generator produces deterministic synthetic operational history:
// tutors, seasonally shaped enrollments, and the sessions they book.
type Generator struct {
	writer   HistoryWriter
	profiles []SubjectProfile
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewGenerator creates a generator seeded for reproducible output.
func NewGenerator(writer HistoryWriter, profiles []SubjectProfile, seed int64, logger *slog.Logger) *Generator {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	return &Generator{
		writer:   writer,
		profiles: profiles,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger,
	}
}

// Generate writes `days` days of history ending at `end`. Enrollment
// volume follows the seasonal demand curve; each enrollment books a
// profile-dependent number of sessions with tutors of its subject.
func (g *Generator) Generate(ctx context.Context, end time.Time, days int) error {
	start := end.AddDate(0, 0, -days)

	total := 0
	for _, profile := range g.profiles {
		tutors, err := g.generateTutors(ctx, profile, start)
		if err != nil {
			return err
		}

		count, err := g.generateActivity(ctx, profile, tutors, start, end)
		if err != nil {
			return err
		}
		total += count

		g.logger.Info("seeded subject",
			"subject", profile.Name,
			"tutors", len(tutors),
			"enrollments", count)
	}

	g.logger.Info("history generation complete",
		"subjects", len(g.profiles),
		"days", days,
		"enrollments", total)

	return nil
}

func (g *Generator) generateTutors(ctx context.Context, profile SubjectProfile, createdAt time.Time) ([]models.Tutor, error) {
	tutors := make([]models.Tutor, 0, profile.Tutors)
	for i := 0; i < profile.Tutors; i++ {
		tutor := models.Tutor{
			Name:                fmt.Sprintf("%s Tutor %02d", profile.Name, i+1),
			Subjects:            []string{profile.Name},
			WeeklyCapacityHours: profile.CapacityHoursPerTutor * (0.8 + 0.4*g.rng.Float64()),
			UtilizationRate:     0.5 + 0.3*g.rng.Float64(),
			CreatedAt:           createdAt,
		}
		if err := g.writer.CreateTutor(ctx, &tutor); err != nil {
			return nil, fmt.Errorf("seed tutor for %s: %w", profile.Name, err)
		}
		tutors = append(tutors, tutor)
	}
	return tutors, nil
}

func (g *Generator) generateActivity(ctx context.Context, profile SubjectProfile, tutors []models.Tutor, start, end time.Time) (int, error) {
	enrollments := 0

	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		demand := profile.BaseWeeklyEnrollments / 7.0 * features.SeasonalMultiplier(day.Month())
		count := poissonish(g.rng, demand)

		for i := 0; i < count; i++ {
			enrollment := models.Enrollment{
				StudentID:       fmt.Sprintf("student-%06d", g.rng.Intn(1_000_000)),
				Subject:         profile.Name,
				StartDate:       day.Add(time.Duration(g.rng.Intn(24*60)) * time.Minute),
				EngagementScore: 40 + 60*g.rng.Float64(),
				CreatedAt:       day,
			}
			if err := g.writer.CreateEnrollment(ctx, &enrollment); err != nil {
				return enrollments, fmt.Errorf("seed enrollment for %s: %w", profile.Name, err)
			}
			enrollments++

			if err := g.generateSessions(ctx, profile, tutors, &enrollment, end); err != nil {
				return enrollments, err
			}
		}
	}

	return enrollments, nil
}

func (g *Generator) generateSessions(ctx context.Context, profile SubjectProfile, tutors []models.Tutor, enrollment *models.Enrollment, end time.Time) error {
	if len(tutors) == 0 {
		return nil
	}

	sessions := poissonish(g.rng, profile.SessionsPerEnrollment)
	for i := 0; i < sessions; i++ {
		scheduled := enrollment.StartDate.AddDate(0, 0, 1+g.rng.Intn(14))
		if !scheduled.Before(end) {
			continue
		}

		session := models.Session{
			StudentID:       enrollment.StudentID,
			TutorID:         tutors[g.rng.Intn(len(tutors))].ID,
			Subject:         profile.Name,
			ScheduledTime:   scheduled,
			DurationMinutes: 30 * (1 + g.rng.Intn(4)),
			CreatedAt:       enrollment.StartDate,
		}
		if err := g.writer.CreateSession(ctx, &session); err != nil {
			return fmt.Errorf("seed session for %s: %w", profile.Name, err)
		}
	}

	return nil
}

// poissonish draws a small non-negative count with the given mean,
// using rounded normal jitter rather than a true Poisson draw.
func poissonish(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	jitter := rng.NormFloat64() * math.Sqrt(mean)
	count := int(math.Round(mean + jitter))
	if count < 0 {
		return 0
	}
	return count
}
