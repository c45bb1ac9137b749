package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nerdboard/nerdboard/internal/models"
)

// HistoryRepository reads and writes the operational history tables:
// enrollments, tutors, and sessions. It is the data source for feature
// extraction, capacity calculation, and training label construction.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Subjects returns every subject with at least one enrollment or one
// tutor able to teach it, sorted alphabetically.
func (r *HistoryRepository) Subjects(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT subject FROM (
			SELECT subject FROM enrollments
			UNION
			SELECT unnest(subjects) AS subject FROM tutors
		) s
		ORDER BY subject
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subjects: %w", err)
	}

	return subjects, nil
}

// EnrollmentCount counts enrollments for a subject whose start date
// falls in (from, to].
func (r *HistoryRepository) EnrollmentCount(ctx context.Context, subject string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments
		WHERE subject = $1 AND start_date > $2 AND start_date <= $3
	`, subject, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}

// SessionStats aggregates session count and hours for a subject over
// (from, to].
func (r *HistoryRepository) SessionStats(ctx context.Context, subject string, from, to time.Time) (models.WindowStats, error) {
	var stats models.WindowStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0) / 60.0
		FROM sessions
		WHERE subject = $1 AND scheduled_time > $2 AND scheduled_time <= $3
	`, subject, from, to).Scan(&stats.Count, &stats.TotalHours)
	if err != nil {
		return models.WindowStats{}, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	return stats, nil
}

// TutorStats aggregates the tutor pool currently able to teach a subject.
func (r *HistoryRepository) TutorStats(ctx context.Context, subject string) (models.TutorStats, error) {
	var stats models.TutorStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(weekly_capacity_hours), 0), COALESCE(AVG(utilization_rate), 0)
		FROM tutors
		WHERE $1 = ANY(subjects)
	`, subject).Scan(&stats.TutorCount, &stats.CapacityHours, &stats.AvgUtilization)
	if err != nil {
		return models.TutorStats{}, fmt.Errorf("failed to aggregate tutors: %w", err)
	}
	return stats, nil
}

// BookedHours sums session hours for a subject over [from, to).
func (r *HistoryRepository) BookedHours(ctx context.Context, subject string, from, to time.Time) (float64, error) {
	var hours float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(duration_minutes), 0) / 60.0
		FROM sessions
		WHERE subject = $1 AND scheduled_time >= $2 AND scheduled_time < $3
	`, subject, from, to).Scan(&hours)
	if err != nil {
		return 0, fmt.Errorf("failed to sum booked hours: %w", err)
	}
	return hours, nil
}

// WeeklyUtilizations returns utilization for the given number of
// Monday-aligned weeks counting back from the week containing refDate.
// Index 0 is the week of refDate, index 1 the week before, and so on.
// Utilization is booked session hours divided by the subject's weekly
// tutor capacity; weeks with zero capacity report 0.
func (r *HistoryRepository) WeeklyUtilizations(ctx context.Context, subject string, refDate time.Time, weeks int) ([]float64, error) {
	stats, err := r.TutorStats(ctx, subject)
	if err != nil {
		return nil, err
	}

	utilizations := make([]float64, weeks)
	if stats.CapacityHours <= 0 {
		return utilizations, nil
	}

	currentWeek := WeekStart(refDate)
	for i := 0; i < weeks; i++ {
		weekStart := currentWeek.AddDate(0, 0, -7*i)
		weekEnd := weekStart.AddDate(0, 0, 7)

		booked, err := r.BookedHours(ctx, subject, weekStart, weekEnd)
		if err != nil {
			return nil, err
		}
		utilizations[i] = booked / stats.CapacityHours
	}

	return utilizations, nil
}

// MaxWeeklyUtilization returns the highest Monday-aligned weekly
// utilization for a subject over [from, to]. Used to decide whether a
// shortage materialized inside a label window.
func (r *HistoryRepository) MaxWeeklyUtilization(ctx context.Context, subject string, from, to time.Time) (float64, error) {
	stats, err := r.TutorStats(ctx, subject)
	if err != nil {
		return 0, err
	}
	if stats.CapacityHours <= 0 {
		return 0, nil
	}

	max := 0.0
	for weekStart := WeekStart(from); weekStart.Before(to); weekStart = weekStart.AddDate(0, 0, 7) {
		weekEnd := weekStart.AddDate(0, 0, 7)
		booked, err := r.BookedHours(ctx, subject, weekStart, weekEnd)
		if err != nil {
			return 0, err
		}
		if u := booked / stats.CapacityHours; u > max {
			max = u
		}
	}

	return max, nil
}

// DailyRowCounts returns per-day row counts for a table over the last
// `days` days, oldest first. Feeds anomaly detection. The table name is
// restricted to the known history tables.
func (r *HistoryRepository) DailyRowCounts(ctx context.Context, table string, days int) ([]float64, error) {
	var dateColumn string
	switch table {
	case "enrollments":
		dateColumn = "start_date"
	case "sessions":
		dateColumn = "scheduled_time"
	case "tutors":
		dateColumn = "created_at"
	default:
		return nil, fmt.Errorf("unsupported table %q", table)
	}

	query := fmt.Sprintf(`
		SELECT DATE(%s) AS day, COUNT(*)
		FROM %s
		WHERE %s >= NOW() - ($1 || ' days')::interval
		GROUP BY day
		ORDER BY day ASC
	`, dateColumn, table, dateColumn)

	rows, err := r.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily rows for %s: %w", table, err)
	}
	defer rows.Close()

	var counts []float64
	for rows.Next() {
		var (
			day   time.Time
			count float64
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily counts: %w", err)
	}

	return counts, nil
}

// CountRows returns the total row count of a history table, with the
// same table allowlist as DailyRowCounts.
func (r *HistoryRepository) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "enrollments", "sessions", "tutors":
	default:
		return 0, fmt.Errorf("unsupported table %q", table)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// CreateEnrollment inserts an enrollment, assigning an ID when empty.
func (r *HistoryRepository) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, student_id, subject, start_date, engagement_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.StudentID, e.Subject, e.StartDate, e.EngagementScore, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// CreateTutor inserts a tutor, assigning an ID when empty.
func (r *HistoryRepository) CreateTutor(ctx context.Context, t *models.Tutor) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tutors (id, name, subjects, weekly_capacity_hours, utilization_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, pq.Array(t.Subjects), t.WeeklyCapacityHours, t.UtilizationRate, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tutor: %w", err)
	}
	return nil
}

// CreateSession inserts a session, assigning an ID when empty.
func (r *HistoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, student_id, tutor_id, subject, scheduled_time, duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.StudentID, s.TutorID, s.Subject, s.ScheduledTime, s.DurationMinutes, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListTutors returns every tutor teaching a subject.
func (r *HistoryRepository) ListTutors(ctx context.Context, subject string) ([]models.Tutor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subjects, weekly_capacity_hours, utilization_rate, created_at
		FROM tutors
		WHERE $1 = ANY(subjects)
		ORDER BY name
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to list tutors: %w", err)
	}
	defer rows.Close()

	var tutors []models.Tutor
	for rows.Next() {
		var t models.Tutor
		if err := rows.Scan(&t.ID, &t.Name, pq.Array(&t.Subjects), &t.WeeklyCapacityHours, &t.UtilizationRate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tutor: %w", err)
		}
		tutors = append(tutors, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tutors: %w", err)
	}

	return tutors, nil
}

// WeekStart returns the Monday 00:00 UTC boundary of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	// time.Weekday counts Sunday as 0; shift so Monday is the origin.
	offset := (weekday + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
