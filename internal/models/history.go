package models

import (
	"time"
)

// Enrollment is one student signing up for tutoring in a subject.
type Enrollment struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	Subject         string    `json:"subject"`
	StartDate       time.Time `json:"start_date"`
	EngagementScore float64   `json:"engagement_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// Tutor is a capacity provider. Subjects is the set of subjects the
// tutor can teach; WeeklyCapacityHours is their available hours per week.
type Tutor struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Subjects            []string  `json:"subjects"`
	WeeklyCapacityHours float64   `json:"weekly_capacity_hours"`
	UtilizationRate     float64   `json:"utilization_rate"`
	CreatedAt           time.Time `json:"created_at"`
}

// Session is a booked tutoring session.
type Session struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	TutorID         string    `json:"tutor_id"`
	Subject         string    `json:"subject"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// WindowStats aggregates activity over one trailing window ending at a
// reference date.
type WindowStats struct {
	Count      int     `json:"count"`
	TotalHours float64 `json:"total_hours"`
}

// TutorStats aggregates the tutor pool teaching one subject.
type TutorStats struct {
	TutorCount     int     `json:"tutor_count"`
	CapacityHours  float64 `json:"capacity_hours"`
	AvgUtilization float64 `json:"avg_utilization"`
}
