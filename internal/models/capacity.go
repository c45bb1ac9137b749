package models

import (
	"time"
)

// TimeWindow identifies a Monday-aligned capacity reporting window.
type TimeWindow string

const (
	WindowCurrentWeek TimeWindow = "current_week"
	WindowNext2Weeks  TimeWindow = "next_2_weeks"
	WindowNext4Weeks  TimeWindow = "next_4_weeks"
	WindowNext8Weeks  TimeWindow = "next_8_weeks"
)

// AllTimeWindows lists every capacity window, nearest first.
var AllTimeWindows = []TimeWindow{WindowCurrentWeek, WindowNext2Weeks, WindowNext4Weeks, WindowNext8Weeks}

// CapacityStatus buckets a utilization rate.
type CapacityStatus string

const (
	CapacityNormal   CapacityStatus = "normal"
	CapacityWarning  CapacityStatus = "warning"
	CapacityCritical CapacityStatus = "critical"
)

// CapacitySnapshot is a point-in-time utilization measurement for one
// (subject, window) pair.
type CapacitySnapshot struct {
	ID              int64          `json:"id"`
	Subject         string         `json:"subject"`
	TimeWindow      TimeWindow     `json:"time_window"`
	TotalHours      float64        `json:"total_hours"`
	BookedHours     float64        `json:"booked_hours"`
	UtilizationRate float64        `json:"utilization_rate"`
	Status          CapacityStatus `json:"status"`
	SnapshotTime    time.Time      `json:"snapshot_time"`
}
