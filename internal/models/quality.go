package models

import (
	"time"
)

// QualityIssue records one validation rule violation.
type QualityIssue struct {
	Rule       string `json:"rule"`
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Violations int    `json:"violations"`
}

// QualityReport is the outcome of validating a single table.
type QualityReport struct {
	TableName      string         `json:"table_name"`
	QualityScore   float64        `json:"quality_score"`
	CriticalIssues int            `json:"critical_issues"`
	Warnings       int            `json:"warnings"`
	Issues         []QualityIssue `json:"issues"`
	ValidationTime time.Time      `json:"validation_time"`
}

// QualitySummary aggregates a validation pass over every table.
type QualitySummary struct {
	ValidationTime       time.Time       `json:"validation_time"`
	TablesValidated      int             `json:"tables_validated"`
	AverageQualityScore  float64         `json:"average_quality_score"`
	TablesBelowThreshold int             `json:"tables_below_threshold"`
	Reports              []QualityReport `json:"results"`
}

// Anomaly flags a metric that drifted outside its rolling statistical
// envelope.
type Anomaly struct {
	Table         string  `json:"table"`
	Metric        string  `json:"metric"`
	Value         float64 `json:"value"`
	ExpectedRange string  `json:"expected_range"`
	ZScore        float64 `json:"z_score"`
	Severity      string  `json:"severity"`
}
