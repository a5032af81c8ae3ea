// Copyright 2025 James Ross
package model

import "time"

// RideHourly is one row per (ride, hour_start_utc).
type RideHourly struct {
	RideID             int64      `json:"ride_id" db:"ride_id"`
	HourStartUTC       time.Time  `json:"hour_start_utc" db:"hour_start_utc"`
	SnapshotCount      int        `json:"snapshot_count" db:"snapshot_count"`
	OperatingSnapshots int        `json:"operating_snapshots" db:"operating_snapshots"`
	DownSnapshots      int        `json:"down_snapshots" db:"down_snapshots"`
	DowntimeHours      float64    `json:"downtime_hours" db:"downtime_hours"`
	UptimePercentage   float64    `json:"uptime_percentage" db:"uptime_percentage"`
	AvgWaitTime        float64    `json:"avg_wait_time" db:"avg_wait_time"`
	RideOperated       bool       `json:"ride_operated" db:"ride_operated"`
	MetricsVersion     string     `json:"metrics_version" db:"metrics_version"`
}

// ParkHourly is one row per (park, hour_start_utc).
type ParkHourly struct {
	ParkID                int64      `json:"park_id" db:"park_id"`
	HourStartUTC          time.Time  `json:"hour_start_utc" db:"hour_start_utc"`
	ShameScore            ShameScore `json:"shame_score" db:"shame_score"`
	TotalDowntimeHours    float64    `json:"total_downtime_hours" db:"total_downtime_hours"`
	WeightedDowntimeHours float64    `json:"weighted_downtime_hours" db:"weighted_downtime_hours"`
	EffectiveParkWeight   int        `json:"effective_park_weight" db:"effective_park_weight"`
	RidesOperating        int        `json:"rides_operating" db:"rides_operating"`
	RidesDown             int        `json:"rides_down" db:"rides_down"`
	ParkWasOpen           bool       `json:"park_was_open" db:"park_was_open"`
	SnapshotCount         int        `json:"snapshot_count" db:"snapshot_count"`
	MetricsVersion        string     `json:"metrics_version" db:"metrics_version"`
}

// RideDaily is one row per (ride, stat_date) in park-local time.
type RideDaily struct {
	RideID                  int64      `json:"ride_id" db:"ride_id"`
	StatDate                string     `json:"stat_date" db:"stat_date"` // YYYY-MM-DD local
	UptimeMinutes            int        `json:"uptime_minutes" db:"uptime_minutes"`
	DowntimeMinutes          int        `json:"downtime_minutes" db:"downtime_minutes"`
	OperatingHoursMinutes    int        `json:"operating_hours_minutes" db:"operating_hours_minutes"`
	UptimePercentage         float64    `json:"uptime_percentage" db:"uptime_percentage"`
	MinWaitTime              *int       `json:"min_wait_time" db:"min_wait_time"`
	AvgWaitTime              *float64   `json:"avg_wait_time" db:"avg_wait_time"`
	MaxWaitTime              *int       `json:"max_wait_time" db:"max_wait_time"`
	PeakWaitTime             *int       `json:"peak_wait_time" db:"peak_wait_time"`
	StatusChanges            int        `json:"status_changes" db:"status_changes"`
	LongestDowntimeMinutes   int        `json:"longest_downtime_minutes" db:"longest_downtime_minutes"`
	RideOperated             bool       `json:"ride_operated" db:"ride_operated"`
	MetricsVersion           string     `json:"metrics_version" db:"metrics_version"`
}

// ParkDaily is one row per (park, stat_date) in park-local time.
type ParkDaily struct {
	ParkID                 int64      `json:"park_id" db:"park_id"`
	StatDate               string     `json:"stat_date" db:"stat_date"`
	ShameScore             ShameScore `json:"shame_score" db:"shame_score"`
	TotalDowntimeHours     float64    `json:"total_downtime_hours" db:"total_downtime_hours"`
	WeightedDowntimeHours  float64    `json:"weighted_downtime_hours" db:"weighted_downtime_hours"`
	EffectiveParkWeight    int        `json:"effective_park_weight" db:"effective_park_weight"`
	RidesOperating         int        `json:"rides_operating" db:"rides_operating"`
	RidesDown              int        `json:"rides_down" db:"rides_down"`
	RidesWithDowntime      int        `json:"rides_with_downtime" db:"rides_with_downtime"`
	StatusChanges          int        `json:"status_changes" db:"status_changes"`
	LongestDowntimeMinutes int        `json:"longest_downtime_minutes" db:"longest_downtime_minutes"`
	MetricsVersion         string     `json:"metrics_version" db:"metrics_version"`
}

// PeriodKind distinguishes weekly from monthly rollups sharing one shape.
type PeriodKind string

const (
	PeriodWeekly  PeriodKind = "WEEKLY"
	PeriodMonthly PeriodKind = "MONTHLY"
)

// RidePeriodic is the weekly/monthly rollup for a ride (C6).
type RidePeriodic struct {
	RideID             int64      `json:"ride_id" db:"ride_id"`
	Kind               PeriodKind `json:"kind" db:"kind"`
	PeriodStart        string     `json:"period_start" db:"period_start"` // YYYY-MM-DD (Monday, or 1st of month)
	TotalDowntimeHours float64    `json:"total_downtime_hours" db:"total_downtime_hours"`
	UptimePercentage   float64    `json:"uptime_percentage" db:"uptime_percentage"`
	TrendVsPrevious    *float64   `json:"trend_vs_previous" db:"trend_vs_previous"`
	MetricsVersion     string     `json:"metrics_version" db:"metrics_version"`
}

// ParkPeriodic is the weekly/monthly rollup for a park (C6).
type ParkPeriodic struct {
	ParkID                int64      `json:"park_id" db:"park_id"`
	Kind                  PeriodKind `json:"kind" db:"kind"`
	PeriodStart           string     `json:"period_start" db:"period_start"`
	ShameScore            ShameScore `json:"shame_score" db:"shame_score"`
	TotalDowntimeHours    float64    `json:"total_downtime_hours" db:"total_downtime_hours"`
	WeightedDowntimeHours float64    `json:"weighted_downtime_hours" db:"weighted_downtime_hours"`
	TrendVsPrevious       *float64   `json:"trend_vs_previous" db:"trend_vs_previous"`
	MetricsVersion        string     `json:"metrics_version" db:"metrics_version"`
}

// AggregationJobType identifies which scheduled job wrote an AggregationLog
// row.
type AggregationJobType string

const (
	JobHourly  AggregationJobType = "hourly"
	JobDaily   AggregationJobType = "daily"
	JobWeekly  AggregationJobType = "weekly"
	JobMonthly AggregationJobType = "monthly"
)

// AggregationStatus is the lifecycle state of an AggregationLog row.
type AggregationStatus string

const (
	AggregationRunning AggregationStatus = "running"
	AggregationSuccess AggregationStatus = "success"
	AggregationFailed  AggregationStatus = "failed"
)

// AggregationLog is one row per aggregation job execution; it is both the
// forward-progress marker and the gate for snapshot retention (§4.2).
type AggregationLog struct {
	ID             int64              `json:"id" db:"id"`
	Type           AggregationJobType `json:"type" db:"type"`
	WindowEnd      time.Time          `json:"window_end" db:"window_end"`
	StartedAt      time.Time          `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at" db:"finished_at"`
	Status         AggregationStatus  `json:"status" db:"status"`
	ParksProcessed int                `json:"parks_processed" db:"parks_processed"`
	RidesProcessed int                `json:"rides_processed" db:"rides_processed"`
	Error          string             `json:"error" db:"error"`
}
