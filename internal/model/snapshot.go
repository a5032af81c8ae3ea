// Copyright 2025 James Ross
package model

import "time"

// RideStatus is the upstream-reported operating state of a ride. Modeled as
// a tagged string enum rather than a free-form string per the ingest
// boundary design note (§9).
type RideStatus string

const (
	StatusOperating     RideStatus = "OPERATING"
	StatusDown          RideStatus = "DOWN"
	StatusClosed        RideStatus = "CLOSED"
	StatusRefurbishment RideStatus = "REFURBISHMENT"
	StatusUnknown       RideStatus = ""
)

// ShameScore is a fixed-point representation of a 0.0-10.0 shame score,
// stored as tenths (0-100) so the three computation sites in §4.5 compare
// for exact equality instead of drifting on floating point rounding.
type ShameScore int32

// NewShameScore rounds a raw float score to one decimal and clamps to
// [0, 10].
func NewShameScore(raw float64) ShameScore {
	if raw < 0 {
		raw = 0
	}
	if raw > 10 {
		raw = 10
	}
	tenths := int32(raw*10 + 0.5)
	return ShameScore(tenths)
}

// Float64 returns the score as a 0.0-10.0 float with one decimal of
// precision.
func (s ShameScore) Float64() float64 {
	return float64(s) / 10
}

// RideStatusSnapshot is one row per (ride, recorded_at).
type RideStatusSnapshot struct {
	RideID          int64      `json:"ride_id" db:"ride_id"`
	RecordedAt      time.Time  `json:"recorded_at" db:"recorded_at"`
	Status          RideStatus `json:"status" db:"status"`
	WaitTime        *int       `json:"wait_time" db:"wait_time"`
	IsOpenUpstream  *bool      `json:"is_open_upstream" db:"is_open_upstream"`
	ComputedIsOpen  bool       `json:"computed_is_open" db:"computed_is_open"`
	LastUpdatedAPI  time.Time  `json:"last_updated_api" db:"last_updated_api"`
	ParkAppearsOpen bool       `json:"park_appears_open" db:"park_appears_open"`
}

// ComputeIsOpen implements the §3 invariant: computed_is_open is TRUE iff
// status=OPERATING OR (status is NULL/unknown AND upstream reported a
// positive wait_time).
func ComputeIsOpen(status RideStatus, waitTime *int) bool {
	if status == StatusOperating {
		return true
	}
	if status == StatusUnknown && waitTime != nil && *waitTime > 0 {
		return true
	}
	return false
}

// ParkActivitySnapshot is one row per (park, recorded_at).
type ParkActivitySnapshot struct {
	ParkID            int64      `json:"park_id" db:"park_id"`
	RecordedAt        time.Time  `json:"recorded_at" db:"recorded_at"`
	TotalRidesTracked int        `json:"total_rides_tracked" db:"total_rides_tracked"`
	RidesOpen         int        `json:"rides_open" db:"rides_open"`
	RidesClosed       int        `json:"rides_closed" db:"rides_closed"`
	AvgWaitTime       float64    `json:"avg_wait_time" db:"avg_wait_time"`
	MaxWaitTime       int        `json:"max_wait_time" db:"max_wait_time"`
	ParkAppearsOpen   bool       `json:"park_appears_open" db:"park_appears_open"`
	ShameScore        ShameScore `json:"shame_score" db:"shame_score"`
}

// AppearsOpen implements the §4.1 park-open disjunction: the schedule says
// the park is open right now, or at least one ride reports computed_is_open.
// The fallback heuristic (§6) additionally treats rides_open > 0 as open
// when the schedule-derived flag is false, which callers apply via
// EffectiveOpen below once the snapshot has been persisted.
func AppearsOpen(scheduleCoversInstant bool, anyRideOpen bool) bool {
	return scheduleCoversInstant || anyRideOpen
}

// EffectiveOpen applies the §6 fallback heuristic to a stored snapshot: a
// snapshot participates as "open" if park_appears_open is true, or if live
// activity shows rides_open > 0 even though the schedule-derived flag came
// back false (e.g. a missing or stale schedule).
func (s ParkActivitySnapshot) EffectiveOpen() bool {
	return s.ParkAppearsOpen || s.RidesOpen > 0
}

// OperatingSession is one row per (park, local_operating_date).
type OperatingSession struct {
	ParkID          int64     `json:"park_id" db:"park_id"`
	LocalDate       string    `json:"local_date" db:"local_date"` // YYYY-MM-DD in park-local time
	FirstOpenUTC    time.Time `json:"first_open_utc" db:"first_open_utc"`
	LastOpenUTC     time.Time `json:"last_open_utc" db:"last_open_utc"`
	OperatingMinutes int      `json:"operating_minutes" db:"operating_minutes"`
}
