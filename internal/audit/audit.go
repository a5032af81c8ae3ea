// Copyright 2025 James Ross

// Package audit implements the verifier (C9): for a target local date, it
// recomputes every aggregate row directly from raw snapshots using the same
// logic as the hourly and daily aggregators, and reports any row that
// deviates from the stored value beyond the §4.8 tolerance table. It never
// writes anything back.
package audit

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/czei/themeparkhallofshame/internal/aggregate/daily"
	"github.com/czei/themeparkhallofshame/internal/aggregate/hourly"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
)

// Severity is the verifier's classification of a table's mismatch count.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Mismatch is one stored-vs-recomputed value outside tolerance.
type Mismatch struct {
	Key        string // e.g. "ride 42 @ 2026-06-20" or "park 1 @ 2026-06-20T14:00:00Z"
	Column     string
	Stored     float64
	Recomputed float64
	Tolerance  float64
}

// TableResult is the verifier's finding for one aggregate table.
type TableResult struct {
	Table      string
	Mismatches []Mismatch
	Missing    int // rows present in raw data but absent from the aggregate table
	Severity   Severity
}

// CoverageViolation is a (ride, hour) where a Disney/Universal ride reported
// status=DOWN with the park open, but the hourly aggregate does not reflect
// it (§4.8 check 1).
type CoverageViolation struct {
	RideID       int64
	ParkID       int64
	HourStartUTC time.Time
}

// IntervalCheck is the §4.8 check 2 result.
type IntervalCheck struct {
	MedianMinutes     float64
	ConfiguredMinutes float64
	WithinTolerance   bool
}

// Report is the full output of one VerifyDate call.
type Report struct {
	LocalDate             string
	RideDaily             TableResult
	ParkDaily             TableResult
	RideHourly            TableResult
	ParkHourly            TableResult
	DisneyUniversalGaps   []CoverageViolation
	Interval              IntervalCheck
}

// Verifier recomputes aggregates from raw snapshots and compares them
// against stored values.
type Verifier struct {
	store                   store.Store
	cfg                     config.Audit
	windows                 shame.Windows
	snapshotIntervalMinutes int
	locs                    *clock.LocationCache
	daily                   *daily.Aggregator
	hourly                  *hourly.Aggregator
}

// New returns a Verifier. metricsVersion is threaded through the internal
// aggregators purely so their recomputed rows carry the same stamp as the
// stored ones; the verifier never compares on that field.
func New(st store.Store, cfg config.Audit, windows shame.Windows, metricsVersion string, snapshotIntervalMinutes int) *Verifier {
	return &Verifier{
		store:                   st,
		cfg:                     cfg,
		windows:                 windows,
		snapshotIntervalMinutes: snapshotIntervalMinutes,
		locs:                    clock.NewLocationCache(),
		daily:                   daily.New(st, windows, metricsVersion, snapshotIntervalMinutes, nil),
		hourly:                  hourly.New(st, windows, metricsVersion, snapshotIntervalMinutes, nil),
	}
}

// VerifyDate recomputes and compares every aggregate row for localDate
// across all active parks.
func (v *Verifier) VerifyDate(ctx context.Context, localDate string) (Report, error) {
	parks, err := v.store.GetActiveParks(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{LocalDate: localDate}
	var allRecordedAt []time.Time

	for _, park := range parks {
		if err := v.verifyParkDay(ctx, park, localDate, &report); err != nil {
			return Report{}, err
		}

		loc, err := v.locs.Get(park.Timezone)
		if err != nil {
			return Report{}, err
		}
		dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
		if err != nil {
			return Report{}, err
		}

		if park.ParkTypeAware(v.windows.ExtraOperators) {
			if err := v.checkDisneyUniversalCoverage(ctx, park, dayStart, dayEnd, &report); err != nil {
				return Report{}, err
			}
		}

		snaps, err := v.store.ParkSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
		if err != nil {
			return Report{}, err
		}
		for _, s := range snaps {
			allRecordedAt = append(allRecordedAt, s.RecordedAt)
		}
	}

	report.RideDaily.Severity = classify(len(report.RideDaily.Mismatches), report.RideDaily.Missing, v.cfg.CriticalRideDailyMismatches, v.cfg.CriticalRideDailyMissing)
	report.ParkDaily.Severity = classify(len(report.ParkDaily.Mismatches), report.ParkDaily.Missing, v.cfg.CriticalParkDailyMismatches, v.cfg.CriticalParkDailyMissing)
	report.RideHourly.Severity = classify(len(report.RideHourly.Mismatches), report.RideHourly.Missing, v.cfg.CriticalRideHourlyMismatches, v.cfg.CriticalRideHourlyMissing)
	report.ParkHourly.Severity = classify(len(report.ParkHourly.Mismatches), report.ParkHourly.Missing, v.cfg.CriticalParkHourlyMismatches, v.cfg.CriticalParkHourlyMissing)
	report.RideDaily.Table = "ride_daily_stats"
	report.ParkDaily.Table = "park_daily_stats"
	report.RideHourly.Table = "ride_hourly_stats"
	report.ParkHourly.Table = "park_hourly_stats"

	report.Interval = v.checkIntervalConsistency(allRecordedAt)

	return report, nil
}

func (v *Verifier) verifyParkDay(ctx context.Context, park model.Park, localDate string, report *Report) error {
	rideRows, parkRow, _, err := v.daily.ComputeDay(ctx, park, localDate)
	if err != nil {
		return err
	}

	storedParkRow, found, err := v.store.ParkDailyOn(ctx, park.ID, localDate)
	if err != nil {
		return err
	}
	if !found {
		report.ParkDaily.Missing++
	} else {
		key := parkDayKey(park.ID, localDate)
		addMismatch(&report.ParkDaily, key, "total_downtime_hours", storedParkRow.TotalDowntimeHours, parkRow.TotalDowntimeHours, v.cfg.ParkDailyHoursTolerance)
		addMismatch(&report.ParkDaily, key, "rides_with_downtime", float64(storedParkRow.RidesWithDowntime), float64(parkRow.RidesWithDowntime), float64(v.cfg.ParkDailyRidesTolerance))
	}

	for _, row := range rideRows {
		storedRows, err := v.store.RideDailyRange(ctx, row.RideID, localDate, localDate)
		if err != nil {
			return err
		}
		if len(storedRows) == 0 {
			report.RideDaily.Missing++
			continue
		}
		stored := storedRows[0]
		key := rideDayKey(row.RideID, localDate)
		addMismatch(&report.RideDaily, key, "uptime_minutes", float64(stored.UptimeMinutes), float64(row.UptimeMinutes), float64(v.cfg.RideDailyMinutesTolerance))
		addMismatch(&report.RideDaily, key, "downtime_minutes", float64(stored.DowntimeMinutes), float64(row.DowntimeMinutes), float64(v.cfg.RideDailyMinutesTolerance))
		addMismatch(&report.RideDaily, key, "operating_hours_minutes", float64(stored.OperatingHoursMinutes), float64(row.OperatingHoursMinutes), float64(v.cfg.RideDailyMinutesTolerance))
	}

	loc, err := v.locs.Get(park.Timezone)
	if err != nil {
		return err
	}
	dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
	if err != nil {
		return err
	}

	for hourStart := dayStart; hourStart.Before(dayEnd); hourStart = hourStart.Add(time.Hour) {
		hourEnd := hourStart.Add(time.Hour)
		rideHourRows, parkHourRow, err := v.hourly.ComputeHour(ctx, park, hourStart, hourEnd)
		if err != nil {
			return err
		}

		storedParkHourRows, err := v.store.ParkHourlyRange(ctx, park.ID, hourStart, hourEnd)
		if err != nil {
			return err
		}
		if len(storedParkHourRows) == 0 {
			if parkHourRow.SnapshotCount > 0 {
				report.ParkHourly.Missing++
			}
		} else {
			stored := storedParkHourRows[0]
			key := parkHourKey(park.ID, hourStart)
			addMismatch(&report.ParkHourly, key, "shame_score", stored.ShameScore.Float64(), parkHourRow.ShameScore.Float64(), v.cfg.ParkHourlyShameTolerance)
			addMismatch(&report.ParkHourly, key, "total_downtime_hours", stored.TotalDowntimeHours, parkHourRow.TotalDowntimeHours, v.cfg.ParkHourlyHoursTolerance)
		}

		for _, row := range rideHourRows {
			storedRideHourRows, err := v.store.RideHourlyRange(ctx, row.RideID, hourStart, hourEnd)
			if err != nil {
				return err
			}
			if len(storedRideHourRows) == 0 {
				report.RideHourly.Missing++
				continue
			}
			stored := storedRideHourRows[0]
			key := rideHourKey(row.RideID, hourStart)
			addMismatch(&report.RideHourly, key, "downtime_hours", stored.DowntimeHours, row.DowntimeHours, v.cfg.RideHourlyHoursTolerance)
			addMismatch(&report.RideHourly, key, "uptime_percentage", stored.UptimePercentage, row.UptimePercentage, v.cfg.RideHourlyPercentTolerance)
		}
	}

	return nil
}

func (v *Verifier) checkDisneyUniversalCoverage(ctx context.Context, park model.Park, dayStart, dayEnd time.Time, report *Report) error {
	rideSnaps, err := v.store.RideSnapshotsForPark(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}

	for rideID, snaps := range rideSnaps {
		for _, s := range snaps {
			if s.Status != model.StatusDown || !s.ParkAppearsOpen {
				continue
			}
			hourStart := s.RecordedAt.Truncate(time.Hour)
			hourRows, err := v.store.RideHourlyRange(ctx, rideID, hourStart, hourStart.Add(time.Hour))
			if err != nil {
				return err
			}
			covered := false
			for _, r := range hourRows {
				if r.RideOperated && r.DowntimeHours > 0 {
					covered = true
					break
				}
			}
			if !covered {
				report.DisneyUniversalGaps = append(report.DisneyUniversalGaps, CoverageViolation{RideID: rideID, ParkID: park.ID, HourStartUTC: hourStart})
			}
		}
	}
	return nil
}

func (v *Verifier) checkIntervalConsistency(recordedAt []time.Time) IntervalCheck {
	configured := float64(v.snapshotIntervalMinutes)
	if len(recordedAt) < 2 {
		return IntervalCheck{ConfiguredMinutes: configured, WithinTolerance: true}
	}

	sort.Slice(recordedAt, func(i, j int) bool { return recordedAt[i].Before(recordedAt[j]) })
	distinct := recordedAt[:0:0]
	for i, t := range recordedAt {
		if i == 0 || !t.Equal(recordedAt[i-1]) {
			distinct = append(distinct, t)
		}
	}
	if len(distinct) < 2 {
		return IntervalCheck{ConfiguredMinutes: configured, WithinTolerance: true}
	}

	var gaps []float64
	for i := 1; i < len(distinct); i++ {
		gaps = append(gaps, distinct[i].Sub(distinct[i-1]).Minutes())
	}
	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}

	within := math.Abs(median-configured) <= configured*v.cfg.IntervalConsistencyTolerance
	return IntervalCheck{MedianMinutes: roundTo(median, 2), ConfiguredMinutes: configured, WithinTolerance: within}
}

func addMismatch(result *TableResult, key, column string, stored, recomputed, tolerance float64) {
	if math.Abs(stored-recomputed) <= tolerance {
		return
	}
	result.Mismatches = append(result.Mismatches, Mismatch{
		Key: key, Column: column, Stored: stored, Recomputed: recomputed, Tolerance: tolerance,
	})
}

func classify(mismatches, missing, critMismatch, critMissing int) Severity {
	if mismatches > critMismatch || missing > critMissing {
		return SeverityCritical
	}
	if mismatches > 0 || missing > 0 {
		return SeverityWarning
	}
	return SeverityOK
}

func rideDayKey(rideID int64, localDate string) string {
	return "ride " + strconv.FormatInt(rideID, 10) + " @ " + localDate
}

func parkDayKey(parkID int64, localDate string) string {
	return "park " + strconv.FormatInt(parkID, 10) + " @ " + localDate
}

func rideHourKey(rideID int64, hourStart time.Time) string {
	return "ride " + strconv.FormatInt(rideID, 10) + " @ " + hourStart.Format(time.RFC3339)
}

func parkHourKey(parkID int64, hourStart time.Time) string {
	return "park " + strconv.FormatInt(parkID, 10) + " @ " + hourStart.Format(time.RFC3339)
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}
