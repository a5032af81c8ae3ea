// Copyright 2025 James Ross

// Package anomaly implements the four §4.9 detectors over daily aggregates:
// park shame-score z-score, ride downtime z-score, day-over-day sudden
// change, and data-quality gaps. Detector output is advisory; it never
// blocks publication of the underlying data.
package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/store"
)

// Severity is the detector's confidence that an observation is anomalous.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is one detector firing on one entity for one local date.
type Finding struct {
	Detector string // "park_shame_zscore", "ride_downtime_zscore", "sudden_change", "data_quality"
	ParkID   int64
	RideID   int64 // zero for park-level findings
	LocalDate string
	Severity  Severity
	Detail    string
	Value     float64
}

// Detector runs the anomaly sweep over a Store.
type Detector struct {
	store store.Store
	cfg   config.Anomaly
	locs  *clock.LocationCache
}

// New returns a Detector.
func New(st store.Store, cfg config.Anomaly) *Detector {
	return &Detector{store: st, cfg: cfg, locs: clock.NewLocationCache()}
}

// RunDay evaluates all four detectors for every active park on localDate.
func (d *Detector) RunDay(ctx context.Context, localDate string) ([]Finding, error) {
	parks, err := d.store.GetActiveParks(ctx)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, park := range parks {
		loc, err := d.locs.Get(park.Timezone)
		if err != nil {
			return nil, err
		}
		baselineStart, err := offsetLocalDate(localDate, loc, -d.cfg.ZScoreBaselineDays)
		if err != nil {
			return nil, err
		}
		baselineEnd, err := offsetLocalDate(localDate, loc, -1)
		if err != nil {
			return nil, err
		}

		baselineRows, err := d.store.ParkDailyRange(ctx, park.ID, baselineStart, baselineEnd)
		if err != nil {
			return nil, err
		}
		todayRow, found, err := d.store.ParkDailyOn(ctx, park.ID, localDate)
		if err != nil {
			return nil, err
		}

		if !found {
			findings = append(findings, Finding{
				Detector: "data_quality", ParkID: park.ID, LocalDate: localDate,
				Severity: SeverityWarning, Detail: "no park_daily_stats row for this date",
			})
		} else {
			if f, ok := d.parkShameZScore(park, localDate, baselineRows, todayRow); ok {
				findings = append(findings, f)
			}
			if f, ok := d.suddenChange(park, localDate, baselineEnd, todayRow); ok {
				findings = append(findings, f)
			}
			if f, ok := d.dataQualityRideCount(ctx, park, localDate, todayRow); ok {
				findings = append(findings, f)
			}
		}

		rides, err := d.store.GetRidesByPark(ctx, park.ID)
		if err != nil {
			return nil, err
		}
		for _, ride := range rides {
			if !ride.FeedsRanking() {
				continue
			}
			rideBaseline, err := d.store.RideDailyRange(ctx, ride.ID, baselineStart, baselineEnd)
			if err != nil {
				return nil, err
			}
			rideTodayRows, err := d.store.RideDailyRange(ctx, ride.ID, localDate, localDate)
			if err != nil {
				return nil, err
			}
			if len(rideTodayRows) == 0 {
				continue
			}
			if f, ok := d.rideDowntimeZScore(park, ride, localDate, rideBaseline, rideTodayRows[0]); ok {
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}

func (d *Detector) parkShameZScore(park model.Park, localDate string, baseline []model.ParkDaily, today model.ParkDaily) (Finding, bool) {
	if len(baseline) < d.cfg.ZScoreMinObservations {
		return Finding{}, false
	}
	values := make([]float64, len(baseline))
	for i, r := range baseline {
		values[i] = r.ShameScore.Float64()
	}
	z, ok := zScore(values, today.ShameScore.Float64())
	if !ok {
		return Finding{}, false
	}
	az := math.Abs(z)
	switch {
	case az > d.cfg.ZScoreCriticalThreshold:
		return Finding{Detector: "park_shame_zscore", ParkID: park.ID, LocalDate: localDate, Severity: SeverityCritical, Value: z, Detail: "shame score far outside 30-day baseline"}, true
	case az > d.cfg.ZScoreWarnThreshold:
		return Finding{Detector: "park_shame_zscore", ParkID: park.ID, LocalDate: localDate, Severity: SeverityWarning, Value: z, Detail: "shame score outside 30-day baseline"}, true
	}
	return Finding{}, false
}

func (d *Detector) rideDowntimeZScore(park model.Park, ride model.Ride, localDate string, baseline []model.RideDaily, today model.RideDaily) (Finding, bool) {
	if len(baseline) < d.cfg.ZScoreMinObservations {
		return Finding{}, false
	}
	values := make([]float64, len(baseline))
	for i, r := range baseline {
		values[i] = float64(r.DowntimeMinutes) / 60.0
	}
	downtimeHours := float64(today.DowntimeMinutes) / 60.0
	z, ok := zScore(values, downtimeHours)
	if !ok {
		return Finding{}, false
	}
	az := math.Abs(z)
	if az > d.cfg.ZScoreCriticalThreshold && downtimeHours > d.cfg.RideDowntimeCriticalHours {
		return Finding{Detector: "ride_downtime_zscore", ParkID: park.ID, RideID: ride.ID, LocalDate: localDate, Severity: SeverityCritical, Value: z, Detail: "downtime far outside 30-day baseline"}, true
	}
	if az > d.cfg.ZScoreWarnThreshold {
		return Finding{Detector: "ride_downtime_zscore", ParkID: park.ID, RideID: ride.ID, LocalDate: localDate, Severity: SeverityWarning, Value: z, Detail: "downtime outside 30-day baseline"}, true
	}
	return Finding{}, false
}

func (d *Detector) suddenChange(park model.Park, localDate, priorDate string, today model.ParkDaily) (Finding, bool) {
	prior, found, err := d.store.ParkDailyOn(context.Background(), park.ID, priorDate)
	if err != nil || !found {
		return Finding{}, false
	}
	priorScore := prior.ShameScore.Float64()
	if priorScore <= d.cfg.SuddenChangeMinPriorScore {
		return Finding{}, false
	}
	delta := math.Abs(today.ShameScore.Float64()-priorScore) / priorScore * 100
	if delta > d.cfg.SuddenChangeWarnPercent {
		return Finding{Detector: "sudden_change", ParkID: park.ID, LocalDate: localDate, Severity: SeverityWarning, Value: delta, Detail: "day-over-day shame score swing exceeds threshold"}, true
	}
	return Finding{}, false
}

func (d *Detector) dataQualityRideCount(ctx context.Context, park model.Park, localDate string, today model.ParkDaily) (Finding, bool) {
	loc, err := d.locs.Get(park.Timezone)
	if err != nil {
		return Finding{}, false
	}
	baselineStart, err := offsetLocalDate(localDate, loc, -d.cfg.RideCountBaselineDays)
	if err != nil {
		return Finding{}, false
	}
	baselineEnd, err := offsetLocalDate(localDate, loc, -1)
	if err != nil {
		return Finding{}, false
	}
	rows, err := d.store.ParkDailyRange(ctx, park.ID, baselineStart, baselineEnd)
	if err != nil || len(rows) == 0 {
		return Finding{}, false
	}

	sum := 0
	for _, r := range rows {
		sum += r.RidesOperating
	}
	avg := float64(sum) / float64(len(rows))
	if avg == 0 {
		return Finding{}, false
	}
	ratio := float64(today.RidesOperating) / avg

	if ratio < d.cfg.RideCountCriticalRatio {
		return Finding{Detector: "data_quality", ParkID: park.ID, LocalDate: localDate, Severity: SeverityCritical, Value: ratio, Detail: "rides_operating far below 14-day average"}, true
	}
	if ratio < d.cfg.RideCountWarnRatio {
		return Finding{Detector: "data_quality", ParkID: park.ID, LocalDate: localDate, Severity: SeverityWarning, Value: ratio, Detail: "rides_operating below 14-day average"}, true
	}
	return Finding{}, false
}

func zScore(baseline []float64, current float64) (float64, bool) {
	n := len(baseline)
	if n < 2 {
		return 0, false
	}
	sum := 0.0
	for _, v := range baseline {
		sum += v
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range baseline {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n - 1)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0, false
	}
	return (current - mean) / stddev, true
}

func offsetLocalDate(localDate string, loc *time.Location, days int) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", localDate, loc)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, days).Format("2006-01-02"), nil
}
