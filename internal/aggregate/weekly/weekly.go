// Copyright 2025 James Ross

// Package weekly implements the weekly/monthly rollup (C6): a pure
// aggregation over already-computed daily rows, with no access to raw
// snapshots, plus the trend percentage versus the prior period.
package weekly

import (
	"context"
	"math"
	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/store"
	"go.uber.org/zap"
)

// Aggregator runs the weekly/monthly rollup against a Store.
type Aggregator struct {
	store          store.Store
	metricsVersion string
	locs           *clock.LocationCache
	logger         *zap.Logger
}

// New returns an Aggregator.
func New(st store.Store, metricsVersion string, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: st, metricsVersion: metricsVersion, locs: clock.NewLocationCache(), logger: logger}
}

// RunWeek rolls up the ISO week starting at weekStart (a Monday, YYYY-MM-DD)
// for every active park.
func (a *Aggregator) RunWeek(ctx context.Context, weekStart string) error {
	return a.run(ctx, model.PeriodWeekly, weekStart, weekEndInclusive, a.previousWeekStart)
}

// RunMonth rolls up the calendar month starting at monthStart (the 1st,
// YYYY-MM-DD) for every active park.
func (a *Aggregator) RunMonth(ctx context.Context, monthStart string) error {
	return a.run(ctx, model.PeriodMonthly, monthStart, a.monthEndInclusive, a.previousMonthStart)
}

func weekEndInclusive(start string, loc *time.Location) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", start, loc)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, 6).Format("2006-01-02"), nil
}

func (a *Aggregator) monthEndInclusive(start string, loc *time.Location) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", start, loc)
	if err != nil {
		return "", err
	}
	firstNextMonth := time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, loc)
	return firstNextMonth.AddDate(0, 0, -1).Format("2006-01-02"), nil
}

func (a *Aggregator) previousWeekStart(start string, loc *time.Location) (string, error) {
	return clock.PreviousISOWeekStart(start, loc)
}

func (a *Aggregator) previousMonthStart(start string, loc *time.Location) (string, error) {
	return clock.PreviousMonthStart(start, loc)
}

func (a *Aggregator) run(
	ctx context.Context,
	kind model.PeriodKind,
	periodStart string,
	endFn func(string, *time.Location) (string, error),
	prevFn func(string, *time.Location) (string, error),
) error {
	var jobType model.AggregationJobType
	if kind == model.PeriodWeekly {
		jobType = model.JobWeekly
	} else {
		jobType = model.JobMonthly
	}

	jobID, err := a.store.StartAggregationJob(ctx, jobType, time.Time{})
	if err != nil {
		return err
	}

	parks, err := a.store.GetActiveParks(ctx)
	if err != nil {
		_ = a.store.FinishAggregationJob(ctx, jobID, model.AggregationFailed, 0, 0, err.Error())
		return err
	}

	parksProcessed := 0
	ridesProcessed := 0
	var lastErr error
	for _, park := range parks {
		n, err := a.processPark(ctx, park, kind, periodStart, endFn, prevFn)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("periodic aggregation failed for park", zap.Int64("park_id", park.ID), zap.Error(err))
			}
			lastErr = err
			continue
		}
		parksProcessed++
		ridesProcessed += n
	}

	status := model.AggregationSuccess
	errMsg := ""
	if parksProcessed == 0 && len(parks) > 0 {
		status = model.AggregationFailed
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
	}
	return a.store.FinishAggregationJob(ctx, jobID, status, parksProcessed, ridesProcessed, errMsg)
}

func (a *Aggregator) processPark(
	ctx context.Context,
	park model.Park,
	kind model.PeriodKind,
	periodStart string,
	endFn func(string, *time.Location) (string, error),
	prevFn func(string, *time.Location) (string, error),
) (int, error) {
	loc, err := a.locs.Get(park.Timezone)
	if err != nil {
		return 0, err
	}
	periodEnd, err := endFn(periodStart, loc)
	if err != nil {
		return 0, err
	}

	dailyRows, err := a.store.ParkDailyRange(ctx, park.ID, periodStart, periodEnd)
	if err != nil {
		return 0, err
	}

	rides, err := a.store.GetRidesByPark(ctx, park.ID)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, ride := range rides {
		rideRows, err := a.store.RideDailyRange(ctx, ride.ID, periodStart, periodEnd)
		if err != nil {
			return written, err
		}
		if len(rideRows) == 0 {
			continue
		}
		downtimeHours := 0.0
		uptimeMinutes := 0
		operatingMinutes := 0
		for _, r := range rideRows {
			downtimeHours += float64(r.DowntimeMinutes) / 60.0
			uptimeMinutes += r.UptimeMinutes
			operatingMinutes += r.OperatingHoursMinutes
		}
		uptimePct := 0.0
		if operatingMinutes > 0 {
			uptimePct = roundTo(100*float64(uptimeMinutes)/float64(operatingMinutes), 1)
		}

		var trend *float64
		if prevStart, perr := prevFn(periodStart, loc); perr == nil {
			if prevRow, found, perr2 := a.store.RidePeriodicOn(ctx, ride.ID, kind, prevStart); perr2 == nil && found {
				trend = clock.TrendPercent(downtimeHours*60, prevRow.TotalDowntimeHours*60)
			}
		}

		row := model.RidePeriodic{
			RideID:             ride.ID,
			Kind:               kind,
			PeriodStart:        periodStart,
			TotalDowntimeHours: roundTo(downtimeHours, 2),
			UptimePercentage:   uptimePct,
			TrendVsPrevious:    trend,
			MetricsVersion:     a.metricsVersion,
		}
		if err := a.store.UpsertRidePeriodic(ctx, row); err != nil {
			return written, err
		}
		written++
	}

	if len(dailyRows) == 0 {
		return written, nil
	}

	totalDowntimeHours := 0.0
	weightedDowntimeHours := 0.0
	shameSum := 0
	for _, d := range dailyRows {
		totalDowntimeHours += d.TotalDowntimeHours
		weightedDowntimeHours += d.WeightedDowntimeHours
		shameSum += int(d.ShameScore)
	}
	meanShame := model.NewShameScore(float64(shameSum) / float64(len(dailyRows)) / 10)

	var trend *float64
	prevStart, perr := prevFn(periodStart, loc)
	if perr == nil {
		if prevRow, found, perr2 := a.store.ParkPeriodicOn(ctx, park.ID, kind, prevStart); perr2 == nil && found {
			trend = clock.TrendPercent(totalDowntimeHours*60, prevRow.TotalDowntimeHours*60)
		}
	}

	parkRow := model.ParkPeriodic{
		ParkID:                park.ID,
		Kind:                  kind,
		PeriodStart:           periodStart,
		ShameScore:            meanShame,
		TotalDowntimeHours:    roundTo(totalDowntimeHours, 2),
		WeightedDowntimeHours: roundTo(weightedDowntimeHours, 2),
		TrendVsPrevious:       trend,
		MetricsVersion:        a.metricsVersion,
	}
	if err := a.store.UpsertParkPeriodic(ctx, parkRow); err != nil {
		return written, err
	}
	return written, nil
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}
