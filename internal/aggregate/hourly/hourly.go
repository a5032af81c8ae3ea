// Copyright 2025 James Ross

// Package hourly implements the hourly aggregator (C4): collapsing one
// completed UTC hour of raw snapshots into one row per (ride, hour) and one
// per (park, hour). Rerunning for the same hour converges to the same rows
// because every write is an upsert keyed by (id, hour_start_utc).
package hourly

import (
	"context"
	"math"

	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"go.uber.org/zap"
)

// Aggregator runs the hourly rollup against a Store.
type Aggregator struct {
	store                   store.Store
	windows                 shame.Windows
	metricsVersion          string
	snapshotIntervalMinutes int
	locs                    *clock.LocationCache
	logger                  *zap.Logger
}

// New returns an Aggregator. snapshotIntervalMinutes is the collector's
// configured cadence, used to convert snapshot counts into hours/minutes.
func New(st store.Store, windows shame.Windows, metricsVersion string, snapshotIntervalMinutes int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:                   st,
		windows:                 windows,
		metricsVersion:          metricsVersion,
		snapshotIntervalMinutes: snapshotIntervalMinutes,
		locs:                    clock.NewLocationCache(),
		logger:                  logger,
	}
}

// RunHour aggregates the completed hour [hourStart, hourStart+1h) for every
// active park. It is idempotent: calling it twice for the same hourStart
// produces identical upserted rows.
func (a *Aggregator) RunHour(ctx context.Context, hourStart time.Time) error {
	start, end := clock.HourBoundsUTC(hourStart)

	jobID, err := a.store.StartAggregationJob(ctx, model.JobHourly, end)
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
		n, err := a.processPark(ctx, park, start, end)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("hourly aggregation failed for park",
					zap.Int64("park_id", park.ID), zap.Error(err))
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

func (a *Aggregator) processPark(ctx context.Context, park model.Park, start, end time.Time) (int, error) {
	rideRows, parkRow, err := a.ComputeHour(ctx, park, start, end)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, row := range rideRows {
		if err := a.store.UpsertRideHourly(ctx, row); err != nil {
			return written, err
		}
		written++
	}
	if err := a.store.UpsertParkHourly(ctx, parkRow); err != nil {
		return written, err
	}
	return written, nil
}

// ComputeHour recomputes the hourly rows for park over [start, end) directly
// from raw snapshots, without writing anything. The verifier calls this
// alongside RunHour's own upserting path so both read the identical logic
// (§4.8's "recomputes ... using the same logic as the aggregator").
func (a *Aggregator) ComputeHour(ctx context.Context, park model.Park, start, end time.Time) ([]model.RideHourly, model.ParkHourly, error) {
	loc, err := a.locs.Get(park.Timezone)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}

	rides, err := a.store.GetRidesByPark(ctx, park.ID)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}

	hourRideSnaps, err := a.store.RideSnapshotsForPark(ctx, park.ID, start, end)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}

	localDate := clock.LocalDate(start, loc)
	dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}
	dayRideSnaps, err := a.store.RideSnapshotsForPark(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}
	rideOperatedToday := computeRideOperatedSet(dayRideSnaps)

	parkSnaps, err := a.store.ParkSnapshotsInRange(ctx, park.ID, start, end)
	if err != nil {
		return nil, model.ParkHourly{}, err
	}

	var rideRows []model.RideHourly
	totalDowntimeHours := 0.0
	weightedDowntimeHours := 0.0
	ridesOperating := 0
	ridesDown := 0

	for _, ride := range rides {
		snaps, ok := hourRideSnaps[ride.ID]
		if !ok || len(snaps) == 0 {
			continue
		}
		operated := rideOperatedToday[ride.ID]
		row := a.aggregateRide(ride, park, snaps, operated, start)
		rideRows = append(rideRows, row)

		if !ride.FeedsRanking() {
			continue
		}
		totalDowntimeHours += row.DowntimeHours
		weightedDowntimeHours += row.DowntimeHours * float64(model.TierWeight(ride.Tier))
		if row.DownSnapshots > 0 {
			ridesDown++
		}
		if row.OperatingSnapshots > 0 {
			ridesOperating++
		}
	}

	parkRow := model.ParkHourly{
		ParkID:                park.ID,
		HourStartUTC:          start,
		TotalDowntimeHours:    roundTo(totalDowntimeHours, 2),
		WeightedDowntimeHours: roundTo(weightedDowntimeHours, 2),
		EffectiveParkWeight:   shame.EffectiveParkWeight(park, rides, end, a.windows),
		RidesOperating:        ridesOperating,
		RidesDown:             ridesDown,
		SnapshotCount:         len(parkSnaps),
		MetricsVersion:        a.metricsVersion,
	}
	parkRow.ShameScore = meanShameScore(parkSnaps)
	for _, ps := range parkSnaps {
		if ps.EffectiveOpen() {
			parkRow.ParkWasOpen = true
			break
		}
	}

	return rideRows, parkRow, nil
}

func (a *Aggregator) aggregateRide(ride model.Ride, park model.Park, snaps []model.RideStatusSnapshot, operatedToday bool, hourStart time.Time) model.RideHourly {
	snapshotCount := len(snaps)
	operatingSnapshots := 0
	downSnapshots := 0
	openSnapshots := 0
	waitSum := 0.0
	waitCount := 0

	for _, s := range snaps {
		if s.ParkAppearsOpen {
			openSnapshots++
			if s.ComputedIsOpen {
				operatingSnapshots++
				if s.WaitTime != nil {
					waitSum += float64(*s.WaitTime)
					waitCount++
				}
			}
		}
		rs := shame.RideState{
			Ride:              ride,
			Status:            s.Status,
			ComputedIsOpen:    s.ComputedIsOpen,
			HasOperatedPeriod: operatedToday,
		}
		if shame.IsDown(rs, park, a.windows, s.ParkAppearsOpen) {
			downSnapshots++
		}
	}

	uptimePct := 0.0
	if operatedToday && openSnapshots > 0 {
		uptimePct = roundTo(100*float64(operatingSnapshots)/float64(openSnapshots), 1)
	}
	avgWait := 0.0
	if waitCount > 0 {
		avgWait = roundTo(waitSum/float64(waitCount), 1)
	}

	return model.RideHourly{
		RideID:             ride.ID,
		HourStartUTC:       hourStart,
		SnapshotCount:      snapshotCount,
		OperatingSnapshots: operatingSnapshots,
		DownSnapshots:      downSnapshots,
		DowntimeHours:      roundTo(float64(downSnapshots)*float64(a.snapshotIntervalMinutes)/60.0, 2),
		UptimePercentage:   uptimePct,
		AvgWaitTime:        avgWait,
		RideOperated:       operatedToday,
		MetricsVersion:     a.metricsVersion,
	}
}

func computeRideOperatedSet(snapsByRide map[int64][]model.RideStatusSnapshot) map[int64]bool {
	out := make(map[int64]bool, len(snapsByRide))
	for rideID, snaps := range snapsByRide {
		for _, s := range snaps {
			if s.ComputedIsOpen && s.ParkAppearsOpen {
				out[rideID] = true
				break
			}
		}
	}
	return out
}

func meanShameScore(snaps []model.ParkActivitySnapshot) model.ShameScore {
	if len(snaps) == 0 {
		return model.NewShameScore(0)
	}
	sum := 0
	for _, s := range snaps {
		sum += int(s.ShameScore)
	}
	meanTenths := float64(sum) / float64(len(snaps))
	return model.NewShameScore(meanTenths / 10)
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}
