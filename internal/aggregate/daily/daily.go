// Copyright 2025 James Ross

// Package daily implements the daily aggregator (C5): collapsing a
// park-local calendar day of raw snapshots into one row per (ride, date)
// and (park, date), plus the operating-session row that is the canonical
// denominator for "was the park open" queries.
package daily

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"go.uber.org/zap"
)

// Aggregator runs the daily rollup against a Store.
type Aggregator struct {
	store                   store.Store
	windows                 shame.Windows
	metricsVersion          string
	snapshotIntervalMinutes int
	locs                    *clock.LocationCache
	logger                  *zap.Logger
}

// New returns an Aggregator.
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

// RunDay aggregates localDate (YYYY-MM-DD) for every active park the store
// returns. It takes no park filter and does not check whether localDate has
// already ended in each park's own timezone.
func (a *Aggregator) RunDay(ctx context.Context, localDate string) error {
	parks, err := a.store.GetActiveParks(ctx)
	if err != nil {
		return err
	}

	// windowEnd is a placeholder instant recording "this run covers
	// localDate"; since AggregationLog.WindowEnd is a UTC instant and daily
	// runs are keyed by local date, the UTC end-of-day instant for the
	// first park's zone is used as a stable, monotonically increasing
	// ordering key. Per-park correctness does not depend on this.
	var windowEnd time.Time
	if len(parks) > 0 {
		loc, lerr := a.locs.Get(parks[0].Timezone)
		if lerr == nil {
			if _, end, derr := clock.DayBoundsUTC(localDate, loc); derr == nil {
				windowEnd = end
			}
		}
	}

	jobID, err := a.store.StartAggregationJob(ctx, model.JobDaily, windowEnd)
	if err != nil {
		return err
	}

	parksProcessed := 0
	ridesProcessed := 0
	var lastErr error
	for _, park := range parks {
		n, err := a.processPark(ctx, park, localDate)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("daily aggregation failed for park",
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

type rideTimeline struct {
	row          model.RideDaily
	statusChanges int
	longestDown   int
}

func (a *Aggregator) processPark(ctx context.Context, park model.Park, localDate string) (int, error) {
	rideRows, parkRow, session, err := a.ComputeDay(ctx, park, localDate)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, row := range rideRows {
		if err := a.store.UpsertRideDaily(ctx, row); err != nil {
			return written, err
		}
		written++
	}
	if err := a.store.UpsertParkDaily(ctx, parkRow); err != nil {
		return written, err
	}
	if err := a.store.UpsertOperatingSession(ctx, session); err != nil {
		return written, err
	}
	return written, nil
}

// ComputeDay recomputes the daily rows for park on localDate directly from
// raw snapshots, without writing anything. Shared by RunDay's upserting path
// and the verifier so both apply identical logic (§4.8).
func (a *Aggregator) ComputeDay(ctx context.Context, park model.Park, localDate string) ([]model.RideDaily, model.ParkDaily, model.OperatingSession, error) {
	loc, err := a.locs.Get(park.Timezone)
	if err != nil {
		return nil, model.ParkDaily{}, model.OperatingSession{}, err
	}
	dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
	if err != nil {
		return nil, model.ParkDaily{}, model.OperatingSession{}, err
	}

	rides, err := a.store.GetRidesByPark(ctx, park.ID)
	if err != nil {
		return nil, model.ParkDaily{}, model.OperatingSession{}, err
	}
	rideSnaps, err := a.store.RideSnapshotsForPark(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return nil, model.ParkDaily{}, model.OperatingSession{}, err
	}
	parkSnaps, err := a.store.ParkSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return nil, model.ParkDaily{}, model.OperatingSession{}, err
	}

	var rideRows []model.RideDaily
	totalDowntimeHours := 0.0
	weightedDowntimeHours := 0.0
	ridesOperating := 0
	ridesDown := 0
	ridesWithDowntime := 0
	statusChangesSum := 0
	longestDownMax := 0

	for _, ride := range rides {
		snaps, ok := rideSnaps[ride.ID]
		if !ok || len(snaps) == 0 {
			continue
		}
		tl := a.aggregateRideDay(ride, park, snaps, localDate, a.snapshotIntervalMinutes)
		rideRows = append(rideRows, tl.row)

		if !ride.FeedsRanking() {
			continue
		}
		downtimeHours := float64(tl.row.DowntimeMinutes) / 60.0
		totalDowntimeHours += downtimeHours
		weightedDowntimeHours += downtimeHours * float64(model.TierWeight(ride.Tier))
		statusChangesSum += tl.statusChanges
		if tl.longestDown > longestDownMax {
			longestDownMax = tl.longestDown
		}
		if tl.row.RideOperated {
			ridesOperating++
		}
		if tl.row.DowntimeMinutes > 0 {
			ridesDown++
			ridesWithDowntime++
		}
	}

	hourRows, err := a.store.ParkHourlyRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return rideRows, model.ParkDaily{}, model.OperatingSession{}, err
	}

	parkRow := model.ParkDaily{
		ParkID:                 park.ID,
		StatDate:               localDate,
		ShameScore:             meanHourlyShameScore(hourRows),
		TotalDowntimeHours:     roundTo(totalDowntimeHours, 2),
		WeightedDowntimeHours:  roundTo(weightedDowntimeHours, 2),
		EffectiveParkWeight:    shame.EffectiveParkWeight(park, rides, dayEnd, a.windows),
		RidesOperating:         ridesOperating,
		RidesDown:              ridesDown,
		RidesWithDowntime:      ridesWithDowntime,
		StatusChanges:          statusChangesSum,
		LongestDowntimeMinutes: longestDownMax,
		MetricsVersion:         a.metricsVersion,
	}

	session := buildOperatingSession(park.ID, localDate, parkSnaps, a.snapshotIntervalMinutes)
	return rideRows, parkRow, session, nil
}

func (a *Aggregator) aggregateRideDay(ride model.Ride, park model.Park, snaps []model.RideStatusSnapshot, localDate string, intervalMinutes int) rideTimeline {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].RecordedAt.Before(snaps[j].RecordedAt) })

	operatedToday := false
	for _, s := range snaps {
		if s.ComputedIsOpen && s.ParkAppearsOpen {
			operatedToday = true
			break
		}
	}

	uptimeSnaps := 0
	operatingHoursSnaps := 0
	downSnaps := 0
	var minWait, maxWait, peakWait *int
	waitSum := 0.0
	waitCount := 0

	downRun, longestDownRun := 0, 0
	statusChanges := 0
	var prevDown *bool

	for _, s := range snaps {
		if s.ParkAppearsOpen {
			operatingHoursSnaps++
			if s.ComputedIsOpen {
				uptimeSnaps++
				if s.WaitTime != nil {
					w := *s.WaitTime
					waitSum += float64(w)
					waitCount++
					if minWait == nil || w < *minWait {
						minWait = &w
					}
					if maxWait == nil || w > *maxWait {
						maxWait = &w
					}
					if peakWait == nil || w > *peakWait {
						peakWait = &w
					}
				}
			}
		}

		rs := shame.RideState{
			Ride:              ride,
			Status:            s.Status,
			ComputedIsOpen:    s.ComputedIsOpen,
			HasOperatedPeriod: operatedToday,
		}
		// The zero-value Windows{} passed here only affects WindowFor/
		// EffectiveParkWeight, which IsDown never consults directly; its
		// own branches depend solely on park-type dispatch and status.
		down := shame.IsDown(rs, park, shame.Windows{}, s.ParkAppearsOpen)
		if down {
			downSnaps++
			downRun++
			if downRun > longestDownRun {
				longestDownRun = downRun
			}
		} else {
			downRun = 0
		}
		if prevDown != nil && *prevDown != down {
			statusChanges++
		}
		d := down
		prevDown = &d
	}

	downtimeMinutes := 0
	if operatedToday {
		downtimeMinutes = downSnaps * intervalMinutes
	}
	uptimeMinutes := uptimeSnaps * intervalMinutes
	operatingHoursMinutes := operatingHoursSnaps * intervalMinutes

	uptimePct := 0.0
	if operatedToday && operatingHoursMinutes > 0 {
		uptimePct = roundTo(100*float64(uptimeMinutes)/float64(operatingHoursMinutes), 1)
	}
	var avgWait *float64
	if waitCount > 0 {
		v := roundTo(waitSum/float64(waitCount), 1)
		avgWait = &v
	}

	row := model.RideDaily{
		RideID:                 ride.ID,
		StatDate:               localDate,
		UptimeMinutes:          uptimeMinutes,
		DowntimeMinutes:        downtimeMinutes,
		OperatingHoursMinutes:  operatingHoursMinutes,
		UptimePercentage:       uptimePct,
		MinWaitTime:            minWait,
		AvgWaitTime:            avgWait,
		MaxWaitTime:            maxWait,
		PeakWaitTime:           peakWait,
		StatusChanges:          statusChanges,
		LongestDowntimeMinutes: longestDownRun * intervalMinutes,
		RideOperated:           operatedToday,
		MetricsVersion:         a.metricsVersion,
	}

	return rideTimeline{row: row, statusChanges: statusChanges, longestDown: row.LongestDowntimeMinutes}
}

func meanHourlyShameScore(rows []model.ParkHourly) model.ShameScore {
	if len(rows) == 0 {
		return model.NewShameScore(0)
	}
	sum := 0
	for _, r := range rows {
		sum += int(r.ShameScore)
	}
	mean := float64(sum) / float64(len(rows))
	return model.NewShameScore(mean / 10)
}

func buildOperatingSession(parkID int64, localDate string, snaps []model.ParkActivitySnapshot, intervalMinutes int) model.OperatingSession {
	var first, last time.Time
	count := 0
	for _, s := range snaps {
		if !s.EffectiveOpen() {
			continue
		}
		if first.IsZero() || s.RecordedAt.Before(first) {
			first = s.RecordedAt
		}
		if s.RecordedAt.After(last) {
			last = s.RecordedAt
		}
		count++
	}
	return model.OperatingSession{
		ParkID:           parkID,
		LocalDate:        localDate,
		FirstOpenUTC:     first,
		LastOpenUTC:      last,
		OperatingMinutes: count * intervalMinutes,
	}
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}
