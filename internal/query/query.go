// Copyright 2025 James Ross

// Package query implements the ranking and chart query engine (C7): the
// fixed menu of named periods (LIVE/TODAY/YESTERDAY/7-day/30-day), each
// backed by either the aggregate tables (fast path) or a raw-snapshot
// recomputation (slow path), toggled by config.QueryEngine.UseAggregates.
package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
)

// Period names the fixed menu of query windows (§4.6).
type Period string

const (
	PeriodLive      Period = "LIVE"
	PeriodToday     Period = "TODAY"
	PeriodYesterday Period = "YESTERDAY"
	Period7Day      Period = "7DAY"
	Period30Day     Period = "30DAY"
)

// Filter narrows a ranking request to a subset of parks (§6).
type Filter string

const (
	FilterAllParks        Filter = "all-parks"
	FilterDisneyUniversal Filter = "disney-universal"
)

// RankingRow is one park's (or ride's, via RideID) entry in a ranking
// response. Matches the minimum ranking contract from §4.6.
type RankingRow struct {
	Rank                  int
	ParkID                int64
	RideID                int64 // zero for park-level rankings
	DisplayName           string
	Location              string
	ShameScore            model.ShameScore
	TotalDowntimeHours    float64
	WeightedDowntimeHours float64
	RidesDown             int
	RidesOperating        int
	UptimePercentage      float64
}

// RankingResponse is the query engine's answer to a ranking request.
type RankingResponse struct {
	Period      Period
	Filter      Filter
	GeneratedAt time.Time
	Rows        []RankingRow
}

// ChartPoint is one point in a park time-series (§4.6).
type ChartPoint struct {
	TimeLabel   string
	ShameScore  model.ShameScore
	RidesDown   int
	AvgWaitTime float64
}

// ChartResponse is a park's time-series for a period.
type ChartResponse struct {
	Period Period
	ParkID int64
	Points []ChartPoint
}

// Engine answers ranking and chart queries.
type Engine struct {
	store         store.Store
	clock         clock.Clock
	windows       shame.Windows
	useAggregates bool
	locs          *clock.LocationCache
}

// New returns a query Engine. useAggregates selects the fast path
// (hourly/daily aggregates) over the slow path (raw-snapshot recompute)
// wherever both are available for a period.
func New(st store.Store, cl clock.Clock, windows shame.Windows, useAggregates bool) *Engine {
	return &Engine{store: st, clock: cl, windows: windows, useAggregates: useAggregates, locs: clock.NewLocationCache()}
}

// Rankings answers a park-level ranking request for period and filter,
// sorted by shame_score DESC, total_downtime_hours DESC, id ASC (§4.6
// tie-breaks), truncated to limit rows. A zero-value filter behaves as
// FilterAllParks.
func (e *Engine) Rankings(ctx context.Context, period Period, filter Filter, limit int) (RankingResponse, error) {
	now := e.clock.Now()
	parks, err := e.store.GetActiveParks(ctx)
	if err != nil {
		return RankingResponse{}, err
	}

	var rows []RankingRow
	for _, park := range parks {
		if filter == FilterDisneyUniversal && !(park.IsDisney || park.IsUniversal) {
			continue
		}
		row, ok, err := e.parkRankingRow(ctx, park, period, now)
		if err != nil {
			return RankingResponse{}, err
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	sortRankingRows(rows)
	assignRanks(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return RankingResponse{Period: period, Filter: filter, GeneratedAt: now, Rows: rows}, nil
}

func sortRankingRows(rows []RankingRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ShameScore != rows[j].ShameScore {
			return rows[i].ShameScore > rows[j].ShameScore
		}
		if rows[i].TotalDowntimeHours != rows[j].TotalDowntimeHours {
			return rows[i].TotalDowntimeHours > rows[j].TotalDowntimeHours
		}
		return rows[i].ParkID < rows[j].ParkID
	})
}

func assignRanks(rows []RankingRow) {
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

func (e *Engine) parkRankingRow(ctx context.Context, park model.Park, period Period, now time.Time) (RankingRow, bool, error) {
	switch period {
	case PeriodLive:
		return e.liveRow(ctx, park, now)
	case PeriodToday:
		return e.todayRow(ctx, park, now)
	case PeriodYesterday:
		return e.dailyRow(ctx, park, now, -1)
	case Period7Day:
		return e.rangeRow(ctx, park, now, 7)
	case Period30Day:
		return e.rangeRow(ctx, park, now, 30)
	default:
		return RankingRow{}, false, nil
	}
}

func (e *Engine) liveRow(ctx context.Context, park model.Park, now time.Time) (RankingRow, bool, error) {
	snaps, err := e.store.ParkSnapshotsInRange(ctx, park.ID, now.Add(-60*time.Minute), now.Add(time.Second))
	if err != nil {
		return RankingRow{}, false, err
	}
	if len(snaps) == 0 {
		return RankingRow{}, false, nil
	}
	latest := snaps[len(snaps)-1]

	return RankingRow{
		ParkID:         park.ID,
		DisplayName:    park.Name,
		Location:       location(park),
		ShameScore:     latest.ShameScore,
		RidesDown:      latest.RidesClosed,
		RidesOperating: latest.RidesOpen,
	}, true, nil
}

// todayRow computes TODAY's shame_score as the arithmetic mean of the
// per-hour park shame scores covering the elapsed portion of the local day
// (the resolved open question in §4.6), using completed ParkHourly rows plus
// a recomputed mean for the current partial hour when the fast path is
// enabled, or a full raw recompute across the elapsed day otherwise.
func (e *Engine) todayRow(ctx context.Context, park model.Park, now time.Time) (RankingRow, bool, error) {
	loc, err := e.locs.Get(park.Timezone)
	if err != nil {
		return RankingRow{}, false, err
	}
	localDate := clock.LocalDate(now, loc)
	dayStart, _, err := clock.DayBoundsUTC(localDate, loc)
	if err != nil {
		return RankingRow{}, false, err
	}
	currentHourStart := now.Truncate(time.Hour)

	var shameValues []int
	var totalDowntimeHours, weightedDowntimeHours float64
	ridesDown, ridesOperating := 0, 0

	if e.useAggregates {
		hourRows, err := e.store.ParkHourlyRange(ctx, park.ID, dayStart, currentHourStart)
		if err != nil {
			return RankingRow{}, false, err
		}
		for _, h := range hourRows {
			shameValues = append(shameValues, int(h.ShameScore))
			totalDowntimeHours += h.TotalDowntimeHours
			weightedDowntimeHours += h.WeightedDowntimeHours
			ridesDown = h.RidesDown
			ridesOperating = h.RidesOperating
		}
	} else {
		daySnaps, err := e.store.ParkSnapshotsInRange(ctx, park.ID, dayStart, currentHourStart)
		if err != nil {
			return RankingRow{}, false, err
		}
		hourSums, hourCounts := make(map[time.Time]int), make(map[time.Time]int)
		for _, s := range daySnaps {
			hour := s.RecordedAt.Truncate(time.Hour)
			hourSums[hour] += int(s.ShameScore)
			hourCounts[hour]++
		}
		for hour, n := range hourCounts {
			shameValues = append(shameValues, int(model.NewShameScore(float64(hourSums[hour])/float64(n)/10)))
		}
	}

	partialSnaps, err := e.store.ParkSnapshotsInRange(ctx, park.ID, currentHourStart, now.Add(time.Second))
	if err != nil {
		return RankingRow{}, false, err
	}
	if len(partialSnaps) > 0 {
		sum := 0
		for _, s := range partialSnaps {
			sum += int(s.ShameScore)
		}
		shameValues = append(shameValues, int(model.NewShameScore(float64(sum)/float64(len(partialSnaps))/10)))
		latest := partialSnaps[len(partialSnaps)-1]
		ridesDown = latest.RidesClosed
		ridesOperating = latest.RidesOpen
	}

	if len(shameValues) == 0 {
		return RankingRow{}, false, nil
	}

	sum := 0
	for _, v := range shameValues {
		sum += v
	}
	meanShame := model.NewShameScore(float64(sum) / float64(len(shameValues)) / 10)
	if meanShame == 0 {
		// TODAY rankings exclude parks with shame_score = 0 (§4.6).
		return RankingRow{}, false, nil
	}

	return RankingRow{
		ParkID:                park.ID,
		DisplayName:           park.Name,
		Location:              location(park),
		ShameScore:            meanShame,
		TotalDowntimeHours:    roundTo(totalDowntimeHours, 2),
		WeightedDowntimeHours: roundTo(weightedDowntimeHours, 2),
		RidesDown:             ridesDown,
		RidesOperating:        ridesOperating,
	}, true, nil
}

// dailyRow answers YESTERDAY (dayOffset=-1) from the daily aggregate, with a
// raw-snapshot recomputation fallback when the fast path is disabled.
func (e *Engine) dailyRow(ctx context.Context, park model.Park, now time.Time, dayOffset int) (RankingRow, bool, error) {
	loc, err := e.locs.Get(park.Timezone)
	if err != nil {
		return RankingRow{}, false, err
	}
	localDate := clock.LocalDate(now.AddDate(0, 0, dayOffset), loc)

	if e.useAggregates {
		daily, ok, err := e.store.ParkDailyOn(ctx, park.ID, localDate)
		if err != nil {
			return RankingRow{}, false, err
		}
		if !ok {
			return e.recomputeDailyRow(ctx, park, loc, localDate)
		}
		uptimePct := 0.0
		session, ok, err := e.store.OperatingSessionOn(ctx, park.ID, localDate)
		if err == nil && ok && session.OperatingMinutes > 0 {
			uptimePct = 100
		}
		return RankingRow{
			ParkID:                park.ID,
			DisplayName:           park.Name,
			Location:              location(park),
			ShameScore:            daily.ShameScore,
			TotalDowntimeHours:    daily.TotalDowntimeHours,
			WeightedDowntimeHours: daily.WeightedDowntimeHours,
			RidesDown:             daily.RidesDown,
			RidesOperating:        daily.RidesOperating,
			UptimePercentage:      uptimePct,
		}, true, nil
	}
	return e.recomputeDailyRow(ctx, park, loc, localDate)
}

// recomputeDailyRow is the §4.6 slow path: recompute the park's shame score
// and downtime directly from raw snapshots for localDate instead of reading
// the daily aggregate.
func (e *Engine) recomputeDailyRow(ctx context.Context, park model.Park, loc *time.Location, localDate string) (RankingRow, bool, error) {
	dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
	if err != nil {
		return RankingRow{}, false, err
	}
	rides, err := e.store.GetRidesByPark(ctx, park.ID)
	if err != nil {
		return RankingRow{}, false, err
	}
	rideSnaps, err := e.store.RideSnapshotsForPark(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return RankingRow{}, false, err
	}
	parkSnaps, err := e.store.ParkSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return RankingRow{}, false, err
	}
	if len(parkSnaps) == 0 {
		return RankingRow{}, false, nil
	}

	operatedToday := make(map[int64]bool)
	for rideID, snaps := range rideSnaps {
		for _, s := range snaps {
			if s.ComputedIsOpen && s.ParkAppearsOpen {
				operatedToday[rideID] = true
				break
			}
		}
	}

	ridesByID := make(map[int64]model.Ride, len(rides))
	for _, r := range rides {
		ridesByID[r.ID] = r
	}

	shameSum := 0
	ridesDown, ridesOperating := 0, 0
	downHoursByRide := make(map[int64]int)
	for _, ride := range rides {
		for _, s := range rideSnaps[ride.ID] {
			rs := shame.RideState{Ride: ride, Status: s.Status, ComputedIsOpen: s.ComputedIsOpen, HasOperatedPeriod: operatedToday[ride.ID]}
			if shame.IsDown(rs, park, e.windows, s.ParkAppearsOpen) {
				downHoursByRide[ride.ID]++
			}
		}
	}
	totalDowntimeSnaps, weightedDowntimeSnaps := 0, 0
	for rideID, count := range downHoursByRide {
		ridesDown++
		totalDowntimeSnaps += count
		weightedDowntimeSnaps += count * model.TierWeight(ridesByID[rideID].Tier)
	}
	for rideID := range operatedToday {
		if downHoursByRide[rideID] == 0 {
			ridesOperating++
		}
	}
	for _, ps := range parkSnaps {
		shameSum += int(ps.ShameScore)
	}

	return RankingRow{
		ParkID:                park.ID,
		DisplayName:           park.Name,
		Location:              location(park),
		ShameScore:            model.NewShameScore(float64(shameSum) / float64(len(parkSnaps)) / 10),
		TotalDowntimeHours:    roundTo(float64(totalDowntimeSnaps)*5/60, 2),
		WeightedDowntimeHours: roundTo(float64(weightedDowntimeSnaps)*5/60, 2),
		RidesDown:             ridesDown,
		RidesOperating:        ridesOperating,
	}, true, nil
}

// rangeRow answers 7-day/30-day rankings from the daily aggregates summed
// over the trailing N local days.
func (e *Engine) rangeRow(ctx context.Context, park model.Park, now time.Time, days int) (RankingRow, bool, error) {
	loc, err := e.locs.Get(park.Timezone)
	if err != nil {
		return RankingRow{}, false, err
	}
	endDate := clock.LocalDate(now.AddDate(0, 0, -1), loc)
	startDate := clock.LocalDate(now.AddDate(0, 0, -days), loc)

	rows, err := e.store.ParkDailyRange(ctx, park.ID, startDate, endDate)
	if err != nil {
		return RankingRow{}, false, err
	}
	if len(rows) == 0 {
		return RankingRow{}, false, nil
	}

	shameSum := 0
	var totalDowntimeHours, weightedDowntimeHours float64
	ridesDown, ridesOperating := 0, 0
	for _, r := range rows {
		shameSum += int(r.ShameScore)
		totalDowntimeHours += r.TotalDowntimeHours
		weightedDowntimeHours += r.WeightedDowntimeHours
		if r.RidesDown > ridesDown {
			ridesDown = r.RidesDown
		}
		if r.RidesOperating > ridesOperating {
			ridesOperating = r.RidesOperating
		}
	}

	return RankingRow{
		ParkID:                park.ID,
		DisplayName:           park.Name,
		Location:              location(park),
		ShameScore:            model.NewShameScore(float64(shameSum) / float64(len(rows)) / 10),
		TotalDowntimeHours:    roundTo(totalDowntimeHours, 2),
		WeightedDowntimeHours: roundTo(weightedDowntimeHours, 2),
		RidesDown:             ridesDown,
		RidesOperating:        ridesOperating,
	}, true, nil
}

// Chart answers a park time-series request for period (§4.6 granularities).
func (e *Engine) Chart(ctx context.Context, parkID int64, period Period) (ChartResponse, error) {
	park, err := e.store.GetPark(ctx, parkID)
	if err != nil {
		return ChartResponse{}, err
	}
	loc, err := e.locs.Get(park.Timezone)
	if err != nil {
		return ChartResponse{}, err
	}
	now := e.clock.Now()

	switch period {
	case PeriodLive:
		start := now.Add(-60 * time.Minute)
		snaps, err := e.store.ParkSnapshotsInRange(ctx, parkID, start, now.Add(time.Second))
		if err != nil {
			return ChartResponse{}, err
		}
		var points []ChartPoint
		for _, s := range snaps {
			points = append(points, ChartPoint{
				TimeLabel:   s.RecordedAt.In(loc).Format("15:04"),
				ShameScore:  s.ShameScore,
				RidesDown:   s.RidesClosed,
				AvgWaitTime: s.AvgWaitTime,
			})
		}
		return ChartResponse{Period: period, ParkID: parkID, Points: points}, nil

	case PeriodToday, PeriodYesterday:
		localDate := clock.LocalDate(now, loc)
		if period == PeriodYesterday {
			localDate = clock.LocalDate(now.AddDate(0, 0, -1), loc)
		}
		dayStart, dayEnd, err := clock.DayBoundsUTC(localDate, loc)
		if err != nil {
			return ChartResponse{}, err
		}
		rows, err := e.store.ParkHourlyRange(ctx, parkID, dayStart, dayEnd)
		if err != nil {
			return ChartResponse{}, err
		}
		var points []ChartPoint
		for _, r := range rows {
			points = append(points, ChartPoint{
				TimeLabel:  r.HourStartUTC.In(loc).Format("15:04"),
				ShameScore: r.ShameScore,
				RidesDown:  r.RidesDown,
			})
		}
		return ChartResponse{Period: period, ParkID: parkID, Points: points}, nil

	case Period7Day, Period30Day:
		days := 7
		if period == Period30Day {
			days = 30
		}
		endDate := clock.LocalDate(now.AddDate(0, 0, -1), loc)
		startDate := clock.LocalDate(now.AddDate(0, 0, -days), loc)
		rows, err := e.store.ParkDailyRange(ctx, parkID, startDate, endDate)
		if err != nil {
			return ChartResponse{}, err
		}
		var points []ChartPoint
		for _, r := range rows {
			points = append(points, ChartPoint{TimeLabel: r.StatDate, ShameScore: r.ShameScore, RidesDown: r.RidesDown})
		}
		return ChartResponse{Period: period, ParkID: parkID, Points: points}, nil

	default:
		return ChartResponse{Period: period, ParkID: parkID}, nil
	}
}

func location(park model.Park) string {
	if park.City == "" {
		return park.State
	}
	if park.State == "" {
		return park.City
	}
	return park.City + ", " + park.State
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}
