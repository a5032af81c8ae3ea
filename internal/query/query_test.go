// Copyright 2025 James Ross
package query

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindows() shame.Windows {
	return shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}
}

func testPark() model.Park {
	return model.Park{ID: 1, Name: "Test Park", City: "Anaheim", State: "CA", Timezone: "America/Los_Angeles", IsActive: true, IsDisney: true}
}

func TestRankingsLiveReadsRecentSnapshot(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC))

	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: now.Now().Add(-5 * time.Minute), RidesOpen: 8, RidesClosed: 2,
		ParkAppearsOpen: true, ShameScore: model.NewShameScore(4.5),
	}, nil))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodLive, FilterAllParks, 10)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 1, resp.Rows[0].Rank)
	assert.Equal(t, model.NewShameScore(4.5), resp.Rows[0].ShameScore)
	assert.Equal(t, "Anaheim, CA", resp.Rows[0].Location)
}

func TestRankingsLiveOmitsParksWithNoRecentSnapshot(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodLive, FilterAllParks, 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Rows)
}

func TestRankingsTodayExcludesZeroShameParks(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC))

	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: now.Now(), RidesOpen: 10, ParkAppearsOpen: true, ShameScore: model.NewShameScore(0),
	}, nil))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodToday, FilterAllParks, 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Rows, "a park whose TODAY shame score is zero must not appear in TODAY rankings")
}

func TestRankingsTodayCombinesHourlyAndPartialHour(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 30, 0, 0, time.UTC))

	require.NoError(t, st.UpsertParkHourly(ctx, model.ParkHourly{
		ParkID: 1, HourStartUTC: time.Date(2026, 6, 20, 19, 0, 0, 0, time.UTC),
		ShameScore: model.NewShameScore(3), RidesDown: 1, RidesOperating: 9,
	}))
	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: time.Date(2026, 6, 20, 20, 5, 0, 0, time.UTC),
		RidesOpen: 9, RidesClosed: 1, ParkAppearsOpen: true, ShameScore: model.NewShameScore(5),
	}, nil))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodToday, FilterAllParks, 10)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, model.NewShameScore(4), resp.Rows[0].ShameScore) // mean of 3 and 5
}

func TestRankingsYesterdayUsesDailyAggregateFastPath(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC))

	require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{
		ParkID: 1, StatDate: "2026-06-19", ShameScore: model.NewShameScore(6),
		TotalDowntimeHours: 2.5, WeightedDowntimeHours: 4, RidesDown: 1, RidesOperating: 9,
	}))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodYesterday, FilterAllParks, 10)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, model.NewShameScore(6), resp.Rows[0].ShameScore)
	assert.Equal(t, 2.5, resp.Rows[0].TotalDowntimeHours)
}

func TestRankingsSevenDaySumsDailyRange(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC))

	for i := 1; i <= 5; i++ {
		date := time.Date(2026, 6, 20-i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{
			ParkID: 1, StatDate: date, ShameScore: model.NewShameScore(2), TotalDowntimeHours: 1,
		}))
	}

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, Period7Day, FilterAllParks, 10)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 5.0, resp.Rows[0].TotalDowntimeHours)
}

func TestRankingsTieBreakOrdering(t *testing.T) {
	parkA := model.Park{ID: 1, Name: "A Park", Timezone: "America/Los_Angeles", IsActive: true}
	parkB := model.Park{ID: 2, Name: "B Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{parkA, parkB}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC))

	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: now.Now(), ParkAppearsOpen: true, ShameScore: model.NewShameScore(5),
	}, nil))
	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 2, RecordedAt: now.Now(), ParkAppearsOpen: true, ShameScore: model.NewShameScore(5),
	}, nil))

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Rankings(ctx, PeriodLive, FilterAllParks, 10)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, int64(1), resp.Rows[0].ParkID) // equal shame score, lower id wins the tie-break
	assert.Equal(t, int64(2), resp.Rows[1].ParkID)
}

func TestChartLiveReturnsFiveMinuteSnapshots(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
			ParkID: 1, RecordedAt: now.Now().Add(time.Duration(-i*5) * time.Minute),
			ParkAppearsOpen: true, ShameScore: model.NewShameScore(float64(i)),
		}, nil))
	}

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Chart(ctx, 1, PeriodLive)
	require.NoError(t, err)
	assert.Len(t, resp.Points, 3)
}

func TestChartSevenDayReturnsDailyPoints(t *testing.T) {
	park := testPark()
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()
	now := clock.NewFixed(time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC))

	for i := 1; i <= 3; i++ {
		date := time.Date(2026, 6, 20-i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: date, ShameScore: model.NewShameScore(1)}))
	}

	eng := New(st, now, testWindows(), true)
	resp, err := eng.Chart(ctx, 1, Period7Day)
	require.NoError(t, err)
	assert.Len(t, resp.Points, 3)
}
