// Copyright 2025 James Ross
package weekly

import (
	"context"
	"testing"

	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWeekSumsDailyRows(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier1, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	dates := []string{"2026-06-15", "2026-06-16", "2026-06-17", "2026-06-18", "2026-06-19", "2026-06-20", "2026-06-21"}
	for _, d := range dates {
		require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{
			ParkID: 1, StatDate: d, ShameScore: model.NewShameScore(2), TotalDowntimeHours: 1, WeightedDowntimeHours: 3,
		}))
		require.NoError(t, st.UpsertRideDaily(ctx, model.RideDaily{
			RideID: 10, StatDate: d, DowntimeMinutes: 60, OperatingHoursMinutes: 600, UptimeMinutes: 540, RideOperated: true,
		}))
	}

	agg := New(st, "v1", nil)
	require.NoError(t, agg.RunWeek(ctx, "2026-06-15"))

	parkRows, err := st.ParkPeriodicRange(ctx, 1, model.PeriodWeekly, "2026-06-15", "2026-06-15")
	require.NoError(t, err)
	require.Len(t, parkRows, 1)
	assert.Equal(t, 7.0, parkRows[0].TotalDowntimeHours)
	assert.Nil(t, parkRows[0].TrendVsPrevious) // no previous week stored

	rideRow, found, err := st.RidePeriodicOn(ctx, 10, model.PeriodWeekly, "2026-06-15")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7.0, rideRow.TotalDowntimeHours)
}

func TestRunWeekComputesTrendAgainstPreviousWeek(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()

	require.NoError(t, st.UpsertParkPeriodic(ctx, model.ParkPeriodic{
		ParkID: 1, Kind: model.PeriodWeekly, PeriodStart: "2026-06-08", TotalDowntimeHours: 5,
	}))
	require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: "2026-06-15", TotalDowntimeHours: 10}))

	agg := New(st, "v1", nil)
	require.NoError(t, agg.RunWeek(ctx, "2026-06-15"))

	rows, err := st.ParkPeriodicRange(ctx, 1, model.PeriodWeekly, "2026-06-15", "2026-06-15")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].TrendVsPrevious)
	assert.Equal(t, 100.0, *rows[0].TrendVsPrevious) // doubled from 5h to 10h
}
