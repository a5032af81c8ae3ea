// Copyright 2025 James Ross
package daily

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wait(v int) *int { return &v }

func TestRunDayProducesRideAndParkRows(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true, IsDisney: true}
	ride := model.Ride{ID: 10, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier1, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	localDate := "2026-06-15"
	dayStart := time.Date(2026, 6, 15, 0, 0, 0, 0, loc).UTC()

	statuses := []model.RideStatus{model.StatusOperating, model.StatusOperating, model.StatusDown, model.StatusOperating}
	for i, status := range statuses {
		ts := dayStart.Add(time.Duration(i*5) * time.Minute)
		open := status == model.StatusOperating
		require.NoError(t, st.WriteCycle(ctx,
			model.ParkActivitySnapshot{ParkID: 1, RecordedAt: ts, ParkAppearsOpen: true},
			[]model.RideStatusSnapshot{{
				RideID: 10, RecordedAt: ts, Status: status, WaitTime: wait(15),
				ComputedIsOpen: open, ParkAppearsOpen: true,
			}},
		))
	}

	agg := New(st, shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}, "v1", 5, nil)
	require.NoError(t, agg.RunDay(ctx, localDate))

	rideRows, err := st.RideDailyRange(ctx, 10, localDate, localDate)
	require.NoError(t, err)
	require.Len(t, rideRows, 1)
	assert.True(t, rideRows[0].RideOperated)
	assert.Equal(t, 5, rideRows[0].DowntimeMinutes) // one down snapshot * 5 min interval
	assert.Equal(t, 2, rideRows[0].StatusChanges)    // operating->down->operating

	parkRow, ok, err := st.ParkDailyOn(ctx, 1, localDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, parkRow.RidesDown)

	session, ok, err := st.OperatingSessionOn(ctx, 1, localDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, session.OperatingMinutes, 0)
}

func TestRunDayNoOperationYieldsZeroDowntime(t *testing.T) {
	park := model.Park{ID: 1, Name: "Closed Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 20, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier2, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	localDate := "2026-01-15"
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	dayStart := time.Date(2026, 1, 15, 0, 0, 0, 0, loc).UTC()

	require.NoError(t, st.WriteCycle(ctx,
		model.ParkActivitySnapshot{ParkID: 1, RecordedAt: dayStart, ParkAppearsOpen: false},
		[]model.RideStatusSnapshot{{RideID: 20, RecordedAt: dayStart, Status: model.StatusClosed, ComputedIsOpen: false, ParkAppearsOpen: false}},
	))

	agg := New(st, shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}, "v1", 5, nil)
	require.NoError(t, agg.RunDay(ctx, localDate))

	rows, err := st.RideDailyRange(ctx, 20, localDate, localDate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].RideOperated)
	assert.Equal(t, 0, rows[0].DowntimeMinutes)
}
