// Copyright 2025 James Ross
package hourly

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

func testWindows() shame.Windows {
	return shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}
}

func wait(v int) *int { return &v }

func TestRunHourAggregatesDownSnapshots(t *testing.T) {
	park := model.Park{ID: 1, Name: "Magic Kingdom", Timezone: "America/Los_Angeles", IsDisney: true, IsActive: true}
	ride := model.Ride{ID: 10, ParkID: 1, Name: "Space Mountain", Category: model.CategoryAttraction, Tier: model.Tier1, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	hourStart := time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC) // 11am Pacific
	for i := 0; i < 3; i++ {
		ts := hourStart.Add(time.Duration(i*5) * time.Minute)
		status := model.StatusOperating
		open := true
		if i == 2 {
			status = model.StatusDown
			open = false
		}
		require.NoError(t, st.WriteCycle(ctx,
			model.ParkActivitySnapshot{ParkID: 1, RecordedAt: ts, ParkAppearsOpen: true, ShameScore: model.NewShameScore(float64(i))},
			[]model.RideStatusSnapshot{{
				RideID: 10, RecordedAt: ts, Status: status, WaitTime: wait(20),
				ComputedIsOpen: open, ParkAppearsOpen: true,
			}},
		))
	}

	agg := New(st, testWindows(), "v1", 5, nil)
	require.NoError(t, agg.RunHour(ctx, hourStart))

	rows, err := st.RideHourlyRange(ctx, 10, hourStart, hourStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].SnapshotCount)
	assert.Equal(t, 2, rows[0].OperatingSnapshots)
	assert.Equal(t, 1, rows[0].DownSnapshots)
	assert.True(t, rows[0].RideOperated)

	parkRows, err := st.ParkHourlyRange(ctx, 1, hourStart, hourStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, parkRows, 1)
	assert.Equal(t, 1, parkRows[0].RidesDown)
	assert.Equal(t, 1, parkRows[0].RidesOperating)
	assert.True(t, parkRows[0].ParkWasOpen)
}

func TestRunHourIsIdempotent(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier2, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	hourStart := time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC)
	require.NoError(t, st.WriteCycle(ctx,
		model.ParkActivitySnapshot{ParkID: 1, RecordedAt: hourStart, ParkAppearsOpen: true},
		[]model.RideStatusSnapshot{{RideID: 10, RecordedAt: hourStart, Status: model.StatusOperating, ComputedIsOpen: true, ParkAppearsOpen: true}},
	))

	agg := New(st, testWindows(), "v1", 5, nil)
	require.NoError(t, agg.RunHour(ctx, hourStart))
	require.NoError(t, agg.RunHour(ctx, hourStart))

	rows, err := st.RideHourlyRange(ctx, 10, hourStart, hourStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
