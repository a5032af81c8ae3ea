// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParkAndRide() (model.Park, model.Ride) {
	park := model.Park{ID: 1, Name: "Test Park", IsActive: true, IsDisney: true}
	ride := model.Ride{ID: 10, ParkID: 1, Name: "Test Ride", Category: model.CategoryAttraction, IsActive: true}
	return park, ride
}

func TestMemoryWriteCycleRejectsDuplicateTimestamp(t *testing.T) {
	park, ride := testParkAndRide()
	m := NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	parkSnap := model.ParkActivitySnapshot{ParkID: 1, RecordedAt: now, ParkAppearsOpen: true}
	rideSnap := model.RideStatusSnapshot{RideID: 10, RecordedAt: now, Status: model.StatusOperating, ComputedIsOpen: true}

	require.NoError(t, m.WriteCycle(ctx, parkSnap, []model.RideStatusSnapshot{rideSnap}))
	err := m.WriteCycle(ctx, parkSnap, []model.RideStatusSnapshot{rideSnap})
	assert.Error(t, err)
}

func TestMemoryWriteCycleTouchesLastOperatedAt(t *testing.T) {
	park, ride := testParkAndRide()
	m := NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	parkSnap := model.ParkActivitySnapshot{ParkID: 1, RecordedAt: now, ParkAppearsOpen: true}
	rideSnap := model.RideStatusSnapshot{RideID: 10, RecordedAt: now, Status: model.StatusOperating, ComputedIsOpen: true}
	require.NoError(t, m.WriteCycle(ctx, parkSnap, []model.RideStatusSnapshot{rideSnap}))

	rides, err := m.GetRidesByPark(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.True(t, rides[0].LastOperatedAt.Equal(now))
}

func TestMemorySnapshotsInRangeFiltersByHalfOpenWindow(t *testing.T) {
	park, ride := testParkAndRide()
	m := NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()
	base := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.WriteCycle(ctx,
			model.ParkActivitySnapshot{ParkID: 1, RecordedAt: ts, ParkAppearsOpen: true},
			[]model.RideStatusSnapshot{{RideID: 10, RecordedAt: ts, Status: model.StatusOperating, ComputedIsOpen: true}},
		))
	}

	snaps, err := m.RideSnapshotsInRange(ctx, 10, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestMemoryDeleteSnapshotsBeforeCutoff(t *testing.T) {
	park, ride := testParkAndRide()
	m := NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()
	base := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.WriteCycle(ctx,
			model.ParkActivitySnapshot{ParkID: 1, RecordedAt: ts, ParkAppearsOpen: true},
			[]model.RideStatusSnapshot{{RideID: 10, RecordedAt: ts, Status: model.StatusOperating, ComputedIsOpen: true}},
		))
	}

	n, err := m.DeleteSnapshotsBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n) // 2 ride + 2 park snapshots before cutoff

	remaining, err := m.RideSnapshotsInRange(ctx, 10, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMemoryAggregationJobLifecycle(t *testing.T) {
	m := NewMemory(nil, nil)
	ctx := context.Background()
	windowEnd := time.Date(2026, 6, 15, 1, 0, 0, 0, time.UTC)

	id, err := m.StartAggregationJob(ctx, model.JobHourly, windowEnd)
	require.NoError(t, err)

	_, found, err := m.LastSuccessfulHourlyWindowEnd(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.FinishAggregationJob(ctx, id, model.AggregationSuccess, 2, 20, ""))

	got, found, err := m.LastSuccessfulHourlyWindowEnd(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(windowEnd))
}

func TestMemoryClassificationSeedRoundTrips(t *testing.T) {
	m := NewMemory(nil, nil)
	ctx := context.Background()

	m.SeedClassifications(
		[]model.ClassificationOverride{{ParkID: 1, RideID: 2, Tier: model.Tier1, Category: model.CategoryAttraction}},
		[]model.ClassificationEntry{{ParkID: 1, RideID: 3, Tier: model.Tier2, Category: model.CategoryAttraction, SchemaVersion: 5}},
	)

	overrides, err := m.ListClassificationOverrides(ctx)
	require.NoError(t, err)
	assert.Len(t, overrides, 1)

	entries, err := m.ListClassifications(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].SchemaVersion)
}
