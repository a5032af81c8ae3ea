// Copyright 2025 James Ross
package collector

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/breaker"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	byPark map[int64]ParkObservation
	errs   map[int64]error
	calls  int
}

func (f *fakeFetcher) FetchPark(ctx context.Context, park model.Park) (ParkObservation, error) {
	f.calls++
	if err, ok := f.errs[park.ID]; ok {
		return ParkObservation{}, err
	}
	return f.byPark[park.ID], nil
}

func testCollectorConfig() config.Collector {
	return config.Collector{
		SnapshotIntervalMinutes: 5,
		WorkerPoolSize:          4,
		FetchTimeout:            time.Second,
		MaxRetriesPerPark:       2,
		RetryBackoff:            time.Millisecond,
		BreakerWindow:           10 * time.Minute,
		BreakerCooldown:         5 * time.Minute,
		BreakerFailureThreshold: 0.8,
		BreakerMinSamples:       4,
	}
}

func testWindows() shame.Windows {
	return shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}
}

func TestRunCycleWritesSnapshotsForSuccessfulParks(t *testing.T) {
	now := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	park := model.Park{ID: 1, VendorID: "magic-kingdom", Name: "Magic Kingdom", Timezone: "America/Los_Angeles", IsActive: true, IsDisney: true}
	ride := model.Ride{ID: 10, VendorID: "space-mountain", ParkID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now.Add(-time.Hour)}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})

	wait := 20
	fetcher := &fakeFetcher{byPark: map[int64]ParkObservation{
		1: {ScheduleOpen: true, Rides: []RideObservation{
			{VendorID: "space-mountain", Status: model.StatusOperating, WaitTime: &wait},
		}},
	}}

	c := New(st, fetcher, clock.NewFixed(now), testCollectorConfig(), testWindows(), nil, nil)
	require.NoError(t, c.RunCycle(context.Background()))

	snaps, err := st.ParkSnapshotsInRange(context.Background(), 1, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].RidesOpen)
	assert.True(t, snaps[0].ParkAppearsOpen)

	rideSnaps, err := st.RideSnapshotsInRange(context.Background(), 10, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rideSnaps, 1)
	assert.True(t, rideSnaps[0].ComputedIsOpen)
}

func TestRunCycleSkipsParkOnFetchFailure(t *testing.T) {
	now := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	parkOK := model.Park{ID: 1, VendorID: "ok-park", Name: "OK Park", Timezone: "America/Los_Angeles", IsActive: true}
	parkBad := model.Park{ID: 2, VendorID: "bad-park", Name: "Bad Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, VendorID: "r1", ParkID: 1, Tier: model.Tier2, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now}
	st := store.NewMemory([]model.Park{parkOK, parkBad}, []model.Ride{ride})

	fetcher := &fakeFetcher{
		byPark: map[int64]ParkObservation{
			1: {ScheduleOpen: true, Rides: []RideObservation{{VendorID: "r1", Status: model.StatusOperating}}},
		},
		errs: map[int64]error{2: assert.AnError},
	}

	c := New(st, fetcher, clock.NewFixed(now), testCollectorConfig(), testWindows(), nil, nil)
	require.NoError(t, c.RunCycle(context.Background()))

	okSnaps, err := st.ParkSnapshotsInRange(context.Background(), 1, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, okSnaps, 1)

	badSnaps, err := st.ParkSnapshotsInRange(context.Background(), 2, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, badSnaps, "a failed fetch must not produce a synthetic snapshot")
}

func TestRunCycleIgnoresUnknownVendorRide(t *testing.T) {
	now := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	park := model.Park{ID: 1, VendorID: "p1", Name: "Park One", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, VendorID: "known-ride", ParkID: 1, Tier: model.Tier2, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})

	fetcher := &fakeFetcher{byPark: map[int64]ParkObservation{
		1: {ScheduleOpen: true, Rides: []RideObservation{
			{VendorID: "known-ride", Status: model.StatusOperating},
			{VendorID: "mystery-ride", Status: model.StatusDown},
		}},
	}}

	c := New(st, fetcher, clock.NewFixed(now), testCollectorConfig(), testWindows(), nil, nil)
	require.NoError(t, c.RunCycle(context.Background()))

	parkSnaps, err := st.ParkSnapshotsInRange(context.Background(), 1, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, parkSnaps, 1)
	assert.Equal(t, 1, parkSnaps[0].TotalRidesTracked, "the unmatched vendor id must not count toward the park's ride total")
}

func TestRunCycleOpensBreakerAfterRepeatedFailures(t *testing.T) {
	now := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	park := model.Park{ID: 1, VendorID: "bad-park", Name: "Bad Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, VendorID: "r1", ParkID: 1, Tier: model.Tier2, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})

	fetcher := &fakeFetcher{errs: map[int64]error{1: assert.AnError}}
	cfg := testCollectorConfig()
	cfg.MaxRetriesPerPark = 0
	cfg.BreakerMinSamples = 2
	cfg.BreakerFailureThreshold = 0.5
	cfg.BreakerCooldown = time.Hour

	c := New(st, fetcher, clock.NewFixed(now), cfg, testWindows(), nil, nil)
	require.NoError(t, c.RunCycle(context.Background()))
	require.NoError(t, c.RunCycle(context.Background()))

	cb := c.breakerFor(1)
	assert.Equal(t, breaker.Open, cb.State(), "two straight failures at minSamples=2 should trip the breaker open")

	require.NoError(t, c.RunCycle(context.Background()))
	assert.Equal(t, 2, fetcher.calls, "a third cycle must not call the fetcher while the breaker is open")
}
