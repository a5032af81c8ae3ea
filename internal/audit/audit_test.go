// Copyright 2025 James Ross
package audit

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/aggregate/daily"
	"github.com/czei/themeparkhallofshame/internal/aggregate/hourly"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuditConfig() config.Audit {
	return config.Audit{
		RideDailyMinutesTolerance:    10,
		ParkDailyHoursTolerance:      0.17,
		ParkDailyRidesTolerance:      1,
		RideHourlyHoursTolerance:     0.1,
		RideHourlyPercentTolerance:   2,
		ParkHourlyShameTolerance:     0.3,
		ParkHourlyHoursTolerance:     0.25,
		IntervalConsistencyTolerance: 0.2,
		CriticalRideDailyMismatches:  10,
		CriticalParkDailyMismatches:  5,
		CriticalRideHourlyMismatches: 10,
		CriticalParkHourlyMismatches: 5,
		CriticalRideDailyMissing:     5,
		CriticalParkDailyMissing:     2,
		CriticalRideHourlyMissing:    5,
		CriticalParkHourlyMissing:    2,
	}
}

func TestVerifyDateAgreesWithFreshAggregates(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true, IsDisney: true}
	ride := model.Ride{ID: 10, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier1, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	base := time.Date(2026, 6, 20, 10, 0, 0, 0, loc).UTC()

	for i := 0; i < 3; i++ {
		recorded := base.Add(time.Duration(i*5) * time.Minute)
		status := model.StatusOperating
		if i == 1 {
			status = model.StatusDown
		}
		require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
			ParkID: 1, RecordedAt: recorded, RidesOpen: 1, ParkAppearsOpen: true, ShameScore: model.NewShameScore(1),
		}, []model.RideStatusSnapshot{
			{RideID: 10, RecordedAt: recorded, Status: status, ComputedIsOpen: status == model.StatusOperating, ParkAppearsOpen: true},
		}))
	}

	hourlyAgg := hourly.New(st, testWindows(), "v1", 5, nil)
	require.NoError(t, hourlyAgg.RunHour(ctx, base.Truncate(time.Hour)))
	dailyAgg := daily.New(st, testWindows(), "v1", 5, nil)
	require.NoError(t, dailyAgg.RunDay(ctx, "2026-06-20"))

	v := New(st, testAuditConfig(), testWindows(), "v1", 5)
	report, err := v.VerifyDate(ctx, "2026-06-20")
	require.NoError(t, err)

	assert.Equal(t, SeverityOK, report.RideDaily.Severity)
	assert.Equal(t, SeverityOK, report.ParkDaily.Severity)
	assert.Equal(t, SeverityOK, report.RideHourly.Severity)
	assert.Equal(t, SeverityOK, report.ParkHourly.Severity)
}

func TestVerifyDateFlagsStaleStoredDailyRow(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	ride := model.Ride{ID: 10, ParkID: 1, Category: model.CategoryAttraction, Tier: model.Tier1, IsActive: true}
	st := store.NewMemory([]model.Park{park}, []model.Ride{ride})
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	base := time.Date(2026, 6, 20, 10, 0, 0, 0, loc).UTC()

	for i := 0; i < 3; i++ {
		recorded := base.Add(time.Duration(i*5) * time.Minute)
		require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
			ParkID: 1, RecordedAt: recorded, RidesOpen: 1, ParkAppearsOpen: true, ShameScore: model.NewShameScore(0),
		}, []model.RideStatusSnapshot{
			{RideID: 10, RecordedAt: recorded, Status: model.StatusOperating, ComputedIsOpen: true, ParkAppearsOpen: true},
		}))
	}

	// A stale/incorrect stored row, far outside tolerance of the recompute.
	require.NoError(t, st.UpsertRideDaily(ctx, model.RideDaily{
		RideID: 10, StatDate: "2026-06-20", DowntimeMinutes: 9999, RideOperated: true,
	}))

	v := New(st, testAuditConfig(), testWindows(), "v1", 5)
	report, err := v.VerifyDate(ctx, "2026-06-20")
	require.NoError(t, err)

	require.NotEmpty(t, report.RideDaily.Mismatches)
	assert.Equal(t, SeverityWarning, report.RideDaily.Severity)
}

func TestVerifyDateFlagsMissingParkDailyRow(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	base := time.Date(2026, 6, 20, 10, 0, 0, 0, loc).UTC()
	require.NoError(t, st.WriteCycle(ctx, model.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: base, RidesOpen: 0, ParkAppearsOpen: true, ShameScore: model.NewShameScore(0),
	}, nil))

	v := New(st, testAuditConfig(), testWindows(), "v1", 5)
	report, err := v.VerifyDate(ctx, "2026-06-20")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ParkDaily.Missing)
}

func testWindows() shame.Windows {
	return shame.Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}
}
