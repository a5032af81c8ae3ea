// Copyright 2025 James Ross
package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Anomaly {
	return config.Anomaly{
		ZScoreBaselineDays:        30,
		ZScoreMinObservations:     7,
		ZScoreWarnThreshold:       3,
		ZScoreCriticalThreshold:   4,
		RideDowntimeCriticalHours: 2,
		SuddenChangeWarnPercent:   200,
		SuddenChangeMinPriorScore: 0.1,
		RideCountWarnRatio:        0.5,
		RideCountCriticalRatio:    0.25,
		RideCountBaselineDays:     14,
	}
}

// dateMinus returns "2026-06-21" minus i days, formatted YYYY-MM-DD.
func dateMinus(i int) string {
	base := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, -i).Format("2006-01-02")
}

func TestZScoreFlagsParkShameOutlier(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		score := 2.0
		if i%2 == 0 {
			score = 2.2
		}
		require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: dateMinus(i), ShameScore: model.NewShameScore(score)}))
	}
	require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: "2026-06-21", ShameScore: model.NewShameScore(9)}))

	det := New(st, testConfig())
	findings, err := det.RunDay(ctx, "2026-06-21")
	require.NoError(t, err)

	found := false
	for _, f := range findings {
		if f.Detector == "park_shame_zscore" {
			found = true
			assert.Equal(t, SeverityCritical, f.Severity)
		}
	}
	assert.True(t, found, "expected a park_shame_zscore finding for a 9.0 score against a steady 2.0 baseline")
}

func TestDataQualityFlagsMissingDailyRow(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()

	det := New(st, testConfig())
	findings, err := det.RunDay(ctx, "2026-06-21")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "data_quality", findings[0].Detector)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
}

func TestDataQualityFlagsRideCountDrop(t *testing.T) {
	park := model.Park{ID: 1, Name: "Test Park", Timezone: "America/Los_Angeles", IsActive: true}
	st := store.NewMemory([]model.Park{park}, nil)
	ctx := context.Background()

	for i := 1; i <= 14; i++ {
		require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: dateMinus(i), ShameScore: model.NewShameScore(1), RidesOperating: 10}))
	}
	require.NoError(t, st.UpsertParkDaily(ctx, model.ParkDaily{ParkID: 1, StatDate: "2026-06-21", ShameScore: model.NewShameScore(1), RidesOperating: 2}))

	det := New(st, testConfig())
	findings, err := det.RunDay(ctx, "2026-06-21")
	require.NoError(t, err)

	found := false
	for _, f := range findings {
		if f.Detector == "data_quality" {
			found = true
			assert.Equal(t, SeverityCritical, f.Severity)
		}
	}
	assert.True(t, found, "expected a data_quality finding for rides_operating dropping to 2 against a steady baseline of 10")
}
