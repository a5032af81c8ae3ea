// Copyright 2025 James Ross
package shame

import (
	"testing"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disneyPark() model.Park {
	return model.Park{ID: 1, Name: "Magic Kingdom", IsDisney: true, Operator: "Disney"}
}

func otherPark() model.Park {
	return model.Park{ID: 2, Name: "Cedar Point", Operator: "Cedar Fair"}
}

func windows() Windows {
	return Windows{DisneyUniversal: 7 * 24 * time.Hour, Other: 3 * 24 * time.Hour}
}

func TestIsDownDisneyClosedIsNotDowntime(t *testing.T) {
	park := disneyPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusClosed, HasOperatedPeriod: true}
	assert.False(t, IsDown(rs, park, windows(), true))
}

func TestIsDownDisneyDownIsDowntime(t *testing.T) {
	park := disneyPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusDown, HasOperatedPeriod: true}
	assert.True(t, IsDown(rs, park, windows(), true))
}

func TestIsDownOtherOperatorClosedIsDowntime(t *testing.T) {
	park := otherPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusClosed, HasOperatedPeriod: true}
	assert.True(t, IsDown(rs, park, windows(), true))
}

func TestIsDownOtherOperatorNullStatusNotOpen(t *testing.T) {
	park := otherPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusUnknown, ComputedIsOpen: false, HasOperatedPeriod: true}
	assert.True(t, IsDown(rs, park, windows(), true))
}

func TestIsDownParkNotOpenNeverCountsDowntime(t *testing.T) {
	park := disneyPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusDown, HasOperatedPeriod: true}
	assert.False(t, IsDown(rs, park, windows(), false))
}

func TestIsDownShowCategoryNeverDown(t *testing.T) {
	park := otherPark()
	ride := model.Ride{ID: 1, Tier: model.Tier1, Category: model.CategoryShow, IsActive: true}
	rs := RideState{Ride: ride, Status: model.StatusDown, HasOperatedPeriod: true}
	assert.False(t, IsDown(rs, park, windows(), true))
}

func TestEffectiveParkWeightExcludesSeasonalClosure(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	park := disneyPark()
	rides := []model.Ride{
		{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now},
		{ID: 2, Tier: model.Tier2, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	w := EffectiveParkWeight(park, rides, now, windows())
	assert.Equal(t, 3, w) // only ride 1 (tier1=3) counts; ride 2 last operated 30d ago, outside 7d window
}

func TestEffectiveParkWeightOtherOperatorShorterWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	park := otherPark()
	rides := []model.Ride{
		{ID: 1, Tier: model.Tier1, Category: model.CategoryAttraction, IsActive: true, LastOperatedAt: now.Add(-4 * 24 * time.Hour)},
	}
	w := EffectiveParkWeight(park, rides, now, windows())
	assert.Equal(t, 0, w) // 4 days ago exceeds the 3-day "other operators" window
}

func TestScoreZeroDenominatorNeverNaN(t *testing.T) {
	s := Score(5, 0)
	assert.Equal(t, model.ShameScore(0), s)
}

func TestScoreRoundsToOneDecimal(t *testing.T) {
	s := Score(3, 10) // 3/10*10 = 3.0
	require.Equal(t, 3.0, s.Float64())

	s2 := Score(1, 3) // 1/3*10 = 3.333...
	assert.InDelta(t, 3.3, s2.Float64(), 0.001)
}

func TestScoreClampedToTen(t *testing.T) {
	s := Score(100, 10) // would be 100.0 without clamping
	assert.Equal(t, 10.0, s.Float64())
}
