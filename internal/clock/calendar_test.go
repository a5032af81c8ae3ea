// Copyright 2025 James Ross
package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBoundsUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	start, end, err := DayBoundsUTC("2026-06-15", loc)
	require.NoError(t, err)

	// PDT (UTC-7) is in effect in June; local midnight is 07:00 UTC.
	assert.Equal(t, "2026-06-15T07:00:00Z", start.Format(time.RFC3339))
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDayBoundsUTCDSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 2026-03-08 is the DST spring-forward day in the US; the local day
	// is only 23 hours long.
	start, end, err := DayBoundsUTC("2026-03-08", loc)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-08T08:00:00Z", start.Format(time.RFC3339))
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestISOWeekWraparound(t *testing.T) {
	loc := time.UTC
	// 2026-01-01 is a Thursday, so ISO week 1 of 2026 starts Monday
	// 2025-12-29, wrapping into the prior calendar year.
	jan1 := time.Date(2026, 1, 1, 12, 0, 0, 0, loc)
	weekStart := ISOWeekStart(jan1, loc)
	assert.Equal(t, "2025-12-29", weekStart)

	prev, err := PreviousISOWeekStart(weekStart, loc)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-22", prev)
}

func TestMonthStartWraparound(t *testing.T) {
	loc := time.UTC
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, loc)
	assert.Equal(t, "2026-01-01", MonthStart(jan, loc))

	prev, err := PreviousMonthStart("2026-01-01", loc)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", prev)
}

func TestTrendPercent(t *testing.T) {
	v := TrendPercent(150, 100)
	require.NotNil(t, v)
	assert.InDelta(t, 50.0, *v, 0.001)

	assert.Nil(t, TrendPercent(10, 0))
	assert.Nil(t, TrendPercent(10, -5))
}

func TestLocationCache(t *testing.T) {
	c := NewLocationCache()
	loc1, err := c.Get("America/New_York")
	require.NoError(t, err)
	loc2, err := c.Get("America/New_York")
	require.NoError(t, err)
	assert.Same(t, loc1, loc2)

	_, err = c.Get("Not/AZone")
	assert.Error(t, err)
}
