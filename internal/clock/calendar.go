// Copyright 2025 James Ross
package clock

import (
	"fmt"
	"time"
)

// DefaultTimezone is the park-local zone used whenever a component needs
// "the" calendar day and no per-park timezone is available (the cmd/
// binaries use it as the reference zone for their run dates).
const DefaultTimezone = "America/Los_Angeles"

// LocalDate formats t in the named IANA zone as a YYYY-MM-DD calendar date.
// loc must already be resolved via time.LoadLocation; callers cache the
// *time.Location per park rather than re-resolving it per call.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DayBoundsUTC converts a local calendar date (YYYY-MM-DD) in loc to the
// [start, end) UTC instant pair spanning that local day. end is exclusive,
// i.e. the instant of the following local midnight.
func DayBoundsUTC(localDate string, loc *time.Location) (start, end time.Time, err error) {
	d, err := time.ParseInLocation("2006-01-02", localDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse local date %q: %w", localDate, err)
	}
	start = d.UTC()
	end = d.AddDate(0, 0, 1).UTC()
	return start, end, nil
}

// HourBoundsUTC returns the [start, end) UTC instant pair for the hour
// beginning at hourStart (hourStart is truncated to the hour boundary).
func HourBoundsUTC(hourStart time.Time) (start, end time.Time) {
	start = hourStart.UTC().Truncate(time.Hour)
	end = start.Add(time.Hour)
	return start, end
}

// ISOWeekStart returns the UTC-anchored local date (YYYY-MM-DD) of the
// Monday beginning the ISO week containing t in loc.
func ISOWeekStart(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	offset := int(local.Weekday())
	if offset == 0 { // Sunday
		offset = 7
	}
	monday := local.AddDate(0, 0, -(offset - 1))
	return monday.Format("2006-01-02")
}

// PreviousISOWeekStart returns the Monday of the ISO week immediately
// preceding the week starting at weekStart (YYYY-MM-DD), correctly wrapping
// across the week-1 / week-52-or-53 year boundary because it operates on
// the calendar date directly rather than on an (ISO year, week number)
// pair.
func PreviousISOWeekStart(weekStart string, loc *time.Location) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", weekStart, loc)
	if err != nil {
		return "", fmt.Errorf("parse week start %q: %w", weekStart, err)
	}
	return d.AddDate(0, 0, -7).Format("2006-01-02"), nil
}

// MonthStart returns the first-of-month local date (YYYY-MM-01) containing
// t in loc.
func MonthStart(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).Format("2006-01-02")
}

// PreviousMonthStart returns the first-of-month local date immediately
// preceding monthStart (YYYY-MM-01).
func PreviousMonthStart(monthStart string, loc *time.Location) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", monthStart, loc)
	if err != nil {
		return "", fmt.Errorf("parse month start %q: %w", monthStart, err)
	}
	prev := d.AddDate(0, -1, 0)
	return time.Date(prev.Year(), prev.Month(), 1, 0, 0, 0, 0, loc).Format("2006-01-02"), nil
}

// TrendPercent computes the signed percent change of current vs previous,
// to 2 decimals, returning nil when previous is zero or negative (undefined
// per §4.7).
func TrendPercent(current, previous float64) *float64 {
	if previous <= 0 {
		return nil
	}
	pct := (current - previous) / previous * 100
	rounded := roundTo(pct, 2)
	return &rounded
}

func roundTo(v float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	if v >= 0 {
		return float64(int64(v*mult+0.5)) / mult
	}
	return float64(int64(v*mult-0.5)) / mult
}

// LocationCache resolves and caches *time.Location by IANA name so
// components iterating many parks in the same timezone (§4.4) don't
// re-parse zoneinfo on every lookup.
type LocationCache struct {
	locs map[string]*time.Location
}

// NewLocationCache returns an empty cache.
func NewLocationCache() *LocationCache {
	return &LocationCache{locs: make(map[string]*time.Location)}
}

// Get resolves name, caching the result. Returns an error if the IANA zone
// is invalid, per the Park invariant in §3.
func (c *LocationCache) Get(name string) (*time.Location, error) {
	if loc, ok := c.locs[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	c.locs[name] = loc
	return loc, nil
}
