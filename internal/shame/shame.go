// Copyright 2025 James Ross

// Package shame implements the canonical shame-score formula: the
// park-type-aware "is this ride down" predicate, the effective denominator
// that excludes seasonally-closed rides, and the score itself. It is called
// from the collector at snapshot time, from the hourly/daily aggregators,
// and from the audit recomputation path — all three must agree bit-for-bit,
// which is why the formula lives in exactly one place.
package shame

import (
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
)

// Windows holds the park-type-aware operating-recency windows used by
// EffectiveParkWeight.
type Windows struct {
	DisneyUniversal time.Duration
	Other           time.Duration
	ExtraOperators  []string
}

// WindowFor returns the operating-recency window that applies to park.
func (w Windows) WindowFor(park model.Park) time.Duration {
	if park.ParkTypeAware(w.ExtraOperators) {
		return w.DisneyUniversal
	}
	return w.Other
}

// RideState is the minimal per-ride input IsDown needs: the ride's static
// attributes plus the live snapshot fields relevant to downtime.
type RideState struct {
	Ride              model.Ride
	Status            model.RideStatus
	ComputedIsOpen    bool
	HasOperatedPeriod bool // ride operated at least once during the period under evaluation
}

// IsDown implements §4.5's park-type-aware down predicate. parkAppearsOpen
// gates every branch: a down state only counts when the park itself is
// open.
func IsDown(rs RideState, park model.Park, windows Windows, parkAppearsOpen bool) bool {
	if !parkAppearsOpen || !rs.HasOperatedPeriod {
		return false
	}
	if !rs.Ride.FeedsRanking() {
		return false
	}
	if park.ParkTypeAware(windows.ExtraOperators) {
		return rs.Status == model.StatusDown
	}
	if rs.Status == model.StatusDown || rs.Status == model.StatusClosed {
		return true
	}
	return rs.Status == "" && !rs.ComputedIsOpen
}

// EffectiveParkWeight sums tier weights of rides that are active,
// ATTRACTION-category, and have operated within the park-type-appropriate
// window ending at t. This is what prevents seasonal closures from padding
// the denominator (§4.5).
func EffectiveParkWeight(park model.Park, rides []model.Ride, t time.Time, windows Windows) int {
	window := windows.WindowFor(park)
	total := 0
	for _, r := range rides {
		if !r.IsActive || !r.FeedsRanking() {
			continue
		}
		if !r.HasOperatedWithin(t, window) {
			continue
		}
		total += model.TierWeight(r.Tier)
	}
	return total
}

// FullRosterWeight sums tier weights of every active ATTRACTION-category
// ride regardless of recency, for rollback and cross-check purposes (§4.5).
func FullRosterWeight(rides []model.Ride) int {
	total := 0
	for _, r := range rides {
		if !r.IsActive || !r.FeedsRanking() {
			continue
		}
		total += model.TierWeight(r.Tier)
	}
	return total
}

// Score computes shame(park, t) = round(numerator/denominator * 10, 1dp),
// or 0 when denominator is 0. numerator is the sum of tier weights of rides
// for which IsDown is true.
func Score(numerator, denominator int) model.ShameScore {
	if denominator == 0 {
		return model.NewShameScore(0)
	}
	raw := float64(numerator) / float64(denominator) * 10
	return model.NewShameScore(raw)
}

// ScoreForPark computes numerator and score for a park given the live
// states of its rides at instant t.
func ScoreForPark(park model.Park, states []RideState, windows Windows, parkAppearsOpen bool, rides []model.Ride, t time.Time) model.ShameScore {
	numerator := 0
	for _, rs := range states {
		if IsDown(rs, park, windows, parkAppearsOpen) {
			numerator += model.TierWeight(rs.Ride.Tier)
		}
	}
	denominator := EffectiveParkWeight(park, rides, t, windows)
	return Score(numerator, denominator)
}
