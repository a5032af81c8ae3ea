// Copyright 2025 James Ross

// Package store abstracts the relational database behind a Store interface
// (§2 C13) so Postgres is the default wiring but tests and the audit suite
// can run against an in-memory fake without touching the network.
package store

import (
	"context"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
)

// Store is the full persistence surface consumed by the collector,
// aggregators, query engine, audit, and anomaly detector.
type Store interface {
	// Parks and rides.
	GetActiveParks(ctx context.Context) ([]model.Park, error)
	GetPark(ctx context.Context, parkID int64) (model.Park, error)
	GetRidesByPark(ctx context.Context, parkID int64) ([]model.Ride, error)
	GetActiveRides(ctx context.Context) ([]model.Ride, error)
	TouchRideOperated(ctx context.Context, rideID int64, at time.Time) error

	// Observation store (C3).
	WriteCycle(ctx context.Context, park model.ParkActivitySnapshot, rides []model.RideStatusSnapshot) error
	RideSnapshotsInRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideStatusSnapshot, error)
	ParkSnapshotsInRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkActivitySnapshot, error)
	RideSnapshotsForPark(ctx context.Context, parkID int64, start, end time.Time) (map[int64][]model.RideStatusSnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Hourly aggregates (C4).
	UpsertRideHourly(ctx context.Context, row model.RideHourly) error
	UpsertParkHourly(ctx context.Context, row model.ParkHourly) error
	RideHourlyRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideHourly, error)
	ParkHourlyRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkHourly, error)

	// Daily aggregates (C5).
	UpsertRideDaily(ctx context.Context, row model.RideDaily) error
	UpsertParkDaily(ctx context.Context, row model.ParkDaily) error
	UpsertOperatingSession(ctx context.Context, row model.OperatingSession) error
	RideDailyRange(ctx context.Context, rideID int64, startDate, endDate string) ([]model.RideDaily, error)
	ParkDailyRange(ctx context.Context, parkID int64, startDate, endDate string) ([]model.ParkDaily, error)
	ParkDailyOn(ctx context.Context, parkID int64, date string) (model.ParkDaily, bool, error)
	OperatingSessionOn(ctx context.Context, parkID int64, date string) (model.OperatingSession, bool, error)

	// Weekly/monthly rollups (C6).
	UpsertRidePeriodic(ctx context.Context, row model.RidePeriodic) error
	UpsertParkPeriodic(ctx context.Context, row model.ParkPeriodic) error
	ParkPeriodicRange(ctx context.Context, parkID int64, kind model.PeriodKind, startPeriod, endPeriod string) ([]model.ParkPeriodic, error)
	RidePeriodicOn(ctx context.Context, rideID int64, kind model.PeriodKind, periodStart string) (model.RidePeriodic, bool, error)
	ParkPeriodicOn(ctx context.Context, parkID int64, kind model.PeriodKind, periodStart string) (model.ParkPeriodic, bool, error)

	// Classification (C2 source, consumed by internal/classify).
	ListClassificationOverrides(ctx context.Context) ([]model.ClassificationOverride, error)
	ListClassifications(ctx context.Context) ([]model.ClassificationEntry, error)

	// Aggregation job bookkeeping (used for job status and retention
	// gating; the query engine does not read it).
	StartAggregationJob(ctx context.Context, jobType model.AggregationJobType, windowEnd time.Time) (int64, error)
	FinishAggregationJob(ctx context.Context, id int64, status model.AggregationStatus, parksProcessed, ridesProcessed int, jobErr string) error
	LatestAggregationLog(ctx context.Context, jobType model.AggregationJobType) (model.AggregationLog, bool, error)
	LastSuccessfulHourlyWindowEnd(ctx context.Context) (time.Time, bool, error)

	Close() error
}

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }
