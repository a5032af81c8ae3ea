// Copyright 2025 James Ross

// Package collector implements the bounded-concurrency polling cycle (§4.10):
// fetch every active park's ride-status feed over a fixed worker pool, turn
// each successful fetch into one ParkActivitySnapshot plus one
// RideStatusSnapshot per tracked ride stamped with the same recorded_at, and
// write them atomically through store.WriteCycle. A single park's failure
// never blocks or is backfilled with synthetic data for the rest of the
// cycle.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/czei/themeparkhallofshame/internal/breaker"
	"github.com/czei/themeparkhallofshame/internal/classify"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"go.uber.org/zap"
)

// RideObservation is one ride's raw reading from a single park fetch,
// keyed by the upstream vendor id rather than our internal ride id — the
// Collector resolves vendor id to Ride via the park's stored roster.
type RideObservation struct {
	VendorID       string
	Status         model.RideStatus
	WaitTime       *int
	IsOpenUpstream *bool
	LastUpdatedAPI time.Time
}

// ParkObservation is one park's raw reading from a single fetch.
type ParkObservation struct {
	ScheduleOpen bool // the park's published schedule currently covers this instant
	Rides        []RideObservation
}

// Fetcher retrieves the current ride-status feed for one park. Implementations
// must respect ctx cancellation/deadline; the Collector applies its own
// per-park timeout and retry budget around every call.
type Fetcher interface {
	FetchPark(ctx context.Context, park model.Park) (ParkObservation, error)
}

// Collector runs collection cycles over every active park.
type Collector struct {
	store    store.Store
	fetch    Fetcher
	clk      clock.Clock
	cfg      config.Collector
	windows  shame.Windows
	log      *zap.Logger
	classify *classify.Cache

	breakersMu sync.Mutex
	breakers   map[int64]*breaker.CircuitBreaker
}

// New returns a Collector. log may be nil, in which case a no-op logger is
// used. classifyCache may be nil, in which case the stored Ride.Tier/Category
// columns are used as-is; when set, its per-ride lookup (override →
// classifier cache → default) fills in Tier only for rides whose stored
// tier is TierUnknown, and Category always comes from the stored column
// (see applyClassification).
func New(st store.Store, fetch Fetcher, clk clock.Clock, cfg config.Collector, windows shame.Windows, log *zap.Logger, classifyCache *classify.Cache) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		store:    st,
		fetch:    fetch,
		clk:      clk,
		cfg:      cfg,
		windows:  windows,
		log:      log,
		classify: classifyCache,
		breakers: make(map[int64]*breaker.CircuitBreaker),
	}
}

// breakerFor returns the per-park circuit breaker, creating one on first
// use. A park whose breaker is Open is skipped for the cycle without
// spending any of its retry budget, the same no-synthetic-data outcome as
// an exhausted retry loop.
func (c *Collector) breakerFor(parkID int64) *breaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	b, ok := c.breakers[parkID]
	if !ok {
		b = breaker.New(c.cfg.BreakerWindow, c.cfg.BreakerCooldown, c.cfg.BreakerFailureThreshold, c.cfg.BreakerMinSamples)
		c.breakers[parkID] = b
	}
	return b
}

// RunCycle fetches every active park over a bounded worker pool and writes
// one observation cycle per park that succeeds. It returns an error only if
// listing active parks itself fails; individual park failures are logged and
// counted, never propagated.
func (c *Collector) RunCycle(ctx context.Context) error {
	start := time.Now()
	parks, err := c.store.GetActiveParks(ctx)
	if err != nil {
		return fmt.Errorf("list active parks: %w", err)
	}
	obs.ParksActiveGauge.Set(float64(len(parks)))

	poolSize := c.cfg.WorkerPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	if poolSize > len(parks) {
		poolSize = len(parks)
	}

	tasks := make(chan model.Park, len(parks))
	for _, p := range parks {
		tasks <- p
	}
	close(tasks)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for park := range tasks {
				c.collectPark(ctx, park)
			}
		}()
	}
	wg.Wait()

	obs.CollectorCycleDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (c *Collector) collectPark(ctx context.Context, park model.Park) {
	ctx, span := obs.StartCollectionCycleSpan(ctx, park.ID, park.Name)
	defer span.End()

	cb := c.breakerFor(park.ID)
	if !cb.Allow() {
		c.log.Warn("park circuit breaker open, skipping this cycle", obs.String("park", park.Name))
		return
	}

	fetchStart := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	reading, err := c.fetchWithRetry(fetchCtx, park)
	cancel()
	obs.SnapshotFetchDuration.Observe(time.Since(fetchStart).Seconds())
	cb.Record(err == nil)

	if err != nil {
		obs.SnapshotFetchErrors.WithLabelValues(park.Name).Inc()
		obs.RecordError(ctx, err)
		c.log.Warn("park fetch failed, skipping this cycle", obs.String("park", park.Name), obs.Err(err))
		return
	}

	rides, err := c.store.GetRidesByPark(ctx, park.ID)
	if err != nil {
		obs.RecordError(ctx, err)
		c.log.Error("failed to load ride roster", obs.String("park", park.Name), obs.Err(err))
		return
	}

	rides = c.applyClassification(park, rides)
	rideByVendor := make(map[string]model.Ride, len(rides))
	for _, r := range rides {
		rideByVendor[r.VendorID] = r
	}

	now := c.clk.Now()
	window := c.windows.WindowFor(park)

	type matched struct {
		ride           model.Ride
		computedIsOpen bool
		status         model.RideStatus
		waitTime       *int
		isOpenUpstream *bool
		lastUpdatedAPI time.Time
	}
	var matches []matched
	anyRideOpen := false
	for _, ro := range reading.Rides {
		ride, ok := rideByVendor[ro.VendorID]
		if !ok {
			c.log.Warn("observation for unknown ride vendor id", obs.String("park", park.Name), obs.String("vendor_id", ro.VendorID))
			continue
		}
		computedIsOpen := model.ComputeIsOpen(ro.Status, ro.WaitTime)
		if computedIsOpen {
			anyRideOpen = true
		}
		matches = append(matches, matched{ride: ride, computedIsOpen: computedIsOpen, status: ro.Status, waitTime: ro.WaitTime, isOpenUpstream: ro.IsOpenUpstream, lastUpdatedAPI: ro.LastUpdatedAPI})
	}

	parkAppearsOpen := model.AppearsOpen(reading.ScheduleOpen, anyRideOpen)

	states := make([]shame.RideState, 0, len(matches))
	rideSnaps := make([]model.RideStatusSnapshot, 0, len(matches))
	ridesOpen, waitSum, waitCount, maxWait := 0, 0, 0, 0
	for _, m := range matches {
		if m.computedIsOpen {
			ridesOpen++
		}
		if m.waitTime != nil {
			waitSum += *m.waitTime
			waitCount++
			if *m.waitTime > maxWait {
				maxWait = *m.waitTime
			}
		}
		states = append(states, shame.RideState{
			Ride:              m.ride,
			Status:            m.status,
			ComputedIsOpen:    m.computedIsOpen,
			HasOperatedPeriod: m.computedIsOpen || m.ride.HasOperatedWithin(now, window),
		})
		rideSnaps = append(rideSnaps, model.RideStatusSnapshot{
			RideID:          m.ride.ID,
			RecordedAt:      now,
			Status:          m.status,
			WaitTime:        m.waitTime,
			IsOpenUpstream:  m.isOpenUpstream,
			ComputedIsOpen:  m.computedIsOpen,
			LastUpdatedAPI:  m.lastUpdatedAPI,
			ParkAppearsOpen: parkAppearsOpen,
		})
	}

	shameScore := shame.ScoreForPark(park, states, c.windows, parkAppearsOpen, rides, now)

	avgWait := 0.0
	if waitCount > 0 {
		avgWait = float64(waitSum) / float64(waitCount)
	}

	parkSnap := model.ParkActivitySnapshot{
		ParkID:            park.ID,
		RecordedAt:        now,
		TotalRidesTracked: len(matches),
		RidesOpen:         ridesOpen,
		RidesClosed:       len(matches) - ridesOpen,
		AvgWaitTime:       avgWait,
		MaxWaitTime:       maxWait,
		ParkAppearsOpen:   parkAppearsOpen,
		ShameScore:        shameScore,
	}

	if err := c.store.WriteCycle(ctx, parkSnap, rideSnaps); err != nil {
		obs.RecordError(ctx, err)
		c.log.Error("failed to write collection cycle", obs.String("park", park.Name), obs.Err(err))
		return
	}

	obs.SetSpanSuccess(ctx)
	obs.SnapshotsCollected.Add(float64(1 + len(rideSnaps)))
}

func (c *Collector) fetchWithRetry(ctx context.Context, park model.Park) (ParkObservation, error) {
	var lastErr error
	attempts := c.cfg.MaxRetriesPerPark + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ParkObservation{}, ctx.Err()
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		reading, err := c.fetch.FetchPark(ctx, park)
		if err == nil {
			return reading, nil
		}
		lastErr = err
	}
	return ParkObservation{}, lastErr
}

// applyClassification fills in a ride's Tier from the classification cache
// (override → classifier cache → default) when the stored roster has no
// opinion (TierUnknown). Category is never overridden here — it comes from
// roster ingestion, not the demand-tier classifier, and the cache's
// fallback default of CategoryAttraction would otherwise wrongly
// reclassify shows/meet-and-greets with no cache entry. The stored Ride row
// itself is left untouched; only this in-memory copy feeds the shame-score
// calculation, per §4.11's "consumed as read-only by the core".
func (c *Collector) applyClassification(park model.Park, rides []model.Ride) []model.Ride {
	if c.classify == nil {
		return rides
	}
	out := make([]model.Ride, len(rides))
	for i, r := range rides {
		if r.Tier == model.TierUnknown {
			r.Tier = c.classify.Lookup(park.ID, r.ID).Tier
		}
		out[i] = r
	}
	return out
}
