// Copyright 2025 James Ross

// Package classify implements the read-through classification cache backing
// C2: a mapping (park_id, ride_id) -> {tier, category} resolved in priority
// order (human override, classifier cache, hard-coded default) and rebuilt
// wholesale on a schema_version bump rather than invalidated per row (§4.11,
// §5). The collector is its only consumer, filling in a ride's tier when the
// stored roster has none; the aggregators and the query engine read the
// stored ride columns directly.
package classify

import (
	"context"
	"sync"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
	"go.uber.org/zap"
)

type key struct {
	ParkID int64
	RideID int64
}

// Source loads overrides and cached classifications from persistent
// storage. Implemented by internal/store in production and by a fake in
// tests.
type Source interface {
	ListClassificationOverrides(ctx context.Context) ([]model.ClassificationOverride, error)
	ListClassifications(ctx context.Context) ([]model.ClassificationEntry, error)
}

// Cache is an in-process, read-mostly classification lookup. It is rebuilt
// wholesale from Source on NewCache and on every Refresh call; callers
// schedule Refresh on config.Classification.RefreshInterval.
type Cache struct {
	mu     sync.RWMutex
	source Source
	logger *zap.Logger

	overrides       map[key]model.ClassificationOverride
	classifications map[key]model.ClassificationEntry
	schemaVersion   int
}

// NewCache loads the initial snapshot from source and returns a ready Cache.
func NewCache(ctx context.Context, source Source, logger *zap.Logger) (*Cache, error) {
	c := &Cache{source: source, logger: logger}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh reloads the full override and classification tables from the
// source and swaps them in atomically. A schema_version change anywhere in
// the loaded classifications invalidates the whole map, per §5's
// generation-counter invalidation policy (never a per-row rescan).
func (c *Cache) Refresh(ctx context.Context) error {
	overrides, err := c.source.ListClassificationOverrides(ctx)
	if err != nil {
		return err
	}
	entries, err := c.source.ListClassifications(ctx)
	if err != nil {
		return err
	}

	overrideMap := make(map[key]model.ClassificationOverride, len(overrides))
	for _, o := range overrides {
		overrideMap[key{o.ParkID, o.RideID}] = o
	}
	classMap := make(map[key]model.ClassificationEntry, len(entries))
	maxSchema := 0
	for _, e := range entries {
		classMap[key{e.ParkID, e.RideID}] = e
		if e.SchemaVersion > maxSchema {
			maxSchema = e.SchemaVersion
		}
	}

	c.mu.Lock()
	c.overrides = overrideMap
	c.classifications = classMap
	c.schemaVersion = maxSchema
	c.mu.Unlock()
	return nil
}

// RunRefreshLoop periodically calls Refresh until ctx is cancelled. Intended
// to be launched as a goroutine from cmd/ process wiring.
func (c *Cache) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && c.logger != nil {
				c.logger.Warn("classification cache refresh failed", zap.Error(err))
			}
		}
	}
}

// Lookup resolves a ride's classification in priority order: human
// override, then classifier cache, then the hard-coded default. Never
// returns an error — a missing classification is tier=unknown/weight=2,
// category=ATTRACTION, per §7's error taxonomy.
func (c *Cache) Lookup(parkID, rideID int64) model.ClassificationEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := key{parkID, rideID}
	if o, ok := c.overrides[k]; ok {
		return model.ClassificationEntry{
			ParkID:   o.ParkID,
			RideID:   o.RideID,
			Tier:     o.Tier,
			Category: o.Category,
			Reasoning: o.Reason,
		}
	}
	if e, ok := c.classifications[k]; ok {
		return e
	}
	return model.DefaultClassification(parkID, rideID)
}

// SchemaVersion returns the highest schema_version observed across loaded
// classifications as of the last Refresh.
func (c *Cache) SchemaVersion() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemaVersion
}
