// Copyright 2025 James Ross
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/czei/themeparkhallofshame/internal/model"
)

// Memory is an in-process Store fake for unit tests, grounded on the
// teacher's queue-snapshot-testing fakes: no network, no SQL, just guarded
// maps with the same read/write contract as Postgres.
type Memory struct {
	mu sync.RWMutex

	parks map[int64]model.Park
	rides map[int64]model.Ride

	rideSnapshots map[int64][]model.RideStatusSnapshot
	parkSnapshots map[int64][]model.ParkActivitySnapshot

	rideHourly map[hourlyKey]model.RideHourly
	parkHourly map[hourlyKey]model.ParkHourly

	rideDaily         map[dailyKey]model.RideDaily
	parkDaily         map[dailyKey]model.ParkDaily
	operatingSessions map[dailyKey]model.OperatingSession

	ridePeriodic map[periodicKey]model.RidePeriodic
	parkPeriodic map[periodicKey]model.ParkPeriodic

	overrides       []model.ClassificationOverride
	classifications []model.ClassificationEntry

	jobs   map[int64]model.AggregationLog
	nextID int64
}

type hourlyKey struct {
	id   int64
	hour time.Time
}

type dailyKey struct {
	id   int64
	date string
}

type periodicKey struct {
	id    int64
	kind  model.PeriodKind
	start string
}

// NewMemory returns an empty Memory store seeded with the given parks and
// rides.
func NewMemory(parks []model.Park, rides []model.Ride) *Memory {
	m := &Memory{
		parks:             make(map[int64]model.Park),
		rides:             make(map[int64]model.Ride),
		rideSnapshots:     make(map[int64][]model.RideStatusSnapshot),
		parkSnapshots:     make(map[int64][]model.ParkActivitySnapshot),
		rideHourly:        make(map[hourlyKey]model.RideHourly),
		parkHourly:        make(map[hourlyKey]model.ParkHourly),
		rideDaily:         make(map[dailyKey]model.RideDaily),
		parkDaily:         make(map[dailyKey]model.ParkDaily),
		operatingSessions: make(map[dailyKey]model.OperatingSession),
		ridePeriodic:      make(map[periodicKey]model.RidePeriodic),
		parkPeriodic:      make(map[periodicKey]model.ParkPeriodic),
		jobs:              make(map[int64]model.AggregationLog),
	}
	for _, p := range parks {
		m.parks[p.ID] = p
	}
	for _, r := range rides {
		m.rides[r.ID] = r
	}
	return m
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetActiveParks(ctx context.Context) ([]model.Park, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Park
	for _, p := range m.parks {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPark(ctx context.Context, parkID int64) (model.Park, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parks[parkID]
	if !ok {
		return model.Park{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetRidesByPark(ctx context.Context, parkID int64) ([]model.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Ride
	for _, r := range m.rides {
		if r.ParkID == parkID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetActiveRides(ctx context.Context) ([]model.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Ride
	for _, r := range m.rides {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParkID != out[j].ParkID {
			return out[i].ParkID < out[j].ParkID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) TouchRideOperated(ctx context.Context, rideID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	if at.After(r.LastOperatedAt) {
		r.LastOperatedAt = at
		m.rides[rideID] = r
	}
	return nil
}

func (m *Memory) WriteCycle(ctx context.Context, park model.ParkActivitySnapshot, rides []model.RideStatusSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.parkSnapshots[park.ParkID] {
		if existing.RecordedAt.Equal(park.RecordedAt) {
			return errDuplicate{}
		}
	}
	m.parkSnapshots[park.ParkID] = append(m.parkSnapshots[park.ParkID], park)

	for _, rs := range rides {
		for _, existing := range m.rideSnapshots[rs.RideID] {
			if existing.RecordedAt.Equal(rs.RecordedAt) {
				return errDuplicate{}
			}
		}
		m.rideSnapshots[rs.RideID] = append(m.rideSnapshots[rs.RideID], rs)
		if rs.ComputedIsOpen {
			if r, ok := m.rides[rs.RideID]; ok && rs.RecordedAt.After(r.LastOperatedAt) {
				r.LastOperatedAt = rs.RecordedAt
				m.rides[rs.RideID] = r
			}
		}
	}
	return nil
}

type errDuplicate struct{}

func (errDuplicate) Error() string { return "store: duplicate snapshot for (id, recorded_at)" }

func (m *Memory) RideSnapshotsInRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideStatusSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RideStatusSnapshot
	for _, s := range m.rideSnapshots[rideID] {
		if !s.RecordedAt.Before(start) && s.RecordedAt.Before(end) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (m *Memory) ParkSnapshotsInRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkActivitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ParkActivitySnapshot
	for _, s := range m.parkSnapshots[parkID] {
		if !s.RecordedAt.Before(start) && s.RecordedAt.Before(end) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (m *Memory) RideSnapshotsForPark(ctx context.Context, parkID int64, start, end time.Time) (map[int64][]model.RideStatusSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64][]model.RideStatusSnapshot)
	for _, r := range m.rides {
		if r.ParkID != parkID {
			continue
		}
		var filtered []model.RideStatusSnapshot
		for _, s := range m.rideSnapshots[r.ID] {
			if !s.RecordedAt.Before(start) && s.RecordedAt.Before(end) {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) > 0 {
			sort.Slice(filtered, func(i, j int) bool { return filtered[i].RecordedAt.Before(filtered[j].RecordedAt) })
			out[r.ID] = filtered
		}
	}
	return out, nil
}

func (m *Memory) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, snaps := range m.rideSnapshots {
		var kept []model.RideStatusSnapshot
		for _, s := range snaps {
			if s.RecordedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, s)
		}
		m.rideSnapshots[id] = kept
	}
	for id, snaps := range m.parkSnapshots {
		var kept []model.ParkActivitySnapshot
		for _, s := range snaps {
			if s.RecordedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, s)
		}
		m.parkSnapshots[id] = kept
	}
	return n, nil
}

func (m *Memory) UpsertRideHourly(ctx context.Context, row model.RideHourly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rideHourly[hourlyKey{row.RideID, row.HourStartUTC}] = row
	return nil
}

func (m *Memory) UpsertParkHourly(ctx context.Context, row model.ParkHourly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parkHourly[hourlyKey{row.ParkID, row.HourStartUTC}] = row
	return nil
}

func (m *Memory) RideHourlyRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideHourly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RideHourly
	for k, v := range m.rideHourly {
		if k.id == rideID && !k.hour.Before(start) && k.hour.Before(end) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStartUTC.Before(out[j].HourStartUTC) })
	return out, nil
}

func (m *Memory) ParkHourlyRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkHourly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ParkHourly
	for k, v := range m.parkHourly {
		if k.id == parkID && !k.hour.Before(start) && k.hour.Before(end) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStartUTC.Before(out[j].HourStartUTC) })
	return out, nil
}

func (m *Memory) UpsertRideDaily(ctx context.Context, row model.RideDaily) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rideDaily[dailyKey{row.RideID, row.StatDate}] = row
	return nil
}

func (m *Memory) UpsertParkDaily(ctx context.Context, row model.ParkDaily) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parkDaily[dailyKey{row.ParkID, row.StatDate}] = row
	return nil
}

func (m *Memory) UpsertOperatingSession(ctx context.Context, row model.OperatingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operatingSessions[dailyKey{row.ParkID, row.LocalDate}] = row
	return nil
}

func (m *Memory) RideDailyRange(ctx context.Context, rideID int64, startDate, endDate string) ([]model.RideDaily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RideDaily
	for k, v := range m.rideDaily {
		if k.id == rideID && k.date >= startDate && k.date <= endDate {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatDate < out[j].StatDate })
	return out, nil
}

func (m *Memory) ParkDailyRange(ctx context.Context, parkID int64, startDate, endDate string) ([]model.ParkDaily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ParkDaily
	for k, v := range m.parkDaily {
		if k.id == parkID && k.date >= startDate && k.date <= endDate {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatDate < out[j].StatDate })
	return out, nil
}

func (m *Memory) ParkDailyOn(ctx context.Context, parkID int64, date string) (model.ParkDaily, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.parkDaily[dailyKey{parkID, date}]
	return v, ok, nil
}

func (m *Memory) OperatingSessionOn(ctx context.Context, parkID int64, date string) (model.OperatingSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.operatingSessions[dailyKey{parkID, date}]
	return v, ok, nil
}

func (m *Memory) UpsertRidePeriodic(ctx context.Context, row model.RidePeriodic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ridePeriodic[periodicKey{row.RideID, row.Kind, row.PeriodStart}] = row
	return nil
}

func (m *Memory) UpsertParkPeriodic(ctx context.Context, row model.ParkPeriodic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parkPeriodic[periodicKey{row.ParkID, row.Kind, row.PeriodStart}] = row
	return nil
}

func (m *Memory) ParkPeriodicRange(ctx context.Context, parkID int64, kind model.PeriodKind, startPeriod, endPeriod string) ([]model.ParkPeriodic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ParkPeriodic
	for k, v := range m.parkPeriodic {
		if k.id == parkID && k.kind == kind && k.start >= startPeriod && k.start <= endPeriod {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart < out[j].PeriodStart })
	return out, nil
}

func (m *Memory) RidePeriodicOn(ctx context.Context, rideID int64, kind model.PeriodKind, periodStart string) (model.RidePeriodic, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.ridePeriodic[periodicKey{rideID, kind, periodStart}]
	return v, ok, nil
}

func (m *Memory) ParkPeriodicOn(ctx context.Context, parkID int64, kind model.PeriodKind, periodStart string) (model.ParkPeriodic, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.parkPeriodic[periodicKey{parkID, kind, periodStart}]
	return v, ok, nil
}

func (m *Memory) ListClassificationOverrides(ctx context.Context) ([]model.ClassificationOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClassificationOverride, len(m.overrides))
	copy(out, m.overrides)
	return out, nil
}

func (m *Memory) ListClassifications(ctx context.Context) ([]model.ClassificationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClassificationEntry, len(m.classifications))
	copy(out, m.classifications)
	return out, nil
}

// SeedClassifications lets tests populate the override/classification lists
// directly, bypassing any notion of a write path (there is none in
// production either: these tables are written by an out-of-scope
// classifier job and a human override tool).
func (m *Memory) SeedClassifications(overrides []model.ClassificationOverride, entries []model.ClassificationEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = overrides
	m.classifications = entries
}

func (m *Memory) StartAggregationJob(ctx context.Context, jobType model.AggregationJobType, windowEnd time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.jobs[id] = model.AggregationLog{
		ID:        id,
		Type:      jobType,
		WindowEnd: windowEnd,
		StartedAt: windowEnd,
		Status:    model.AggregationRunning,
	}
	return id, nil
}

func (m *Memory) FinishAggregationJob(ctx context.Context, id int64, status model.AggregationStatus, parksProcessed, ridesProcessed int, jobErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.ParksProcessed = parksProcessed
	job.RidesProcessed = ridesProcessed
	job.Error = jobErr
	finished := job.StartedAt
	job.FinishedAt = &finished
	m.jobs[id] = job
	return nil
}

func (m *Memory) LatestAggregationLog(ctx context.Context, jobType model.AggregationJobType) (model.AggregationLog, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest model.AggregationLog
	found := false
	for _, j := range m.jobs {
		if j.Type != jobType {
			continue
		}
		if !found || j.WindowEnd.After(latest.WindowEnd) {
			latest = j
			found = true
		}
	}
	return latest, found, nil
}

func (m *Memory) LastSuccessfulHourlyWindowEnd(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest time.Time
	found := false
	for _, j := range m.jobs {
		if j.Type != model.JobHourly || j.Status != model.AggregationSuccess {
			continue
		}
		if !found || j.WindowEnd.After(latest) {
			latest = j.WindowEnd
			found = true
		}
	}
	return latest, found, nil
}
