// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/model"
	_ "github.com/lib/pq"
)

// Postgres is the production Store implementation over database/sql and
// lib/pq, grounded on the teacher's internal/job-budgeting aggregator: raw
// parameterized SQL, $N placeholders, ON CONFLICT ... DO UPDATE upserts.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool per cfg.Database and, when
// cfg.PingOnCheckout is set, pings the database once before returning.
// Connections later taken from the pool are not pinged again.
func OpenPostgres(cfg *config.Database) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.PingOnCheckout {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) GetActiveParks(ctx context.Context) ([]model.Park, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vendor_id, name, city, state, country, timezone, operator, is_disney, is_universal, is_active
		FROM parks WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Park
	for rows.Next() {
		var pk model.Park
		if err := rows.Scan(&pk.ID, &pk.VendorID, &pk.Name, &pk.City, &pk.State, &pk.Country,
			&pk.Timezone, &pk.Operator, &pk.IsDisney, &pk.IsUniversal, &pk.IsActive); err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

func (p *Postgres) GetPark(ctx context.Context, parkID int64) (model.Park, error) {
	var pk model.Park
	err := p.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, city, state, country, timezone, operator, is_disney, is_universal, is_active
		FROM parks WHERE id = $1`, parkID).Scan(
		&pk.ID, &pk.VendorID, &pk.Name, &pk.City, &pk.State, &pk.Country,
		&pk.Timezone, &pk.Operator, &pk.IsDisney, &pk.IsUniversal, &pk.IsActive)
	if err == sql.ErrNoRows {
		return model.Park{}, ErrNotFound
	}
	return pk, err
}

func (p *Postgres) GetRidesByPark(ctx context.Context, parkID int64) ([]model.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vendor_id, park_id, name, themed_area, tier, category, is_active, last_operated_at
		FROM rides WHERE park_id = $1 ORDER BY id`, parkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func (p *Postgres) GetActiveRides(ctx context.Context) ([]model.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vendor_id, park_id, name, themed_area, tier, category, is_active, last_operated_at
		FROM rides WHERE is_active = true ORDER BY park_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func scanRides(rows *sql.Rows) ([]model.Ride, error) {
	var out []model.Ride
	for rows.Next() {
		var r model.Ride
		if err := rows.Scan(&r.ID, &r.VendorID, &r.ParkID, &r.Name, &r.ThemedArea,
			&r.Tier, &r.Category, &r.IsActive, &r.LastOperatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) TouchRideOperated(ctx context.Context, rideID int64, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE rides SET last_operated_at = $2
		WHERE id = $1 AND last_operated_at < $2`, rideID, at)
	return err
}

// WriteCycle writes one ParkActivitySnapshot and its sibling ride snapshots
// inside a single transaction, per §4.1's "atomically with the per-ride
// snapshots" contract. Duplicates on (ride, recorded_at) are rejected by
// the unique constraint and surfaced as an error (append-only, §4.2).
func (p *Postgres) WriteCycle(ctx context.Context, park model.ParkActivitySnapshot, rides []model.RideStatusSnapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO park_activity_snapshots (
			park_id, recorded_at, total_rides_tracked, rides_open, rides_closed,
			avg_wait_time, max_wait_time, park_appears_open, shame_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		park.ParkID, park.RecordedAt, park.TotalRidesTracked, park.RidesOpen, park.RidesClosed,
		park.AvgWaitTime, park.MaxWaitTime, park.ParkAppearsOpen, park.ShameScore)
	if err != nil {
		return fmt.Errorf("insert park snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ride_status_snapshots (
			ride_id, recorded_at, status, wait_time, is_open_upstream,
			computed_is_open, last_updated_api, park_appears_open
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	if err != nil {
		return fmt.Errorf("prepare ride snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rides {
		if _, err := stmt.ExecContext(ctx, r.RideID, r.RecordedAt, r.Status, r.WaitTime,
			r.IsOpenUpstream, r.ComputedIsOpen, r.LastUpdatedAPI, r.ParkAppearsOpen); err != nil {
			return fmt.Errorf("insert ride snapshot for ride %d: %w", r.RideID, err)
		}
		if r.ComputedIsOpen {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rides SET last_operated_at = $2
				WHERE id = $1 AND last_operated_at < $2`, r.RideID, r.RecordedAt); err != nil {
				return fmt.Errorf("touch last_operated_at for ride %d: %w", r.RideID, err)
			}
		}
	}

	return tx.Commit()
}

func (p *Postgres) RideSnapshotsInRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideStatusSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ride_id, recorded_at, status, wait_time, is_open_upstream, computed_is_open, last_updated_api, park_appears_open
		FROM ride_status_snapshots
		WHERE ride_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`, rideID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRideSnapshots(rows)
}

func scanRideSnapshots(rows *sql.Rows) ([]model.RideStatusSnapshot, error) {
	var out []model.RideStatusSnapshot
	for rows.Next() {
		var s model.RideStatusSnapshot
		if err := rows.Scan(&s.RideID, &s.RecordedAt, &s.Status, &s.WaitTime, &s.IsOpenUpstream,
			&s.ComputedIsOpen, &s.LastUpdatedAPI, &s.ParkAppearsOpen); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ParkSnapshotsInRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkActivitySnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT park_id, recorded_at, total_rides_tracked, rides_open, rides_closed, avg_wait_time, max_wait_time, park_appears_open, shame_score
		FROM park_activity_snapshots
		WHERE park_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`, parkID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParkActivitySnapshot
	for rows.Next() {
		var s model.ParkActivitySnapshot
		if err := rows.Scan(&s.ParkID, &s.RecordedAt, &s.TotalRidesTracked, &s.RidesOpen, &s.RidesClosed,
			&s.AvgWaitTime, &s.MaxWaitTime, &s.ParkAppearsOpen, &s.ShameScore); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RideSnapshotsForPark returns every tracked ride's snapshots in range,
// grouped by ride id, for the hourly/daily aggregator's single-pass-per-park
// scan (§4.3 "precompute this set once per run to avoid an N+1 pattern").
func (p *Postgres) RideSnapshotsForPark(ctx context.Context, parkID int64, start, end time.Time) (map[int64][]model.RideStatusSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT rs.ride_id, rs.recorded_at, rs.status, rs.wait_time, rs.is_open_upstream,
		       rs.computed_is_open, rs.last_updated_api, rs.park_appears_open
		FROM ride_status_snapshots rs
		JOIN rides r ON r.id = rs.ride_id
		WHERE r.park_id = $1 AND rs.recorded_at >= $2 AND rs.recorded_at < $3
		ORDER BY rs.ride_id, rs.recorded_at`, parkID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]model.RideStatusSnapshot)
	for rows.Next() {
		var s model.RideStatusSnapshot
		if err := rows.Scan(&s.RideID, &s.RecordedAt, &s.Status, &s.WaitTime, &s.IsOpenUpstream,
			&s.ComputedIsOpen, &s.LastUpdatedAPI, &s.ParkAppearsOpen); err != nil {
			return nil, err
		}
		out[s.RideID] = append(out[s.RideID], s)
	}
	return out, rows.Err()
}

// DeleteSnapshotsBefore deletes raw snapshots older than cutoff. Callers
// must only pass a cutoff no later than the last successful hourly
// aggregation window end (§4.2 retention rule); this method does not
// enforce that itself, it is a mechanical delete.
func (p *Postgres) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res1, err := tx.ExecContext(ctx, `DELETE FROM ride_status_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	res2, err := tx.ExecContext(ctx, `DELETE FROM park_activity_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n1, _ := res1.RowsAffected()
	n2, _ := res2.RowsAffected()
	return n1 + n2, nil
}

func (p *Postgres) UpsertRideHourly(ctx context.Context, row model.RideHourly) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_hourly (
			ride_id, hour_start_utc, snapshot_count, operating_snapshots, down_snapshots,
			downtime_hours, uptime_percentage, avg_wait_time, ride_operated, metrics_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (ride_id, hour_start_utc) DO UPDATE SET
			snapshot_count = EXCLUDED.snapshot_count,
			operating_snapshots = EXCLUDED.operating_snapshots,
			down_snapshots = EXCLUDED.down_snapshots,
			downtime_hours = EXCLUDED.downtime_hours,
			uptime_percentage = EXCLUDED.uptime_percentage,
			avg_wait_time = EXCLUDED.avg_wait_time,
			ride_operated = EXCLUDED.ride_operated,
			metrics_version = EXCLUDED.metrics_version`,
		row.RideID, row.HourStartUTC, row.SnapshotCount, row.OperatingSnapshots, row.DownSnapshots,
		row.DowntimeHours, row.UptimePercentage, row.AvgWaitTime, row.RideOperated, row.MetricsVersion)
	return err
}

func (p *Postgres) UpsertParkHourly(ctx context.Context, row model.ParkHourly) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO park_hourly (
			park_id, hour_start_utc, shame_score, total_downtime_hours, weighted_downtime_hours,
			effective_park_weight, rides_operating, rides_down, park_was_open, snapshot_count, metrics_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (park_id, hour_start_utc) DO UPDATE SET
			shame_score = EXCLUDED.shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			effective_park_weight = EXCLUDED.effective_park_weight,
			rides_operating = EXCLUDED.rides_operating,
			rides_down = EXCLUDED.rides_down,
			park_was_open = EXCLUDED.park_was_open,
			snapshot_count = EXCLUDED.snapshot_count,
			metrics_version = EXCLUDED.metrics_version`,
		row.ParkID, row.HourStartUTC, row.ShameScore, row.TotalDowntimeHours, row.WeightedDowntimeHours,
		row.EffectiveParkWeight, row.RidesOperating, row.RidesDown, row.ParkWasOpen, row.SnapshotCount, row.MetricsVersion)
	return err
}

func (p *Postgres) RideHourlyRange(ctx context.Context, rideID int64, start, end time.Time) ([]model.RideHourly, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ride_id, hour_start_utc, snapshot_count, operating_snapshots, down_snapshots,
		       downtime_hours, uptime_percentage, avg_wait_time, ride_operated, metrics_version
		FROM ride_hourly WHERE ride_id = $1 AND hour_start_utc >= $2 AND hour_start_utc < $3
		ORDER BY hour_start_utc`, rideID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RideHourly
	for rows.Next() {
		var r model.RideHourly
		if err := rows.Scan(&r.RideID, &r.HourStartUTC, &r.SnapshotCount, &r.OperatingSnapshots, &r.DownSnapshots,
			&r.DowntimeHours, &r.UptimePercentage, &r.AvgWaitTime, &r.RideOperated, &r.MetricsVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ParkHourlyRange(ctx context.Context, parkID int64, start, end time.Time) ([]model.ParkHourly, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT park_id, hour_start_utc, shame_score, total_downtime_hours, weighted_downtime_hours,
		       effective_park_weight, rides_operating, rides_down, park_was_open, snapshot_count, metrics_version
		FROM park_hourly WHERE park_id = $1 AND hour_start_utc >= $2 AND hour_start_utc < $3
		ORDER BY hour_start_utc`, parkID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParkHourly
	for rows.Next() {
		var r model.ParkHourly
		if err := rows.Scan(&r.ParkID, &r.HourStartUTC, &r.ShameScore, &r.TotalDowntimeHours, &r.WeightedDowntimeHours,
			&r.EffectiveParkWeight, &r.RidesOperating, &r.RidesDown, &r.ParkWasOpen, &r.SnapshotCount, &r.MetricsVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertRideDaily(ctx context.Context, row model.RideDaily) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_daily (
			ride_id, stat_date, uptime_minutes, downtime_minutes, operating_hours_minutes, uptime_percentage,
			min_wait_time, avg_wait_time, max_wait_time, peak_wait_time, status_changes, longest_downtime_minutes,
			ride_operated, metrics_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (ride_id, stat_date) DO UPDATE SET
			uptime_minutes = EXCLUDED.uptime_minutes,
			downtime_minutes = EXCLUDED.downtime_minutes,
			operating_hours_minutes = EXCLUDED.operating_hours_minutes,
			uptime_percentage = EXCLUDED.uptime_percentage,
			min_wait_time = EXCLUDED.min_wait_time,
			avg_wait_time = EXCLUDED.avg_wait_time,
			max_wait_time = EXCLUDED.max_wait_time,
			peak_wait_time = EXCLUDED.peak_wait_time,
			status_changes = EXCLUDED.status_changes,
			longest_downtime_minutes = EXCLUDED.longest_downtime_minutes,
			ride_operated = EXCLUDED.ride_operated,
			metrics_version = EXCLUDED.metrics_version`,
		row.RideID, row.StatDate, row.UptimeMinutes, row.DowntimeMinutes, row.OperatingHoursMinutes, row.UptimePercentage,
		row.MinWaitTime, row.AvgWaitTime, row.MaxWaitTime, row.PeakWaitTime, row.StatusChanges, row.LongestDowntimeMinutes,
		row.RideOperated, row.MetricsVersion)
	return err
}

func (p *Postgres) UpsertParkDaily(ctx context.Context, row model.ParkDaily) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO park_daily (
			park_id, stat_date, shame_score, total_downtime_hours, weighted_downtime_hours, effective_park_weight,
			rides_operating, rides_down, rides_with_downtime, status_changes, longest_downtime_minutes, metrics_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (park_id, stat_date) DO UPDATE SET
			shame_score = EXCLUDED.shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			effective_park_weight = EXCLUDED.effective_park_weight,
			rides_operating = EXCLUDED.rides_operating,
			rides_down = EXCLUDED.rides_down,
			rides_with_downtime = EXCLUDED.rides_with_downtime,
			status_changes = EXCLUDED.status_changes,
			longest_downtime_minutes = EXCLUDED.longest_downtime_minutes,
			metrics_version = EXCLUDED.metrics_version`,
		row.ParkID, row.StatDate, row.ShameScore, row.TotalDowntimeHours, row.WeightedDowntimeHours, row.EffectiveParkWeight,
		row.RidesOperating, row.RidesDown, row.RidesWithDowntime, row.StatusChanges, row.LongestDowntimeMinutes, row.MetricsVersion)
	return err
}

func (p *Postgres) UpsertOperatingSession(ctx context.Context, row model.OperatingSession) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO operating_sessions (park_id, local_date, first_open_utc, last_open_utc, operating_minutes)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (park_id, local_date) DO UPDATE SET
			first_open_utc = EXCLUDED.first_open_utc,
			last_open_utc = EXCLUDED.last_open_utc,
			operating_minutes = EXCLUDED.operating_minutes`,
		row.ParkID, row.LocalDate, row.FirstOpenUTC, row.LastOpenUTC, row.OperatingMinutes)
	return err
}

func (p *Postgres) RideDailyRange(ctx context.Context, rideID int64, startDate, endDate string) ([]model.RideDaily, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ride_id, stat_date, uptime_minutes, downtime_minutes, operating_hours_minutes, uptime_percentage,
		       min_wait_time, avg_wait_time, max_wait_time, peak_wait_time, status_changes, longest_downtime_minutes,
		       ride_operated, metrics_version
		FROM ride_daily WHERE ride_id = $1 AND stat_date >= $2 AND stat_date <= $3
		ORDER BY stat_date`, rideID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RideDaily
	for rows.Next() {
		var r model.RideDaily
		if err := rows.Scan(&r.RideID, &r.StatDate, &r.UptimeMinutes, &r.DowntimeMinutes, &r.OperatingHoursMinutes,
			&r.UptimePercentage, &r.MinWaitTime, &r.AvgWaitTime, &r.MaxWaitTime, &r.PeakWaitTime,
			&r.StatusChanges, &r.LongestDowntimeMinutes, &r.RideOperated, &r.MetricsVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ParkDailyRange(ctx context.Context, parkID int64, startDate, endDate string) ([]model.ParkDaily, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT park_id, stat_date, shame_score, total_downtime_hours, weighted_downtime_hours, effective_park_weight,
		       rides_operating, rides_down, rides_with_downtime, status_changes, longest_downtime_minutes, metrics_version
		FROM park_daily WHERE park_id = $1 AND stat_date >= $2 AND stat_date <= $3
		ORDER BY stat_date`, parkID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParkDaily
	for rows.Next() {
		var r model.ParkDaily
		if err := rows.Scan(&r.ParkID, &r.StatDate, &r.ShameScore, &r.TotalDowntimeHours, &r.WeightedDowntimeHours,
			&r.EffectiveParkWeight, &r.RidesOperating, &r.RidesDown, &r.RidesWithDowntime,
			&r.StatusChanges, &r.LongestDowntimeMinutes, &r.MetricsVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ParkDailyOn(ctx context.Context, parkID int64, date string) (model.ParkDaily, bool, error) {
	var r model.ParkDaily
	err := p.db.QueryRowContext(ctx, `
		SELECT park_id, stat_date, shame_score, total_downtime_hours, weighted_downtime_hours, effective_park_weight,
		       rides_operating, rides_down, rides_with_downtime, status_changes, longest_downtime_minutes, metrics_version
		FROM park_daily WHERE park_id = $1 AND stat_date = $2`, parkID, date).Scan(
		&r.ParkID, &r.StatDate, &r.ShameScore, &r.TotalDowntimeHours, &r.WeightedDowntimeHours,
		&r.EffectiveParkWeight, &r.RidesOperating, &r.RidesDown, &r.RidesWithDowntime,
		&r.StatusChanges, &r.LongestDowntimeMinutes, &r.MetricsVersion)
	if err == sql.ErrNoRows {
		return model.ParkDaily{}, false, nil
	}
	if err != nil {
		return model.ParkDaily{}, false, err
	}
	return r, true, nil
}

func (p *Postgres) OperatingSessionOn(ctx context.Context, parkID int64, date string) (model.OperatingSession, bool, error) {
	var s model.OperatingSession
	err := p.db.QueryRowContext(ctx, `
		SELECT park_id, local_date, first_open_utc, last_open_utc, operating_minutes
		FROM operating_sessions WHERE park_id = $1 AND local_date = $2`, parkID, date).Scan(
		&s.ParkID, &s.LocalDate, &s.FirstOpenUTC, &s.LastOpenUTC, &s.OperatingMinutes)
	if err == sql.ErrNoRows {
		return model.OperatingSession{}, false, nil
	}
	if err != nil {
		return model.OperatingSession{}, false, err
	}
	return s, true, nil
}

func (p *Postgres) UpsertRidePeriodic(ctx context.Context, row model.RidePeriodic) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_periodic (ride_id, kind, period_start, total_downtime_hours, uptime_percentage, trend_vs_previous, metrics_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (ride_id, kind, period_start) DO UPDATE SET
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			uptime_percentage = EXCLUDED.uptime_percentage,
			trend_vs_previous = EXCLUDED.trend_vs_previous,
			metrics_version = EXCLUDED.metrics_version`,
		row.RideID, row.Kind, row.PeriodStart, row.TotalDowntimeHours, row.UptimePercentage, row.TrendVsPrevious, row.MetricsVersion)
	return err
}

func (p *Postgres) UpsertParkPeriodic(ctx context.Context, row model.ParkPeriodic) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO park_periodic (park_id, kind, period_start, shame_score, total_downtime_hours, weighted_downtime_hours, trend_vs_previous, metrics_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (park_id, kind, period_start) DO UPDATE SET
			shame_score = EXCLUDED.shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			trend_vs_previous = EXCLUDED.trend_vs_previous,
			metrics_version = EXCLUDED.metrics_version`,
		row.ParkID, row.Kind, row.PeriodStart, row.ShameScore, row.TotalDowntimeHours, row.WeightedDowntimeHours, row.TrendVsPrevious, row.MetricsVersion)
	return err
}

func (p *Postgres) ParkPeriodicRange(ctx context.Context, parkID int64, kind model.PeriodKind, startPeriod, endPeriod string) ([]model.ParkPeriodic, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT park_id, kind, period_start, shame_score, total_downtime_hours, weighted_downtime_hours, trend_vs_previous, metrics_version
		FROM park_periodic WHERE park_id = $1 AND kind = $2 AND period_start >= $3 AND period_start <= $4
		ORDER BY period_start`, parkID, kind, startPeriod, endPeriod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParkPeriodic
	for rows.Next() {
		var r model.ParkPeriodic
		if err := rows.Scan(&r.ParkID, &r.Kind, &r.PeriodStart, &r.ShameScore, &r.TotalDowntimeHours,
			&r.WeightedDowntimeHours, &r.TrendVsPrevious, &r.MetricsVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) RidePeriodicOn(ctx context.Context, rideID int64, kind model.PeriodKind, periodStart string) (model.RidePeriodic, bool, error) {
	var r model.RidePeriodic
	err := p.db.QueryRowContext(ctx, `
		SELECT ride_id, kind, period_start, total_downtime_hours, uptime_percentage, trend_vs_previous, metrics_version
		FROM ride_periodic WHERE ride_id = $1 AND kind = $2 AND period_start = $3`, rideID, kind, periodStart).Scan(
		&r.RideID, &r.Kind, &r.PeriodStart, &r.TotalDowntimeHours, &r.UptimePercentage, &r.TrendVsPrevious, &r.MetricsVersion)
	if err == sql.ErrNoRows {
		return model.RidePeriodic{}, false, nil
	}
	if err != nil {
		return model.RidePeriodic{}, false, err
	}
	return r, true, nil
}

func (p *Postgres) ParkPeriodicOn(ctx context.Context, parkID int64, kind model.PeriodKind, periodStart string) (model.ParkPeriodic, bool, error) {
	var r model.ParkPeriodic
	err := p.db.QueryRowContext(ctx, `
		SELECT park_id, kind, period_start, shame_score, total_downtime_hours, weighted_downtime_hours, trend_vs_previous, metrics_version
		FROM park_periodic WHERE park_id = $1 AND kind = $2 AND period_start = $3`, parkID, kind, periodStart).Scan(
		&r.ParkID, &r.Kind, &r.PeriodStart, &r.ShameScore, &r.TotalDowntimeHours, &r.WeightedDowntimeHours, &r.TrendVsPrevious, &r.MetricsVersion)
	if err == sql.ErrNoRows {
		return model.ParkPeriodic{}, false, nil
	}
	if err != nil {
		return model.ParkPeriodic{}, false, err
	}
	return r, true, nil
}

func (p *Postgres) ListClassificationOverrides(ctx context.Context) ([]model.ClassificationOverride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT park_id, ride_id, tier, category, reason FROM classification_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClassificationOverride
	for rows.Next() {
		var o model.ClassificationOverride
		if err := rows.Scan(&o.ParkID, &o.RideID, &o.Tier, &o.Category, &o.Reason); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) ListClassifications(ctx context.Context) ([]model.ClassificationEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT park_id, ride_id, tier, category, confidence, reasoning, schema_version
		FROM classification_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClassificationEntry
	for rows.Next() {
		var e model.ClassificationEntry
		if err := rows.Scan(&e.ParkID, &e.RideID, &e.Tier, &e.Category, &e.Confidence, &e.Reasoning, &e.SchemaVersion); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) StartAggregationJob(ctx context.Context, jobType model.AggregationJobType, windowEnd time.Time) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO aggregation_log (type, window_end, started_at, status)
		VALUES ($1, $2, now(), 'running') RETURNING id`, jobType, windowEnd).Scan(&id)
	return id, err
}

func (p *Postgres) FinishAggregationJob(ctx context.Context, id int64, status model.AggregationStatus, parksProcessed, ridesProcessed int, jobErr string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE aggregation_log SET finished_at = now(), status = $2, parks_processed = $3, rides_processed = $4, error = $5
		WHERE id = $1`, id, status, parksProcessed, ridesProcessed, jobErr)
	return err
}

func (p *Postgres) LatestAggregationLog(ctx context.Context, jobType model.AggregationJobType) (model.AggregationLog, bool, error) {
	var l model.AggregationLog
	err := p.db.QueryRowContext(ctx, `
		SELECT id, type, window_end, started_at, finished_at, status, parks_processed, rides_processed, error
		FROM aggregation_log WHERE type = $1 ORDER BY window_end DESC LIMIT 1`, jobType).Scan(
		&l.ID, &l.Type, &l.WindowEnd, &l.StartedAt, &l.FinishedAt, &l.Status, &l.ParksProcessed, &l.RidesProcessed, &l.Error)
	if err == sql.ErrNoRows {
		return model.AggregationLog{}, false, nil
	}
	if err != nil {
		return model.AggregationLog{}, false, err
	}
	return l, true, nil
}

func (p *Postgres) LastSuccessfulHourlyWindowEnd(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT window_end FROM aggregation_log
		WHERE type = 'hourly' AND status = 'success'
		ORDER BY window_end DESC LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
