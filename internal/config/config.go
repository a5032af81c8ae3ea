// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Database holds the PostgreSQL connection and pooling settings.
type Database struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	PingOnCheckout  bool          `mapstructure:"ping_on_checkout"`
}

// Collector controls the ingest cadence and worker pool.
type Collector struct {
	SnapshotIntervalMinutes int           `mapstructure:"snapshot_interval_minutes"`
	WorkerPoolSize          int           `mapstructure:"worker_pool_size"`
	FetchTimeout            time.Duration `mapstructure:"fetch_timeout"`
	MaxRetriesPerPark       int           `mapstructure:"max_retries_per_park"`
	RetryBackoff            time.Duration `mapstructure:"retry_backoff"`
	UpstreamBaseURL         string        `mapstructure:"upstream_base_url"`

	BreakerWindow           time.Duration `mapstructure:"breaker_window"`
	BreakerCooldown         time.Duration `mapstructure:"breaker_cooldown"`
	BreakerFailureThreshold float64       `mapstructure:"breaker_failure_threshold"`
	BreakerMinSamples       int           `mapstructure:"breaker_min_samples"`
}

// Retention controls how long raw snapshots survive once their covering
// hourly aggregate has succeeded.
type Retention struct {
	MinRawSnapshotAge time.Duration `mapstructure:"min_raw_snapshot_age"`
}

// Shame carries the park-type-aware windows and the externalized list of
// vendor operators that use Disney/Universal DOWN semantics.
type Shame struct {
	DisneyUniversalWindow time.Duration `mapstructure:"disney_universal_window"`
	OtherOperatorWindow   time.Duration `mapstructure:"other_operator_window"`
	ParkTypeOverrides     []string      `mapstructure:"park_type_overrides"`
	MetricsVersion        string        `mapstructure:"metrics_version"`
}

// Classification controls the read-through classification cache refresh
// cadence.
type Classification struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// QueryEngine toggles between the aggregate fast path and the raw-recompute
// slow path.
type QueryEngine struct {
	UseAggregates bool `mapstructure:"use_aggregates"`
	DefaultLimit  int  `mapstructure:"default_limit"`
}

// Audit carries the verifier's tolerance table and severity thresholds.
type Audit struct {
	RideDailyMinutesTolerance    int     `mapstructure:"ride_daily_minutes_tolerance"`
	ParkDailyHoursTolerance      float64 `mapstructure:"park_daily_hours_tolerance"`
	ParkDailyRidesTolerance      int     `mapstructure:"park_daily_rides_tolerance"`
	RideHourlyHoursTolerance     float64 `mapstructure:"ride_hourly_hours_tolerance"`
	RideHourlyPercentTolerance   float64 `mapstructure:"ride_hourly_percent_tolerance"`
	ParkHourlyShameTolerance     float64 `mapstructure:"park_hourly_shame_tolerance"`
	ParkHourlyHoursTolerance     float64 `mapstructure:"park_hourly_hours_tolerance"`
	IntervalConsistencyTolerance float64 `mapstructure:"interval_consistency_tolerance"`
	CriticalRideDailyMismatches  int     `mapstructure:"critical_ride_daily_mismatches"`
	CriticalParkDailyMismatches  int     `mapstructure:"critical_park_daily_mismatches"`
	CriticalRideHourlyMismatches int     `mapstructure:"critical_ride_hourly_mismatches"`
	CriticalParkHourlyMismatches int     `mapstructure:"critical_park_hourly_mismatches"`
	CriticalRideDailyMissing     int     `mapstructure:"critical_ride_daily_missing"`
	CriticalParkDailyMissing     int     `mapstructure:"critical_park_daily_missing"`
	CriticalRideHourlyMissing    int     `mapstructure:"critical_ride_hourly_missing"`
	CriticalParkHourlyMissing    int     `mapstructure:"critical_park_hourly_missing"`
}

// Schedule carries the cron expressions that drive the daily and weekly
// aggregation binaries' run loops.
type Schedule struct {
	DailyCron  string `mapstructure:"daily_cron"`
	WeeklyCron string `mapstructure:"weekly_cron"`
}

// Anomaly carries the detector thresholds used by the z-score, sudden
// change, and data-quality detectors.
type Anomaly struct {
	ZScoreBaselineDays        int     `mapstructure:"zscore_baseline_days"`
	ZScoreMinObservations     int     `mapstructure:"zscore_min_observations"`
	ZScoreWarnThreshold       float64 `mapstructure:"zscore_warn_threshold"`
	ZScoreCriticalThreshold   float64 `mapstructure:"zscore_critical_threshold"`
	RideDowntimeCriticalHours float64 `mapstructure:"ride_downtime_critical_hours"`
	SuddenChangeWarnPercent   float64 `mapstructure:"sudden_change_warn_percent"`
	SuddenChangeMinPriorScore float64 `mapstructure:"sudden_change_min_prior_score"`
	RideCountWarnRatio        float64 `mapstructure:"ride_count_warn_ratio"`
	RideCountCriticalRatio    float64 `mapstructure:"ride_count_critical_ratio"`
	RideCountBaselineDays     int     `mapstructure:"ride_count_baseline_days"`
}

// Tracing configures the optional OpenTelemetry OTLP exporter used to trace
// collection cycles and aggregation jobs end to end.
type Tracing struct {
	Enabled            bool     `mapstructure:"enabled"`
	Endpoint           string   `mapstructure:"endpoint"`
	Environment        string   `mapstructure:"environment"`
	SamplingStrategy   string   `mapstructure:"sampling_strategy"`
	SamplingRate       float64  `mapstructure:"sampling_rate"`
	Insecure           bool     `mapstructure:"insecure"`
	AttributeAllowlist []string `mapstructure:"attribute_allowlist"`
}

// Observability mirrors the teacher's logging/metrics config shape.
type Observability struct {
	MetricsPort int     `mapstructure:"metrics_port"`
	LogLevel    string  `mapstructure:"log_level"`
	Tracing     Tracing `mapstructure:"tracing"`
}

// Config is the root configuration object, loaded once at process start and
// passed by pointer through every constructor.
type Config struct {
	Database       Database       `mapstructure:"database"`
	Collector      Collector      `mapstructure:"collector"`
	Retention      Retention      `mapstructure:"retention"`
	Shame          Shame          `mapstructure:"shame"`
	Classification Classification `mapstructure:"classification"`
	QueryEngine    QueryEngine    `mapstructure:"query_engine"`
	Audit          Audit          `mapstructure:"audit"`
	Schedule       Schedule       `mapstructure:"schedule"`
	Anomaly        Anomaly        `mapstructure:"anomaly"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Database: Database{
			DSN:             "postgres://localhost/themeparkhallofshame?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			PingOnCheckout:  true,
		},
		Collector: Collector{
			SnapshotIntervalMinutes: 5,
			WorkerPoolSize:          8,
			FetchTimeout:            10 * time.Second,
			MaxRetriesPerPark:       2,
			RetryBackoff:            2 * time.Second,
			UpstreamBaseURL:         "https://queue-times.com/parks",
			BreakerWindow:           10 * time.Minute,
			BreakerCooldown:         5 * time.Minute,
			BreakerFailureThreshold: 0.8,
			BreakerMinSamples:       4,
		},
		Retention: Retention{
			MinRawSnapshotAge: 24 * time.Hour,
		},
		Shame: Shame{
			DisneyUniversalWindow: 7 * 24 * time.Hour,
			OtherOperatorWindow:   3 * 24 * time.Hour,
			ParkTypeOverrides:     []string{"Dollywood"},
			MetricsVersion:        "v1",
		},
		Classification: Classification{
			RefreshInterval: 10 * time.Minute,
		},
		QueryEngine: QueryEngine{
			UseAggregates: true,
			DefaultLimit:  50,
		},
		Audit: Audit{
			RideDailyMinutesTolerance:    10,
			ParkDailyHoursTolerance:      0.17,
			ParkDailyRidesTolerance:      1,
			RideHourlyHoursTolerance:     0.1,
			RideHourlyPercentTolerance:   2,
			ParkHourlyShameTolerance:     0.3,
			ParkHourlyHoursTolerance:     0.25,
			IntervalConsistencyTolerance: 0.20,
			CriticalRideDailyMismatches:  10,
			CriticalParkDailyMismatches:  5,
			CriticalRideHourlyMismatches: 10,
			CriticalParkHourlyMismatches: 5,
			CriticalRideDailyMissing:     5,
			CriticalParkDailyMissing:     2,
			CriticalRideHourlyMissing:    5,
			CriticalParkHourlyMissing:    2,
		},
		Schedule: Schedule{
			DailyCron:  "10 1 * * *",
			WeeklyCron: "30 2 * * *",
		},
		Anomaly: Anomaly{
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
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing: Tracing{
				Enabled:          false,
				SamplingStrategy: "probabilistic",
				SamplingRate:     0.1,
			},
		},
	}
}

// Load reads configuration from a YAML file (optional) layered under env
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("THPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	setDefaults(v, def)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("database.dsn", def.Database.DSN)
	v.SetDefault("database.max_open_conns", def.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", def.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", def.Database.ConnMaxLifetime)
	v.SetDefault("database.ping_on_checkout", def.Database.PingOnCheckout)

	v.SetDefault("collector.snapshot_interval_minutes", def.Collector.SnapshotIntervalMinutes)
	v.SetDefault("collector.worker_pool_size", def.Collector.WorkerPoolSize)
	v.SetDefault("collector.fetch_timeout", def.Collector.FetchTimeout)
	v.SetDefault("collector.max_retries_per_park", def.Collector.MaxRetriesPerPark)
	v.SetDefault("collector.retry_backoff", def.Collector.RetryBackoff)
	v.SetDefault("collector.upstream_base_url", def.Collector.UpstreamBaseURL)
	v.SetDefault("collector.breaker_window", def.Collector.BreakerWindow)
	v.SetDefault("collector.breaker_cooldown", def.Collector.BreakerCooldown)
	v.SetDefault("collector.breaker_failure_threshold", def.Collector.BreakerFailureThreshold)
	v.SetDefault("collector.breaker_min_samples", def.Collector.BreakerMinSamples)

	v.SetDefault("retention.min_raw_snapshot_age", def.Retention.MinRawSnapshotAge)

	v.SetDefault("shame.disney_universal_window", def.Shame.DisneyUniversalWindow)
	v.SetDefault("shame.other_operator_window", def.Shame.OtherOperatorWindow)
	v.SetDefault("shame.park_type_overrides", def.Shame.ParkTypeOverrides)
	v.SetDefault("shame.metrics_version", def.Shame.MetricsVersion)

	v.SetDefault("classification.refresh_interval", def.Classification.RefreshInterval)

	v.SetDefault("query_engine.use_aggregates", def.QueryEngine.UseAggregates)
	v.SetDefault("query_engine.default_limit", def.QueryEngine.DefaultLimit)

	v.SetDefault("audit.ride_daily_minutes_tolerance", def.Audit.RideDailyMinutesTolerance)
	v.SetDefault("audit.park_daily_hours_tolerance", def.Audit.ParkDailyHoursTolerance)
	v.SetDefault("audit.park_daily_rides_tolerance", def.Audit.ParkDailyRidesTolerance)
	v.SetDefault("audit.ride_hourly_hours_tolerance", def.Audit.RideHourlyHoursTolerance)
	v.SetDefault("audit.ride_hourly_percent_tolerance", def.Audit.RideHourlyPercentTolerance)
	v.SetDefault("audit.park_hourly_shame_tolerance", def.Audit.ParkHourlyShameTolerance)
	v.SetDefault("audit.park_hourly_hours_tolerance", def.Audit.ParkHourlyHoursTolerance)
	v.SetDefault("audit.interval_consistency_tolerance", def.Audit.IntervalConsistencyTolerance)
	v.SetDefault("audit.critical_ride_daily_mismatches", def.Audit.CriticalRideDailyMismatches)
	v.SetDefault("audit.critical_park_daily_mismatches", def.Audit.CriticalParkDailyMismatches)
	v.SetDefault("audit.critical_ride_hourly_mismatches", def.Audit.CriticalRideHourlyMismatches)
	v.SetDefault("audit.critical_park_hourly_mismatches", def.Audit.CriticalParkHourlyMismatches)
	v.SetDefault("audit.critical_ride_daily_missing", def.Audit.CriticalRideDailyMissing)
	v.SetDefault("audit.critical_park_daily_missing", def.Audit.CriticalParkDailyMissing)
	v.SetDefault("audit.critical_ride_hourly_missing", def.Audit.CriticalRideHourlyMissing)
	v.SetDefault("audit.critical_park_hourly_missing", def.Audit.CriticalParkHourlyMissing)

	v.SetDefault("schedule.daily_cron", def.Schedule.DailyCron)
	v.SetDefault("schedule.weekly_cron", def.Schedule.WeeklyCron)

	v.SetDefault("anomaly.zscore_baseline_days", def.Anomaly.ZScoreBaselineDays)
	v.SetDefault("anomaly.zscore_min_observations", def.Anomaly.ZScoreMinObservations)
	v.SetDefault("anomaly.zscore_warn_threshold", def.Anomaly.ZScoreWarnThreshold)
	v.SetDefault("anomaly.zscore_critical_threshold", def.Anomaly.ZScoreCriticalThreshold)
	v.SetDefault("anomaly.ride_downtime_critical_hours", def.Anomaly.RideDowntimeCriticalHours)
	v.SetDefault("anomaly.sudden_change_warn_percent", def.Anomaly.SuddenChangeWarnPercent)
	v.SetDefault("anomaly.sudden_change_min_prior_score", def.Anomaly.SuddenChangeMinPriorScore)
	v.SetDefault("anomaly.ride_count_warn_ratio", def.Anomaly.RideCountWarnRatio)
	v.SetDefault("anomaly.ride_count_critical_ratio", def.Anomaly.RideCountCriticalRatio)
	v.SetDefault("anomaly.ride_count_baseline_days", def.Anomaly.RideCountBaselineDays)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)
}

// Validate checks config constraints and returns an error on invalid
// settings.
func Validate(cfg *Config) error {
	if cfg.Collector.SnapshotIntervalMinutes < 1 {
		return fmt.Errorf("collector.snapshot_interval_minutes must be >= 1")
	}
	if cfg.Collector.WorkerPoolSize < 1 {
		return fmt.Errorf("collector.worker_pool_size must be >= 1")
	}
	if cfg.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be >= 1")
	}
	if cfg.Shame.DisneyUniversalWindow <= 0 || cfg.Shame.OtherOperatorWindow <= 0 {
		return fmt.Errorf("shame windows must be positive durations")
	}
	if cfg.QueryEngine.DefaultLimit < 1 {
		return fmt.Errorf("query_engine.default_limit must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if _, err := cron.ParseStandard(cfg.Schedule.DailyCron); err != nil {
		return fmt.Errorf("schedule.daily_cron: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.Schedule.WeeklyCron); err != nil {
		return fmt.Errorf("schedule.weekly_cron: %w", err)
	}
	return nil
}
