// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/czei/themeparkhallofshame/internal/aggregate/hourly"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var hourFlag string
	var once bool
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&hourFlag, "hour", "", "UTC hour to aggregate, RFC3339 (default: the most recently completed hour)")
	fs.BoolVar(&once, "once", false, "Aggregate a single hour and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	pg, err := store.OpenPostgres(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", obs.Err(err))
	}
	defer pg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyCheck := func(c context.Context) error {
		_, err := pg.GetActiveParks(c)
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	windows := shame.Windows{
		DisneyUniversal: cfg.Shame.DisneyUniversalWindow,
		Other:           cfg.Shame.OtherOperatorWindow,
		ExtraOperators:  cfg.Shame.ParkTypeOverrides,
	}
	agg := hourly.New(pg, windows, cfg.Shame.MetricsVersion, cfg.Collector.SnapshotIntervalMinutes, logger)

	runOnce := func(hourStart time.Time) {
		if err := agg.RunHour(ctx, hourStart); err != nil {
			logger.Error("hourly aggregation failed", obs.String("hour", hourStart.Format(time.RFC3339)), obs.Err(err))
			return
		}
		reapRawSnapshots(ctx, pg, cfg, logger)
	}

	if once || hourFlag != "" {
		hourStart := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)
		if hourFlag != "" {
			parsed, err := time.Parse(time.RFC3339, hourFlag)
			if err != nil {
				logger.Fatal("invalid -hour value", obs.Err(err))
			}
			hourStart = parsed
		}
		runOnce(hourStart)
		return
	}

	// scheduled at :05 past each hour, aggregating the hour that just
	// completed, per §6.
	for {
		now := time.Now().UTC()
		completedHour := now.Truncate(time.Hour)
		nextRun := completedHour.Add(time.Hour + 5*time.Minute)
		select {
		case <-ctx.Done():
			logger.Info("hourlyagg stopped")
			return
		case <-time.After(nextRun.Sub(now)):
			runOnce(completedHour)
		}
	}
}

// reapRawSnapshots deletes raw snapshots older than the most recent
// completed hourly aggregation window, bounded by the configured minimum
// retention age, per §4.2: no row is deletable whose hour is not covered by
// a status=success row in AggregationLog.
func reapRawSnapshots(ctx context.Context, pg *store.Postgres, cfg *config.Config, logger *zap.Logger) {
	windowEnd, ok, err := pg.LastSuccessfulHourlyWindowEnd(ctx)
	if err != nil {
		logger.Warn("retention: failed to read last successful hourly window", obs.Err(err))
		return
	}
	if !ok {
		return
	}
	cutoff := windowEnd
	ageCutoff := time.Now().UTC().Add(-cfg.Retention.MinRawSnapshotAge)
	if ageCutoff.Before(cutoff) {
		cutoff = ageCutoff
	}
	deleted, err := pg.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		logger.Warn("retention: failed to delete raw snapshots", obs.Err(err))
		return
	}
	if deleted > 0 {
		logger.Info("retention: deleted raw snapshots", obs.String("cutoff", cutoff.Format(time.RFC3339)), zap.Int64("rows", deleted))
	}
}
