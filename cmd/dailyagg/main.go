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

	"github.com/czei/themeparkhallofshame/internal/aggregate/daily"
	"github.com/czei/themeparkhallofshame/internal/anomaly"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var dateFlag string
	var once bool
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&dateFlag, "date", "", "Local date to aggregate, YYYY-MM-DD (default: yesterday in the reference timezone)")
	fs.BoolVar(&once, "once", false, "Aggregate a single day and exit")
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
	agg := daily.New(pg, windows, cfg.Shame.MetricsVersion, cfg.Collector.SnapshotIntervalMinutes, logger)
	detector := anomaly.New(pg, cfg.Anomaly)

	refLoc, err := time.LoadLocation(clock.DefaultTimezone)
	if err != nil {
		logger.Fatal("failed to load reference timezone", obs.Err(err))
	}

	runOnce := func(localDate string) {
		if err := agg.RunDay(ctx, localDate); err != nil {
			logger.Error("daily aggregation failed", obs.String("date", localDate), obs.Err(err))
			return
		}
		findings, err := detector.RunDay(ctx, localDate)
		if err != nil {
			logger.Error("anomaly sweep failed", obs.String("date", localDate), obs.Err(err))
			return
		}
		for _, f := range findings {
			logger.Warn("anomaly detected",
				obs.String("detector", f.Detector),
				zap.Int64("park_id", f.ParkID),
				zap.Int64("ride_id", f.RideID),
				obs.String("severity", string(f.Severity)),
				obs.String("detail", f.Detail),
			)
			obs.AnomaliesDetected.WithLabelValues(f.Detector, string(f.Severity)).Inc()
		}
	}

	if once || dateFlag != "" {
		localDate := dateFlag
		if localDate == "" {
			localDate = clock.LocalDate(time.Now().AddDate(0, 0, -1), refLoc)
		}
		runOnce(localDate)
		return
	}

	// Run once at startup covering yesterday, then on the configured daily
	// cron schedule thereafter (default: shortly after 01:00 reference time,
	// well clear of the hourly job's own top-of-hour runs).
	runOnce(clock.LocalDate(time.Now().AddDate(0, 0, -1), refLoc))

	sched := cron.New(cron.WithLocation(refLoc))
	if _, err := sched.AddFunc(cfg.Schedule.DailyCron, func() {
		runOnce(clock.LocalDate(time.Now().AddDate(0, 0, -1), refLoc))
	}); err != nil {
		logger.Fatal("invalid daily cron schedule", obs.String("spec", cfg.Schedule.DailyCron), obs.Err(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	<-ctx.Done()
	logger.Info("dailyagg stopped")
}
