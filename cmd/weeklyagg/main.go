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

	"github.com/czei/themeparkhallofshame/internal/aggregate/weekly"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/store"
	"github.com/robfig/cron/v3"
)

var version = "dev"

func main() {
	var configPath string
	var weekStartFlag string
	var monthStartFlag string
	var once bool
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&weekStartFlag, "week-start", "", "ISO week start (Monday, YYYY-MM-DD) to roll up (default: last completed week)")
	fs.StringVar(&monthStartFlag, "month-start", "", "Calendar month start (YYYY-MM-01) to roll up (default: last completed month)")
	fs.BoolVar(&once, "once", false, "Roll up a single week/month and exit")
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

	agg := weekly.New(pg, cfg.Shame.MetricsVersion, logger)

	refLoc, err := time.LoadLocation(clock.DefaultTimezone)
	if err != nil {
		logger.Fatal("failed to load reference timezone", obs.Err(err))
	}

	runWeek := func(weekStart string) {
		if err := agg.RunWeek(ctx, weekStart); err != nil {
			logger.Error("weekly rollup failed", obs.String("week_start", weekStart), obs.Err(err))
		}
	}
	runMonth := func(monthStart string) {
		if err := agg.RunMonth(ctx, monthStart); err != nil {
			logger.Error("monthly rollup failed", obs.String("month_start", monthStart), obs.Err(err))
		}
	}

	lastCompletedWeekStart := func() string {
		thisWeek := clock.ISOWeekStart(time.Now(), refLoc)
		prev, err := clock.PreviousISOWeekStart(thisWeek, refLoc)
		if err != nil {
			logger.Fatal("failed to compute previous ISO week start", obs.Err(err))
		}
		return prev
	}
	lastCompletedMonthStart := func() string {
		thisMonth := clock.MonthStart(time.Now(), refLoc)
		prev, err := clock.PreviousMonthStart(thisMonth, refLoc)
		if err != nil {
			logger.Fatal("failed to compute previous month start", obs.Err(err))
		}
		return prev
	}

	if once || weekStartFlag != "" || monthStartFlag != "" {
		ws := weekStartFlag
		if ws == "" {
			ws = lastCompletedWeekStart()
		}
		runWeek(ws)
		ms := monthStartFlag
		if ms == "" {
			ms = lastCompletedMonthStart()
		}
		runMonth(ms)
		return
	}

	// Weekly/monthly rollups only need to run once a completed period has
	// elapsed; a once-a-day cron firing is more than enough to catch each
	// boundary without drifting.
	runWeek(lastCompletedWeekStart())
	runMonth(lastCompletedMonthStart())

	sched := cron.New(cron.WithLocation(refLoc))
	if _, err := sched.AddFunc(cfg.Schedule.WeeklyCron, func() {
		runWeek(lastCompletedWeekStart())
		runMonth(lastCompletedMonthStart())
	}); err != nil {
		logger.Fatal("invalid weekly cron schedule", obs.String("spec", cfg.Schedule.WeeklyCron), obs.Err(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	<-ctx.Done()
	logger.Info("weeklyagg stopped")
}
