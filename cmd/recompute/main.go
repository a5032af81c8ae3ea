// Copyright 2025 James Ross

// recompute forces aggregators to re-upsert already-computed rows over a
// historical range, e.g. after a bug fix in one of the aggregate formulas or
// after raw snapshots were backfilled. It reuses the same RunHour/RunDay/
// RunWeek/RunMonth entry points the scheduled jobs call, so a recompute run
// converges to exactly what a normal scheduled run would have produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/czei/themeparkhallofshame/internal/aggregate/daily"
	"github.com/czei/themeparkhallofshame/internal/aggregate/hourly"
	"github.com/czei/themeparkhallofshame/internal/aggregate/weekly"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
)

func main() {
	var configPath string
	var granularity string
	var fromFlag string
	var toFlag string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&granularity, "granularity", "daily", "Which aggregator to recompute: hourly|daily|weekly|monthly")
	fs.StringVar(&fromFlag, "from", "", "Start of range (RFC3339 for hourly, YYYY-MM-DD otherwise)")
	fs.StringVar(&toFlag, "to", "", "End of range, inclusive (same format as -from)")
	_ = fs.Parse(os.Args[1:])

	if fromFlag == "" || toFlag == "" {
		fmt.Fprintln(os.Stderr, "both -from and -to are required")
		os.Exit(1)
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

	pg, err := store.OpenPostgres(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", obs.Err(err))
	}
	defer pg.Close()

	ctx := context.Background()
	windows := shame.Windows{
		DisneyUniversal: cfg.Shame.DisneyUniversalWindow,
		Other:           cfg.Shame.OtherOperatorWindow,
		ExtraOperators:  cfg.Shame.ParkTypeOverrides,
	}
	refLoc, err := time.LoadLocation(clock.DefaultTimezone)
	if err != nil {
		logger.Fatal("failed to load reference timezone", obs.Err(err))
	}

	switch granularity {
	case "hourly":
		from, err := time.Parse(time.RFC3339, fromFlag)
		if err != nil {
			logger.Fatal("invalid -from", obs.Err(err))
		}
		to, err := time.Parse(time.RFC3339, toFlag)
		if err != nil {
			logger.Fatal("invalid -to", obs.Err(err))
		}
		agg := hourly.New(pg, windows, cfg.Shame.MetricsVersion, cfg.Collector.SnapshotIntervalMinutes, logger)
		for h := from.UTC().Truncate(time.Hour); !h.After(to); h = h.Add(time.Hour) {
			if err := agg.RunHour(ctx, h); err != nil {
				logger.Error("recompute hourly failed", obs.String("hour", h.Format(time.RFC3339)), obs.Err(err))
				continue
			}
			logger.Info("recomputed hour", obs.String("hour", h.Format(time.RFC3339)))
		}
	case "daily":
		from, err := time.ParseInLocation("2006-01-02", fromFlag, refLoc)
		if err != nil {
			logger.Fatal("invalid -from", obs.Err(err))
		}
		to, err := time.ParseInLocation("2006-01-02", toFlag, refLoc)
		if err != nil {
			logger.Fatal("invalid -to", obs.Err(err))
		}
		agg := daily.New(pg, windows, cfg.Shame.MetricsVersion, cfg.Collector.SnapshotIntervalMinutes, logger)
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			localDate := d.Format("2006-01-02")
			if err := agg.RunDay(ctx, localDate); err != nil {
				logger.Error("recompute daily failed", obs.String("date", localDate), obs.Err(err))
				continue
			}
			logger.Info("recomputed day", obs.String("date", localDate))
		}
	case "weekly":
		agg := weekly.New(pg, cfg.Shame.MetricsVersion, logger)
		for ws := fromFlag; ; {
			if err := agg.RunWeek(ctx, ws); err != nil {
				logger.Error("recompute weekly failed", obs.String("week_start", ws), obs.Err(err))
			} else {
				logger.Info("recomputed week", obs.String("week_start", ws))
			}
			if ws == toFlag {
				break
			}
			d, err := time.ParseInLocation("2006-01-02", ws, refLoc)
			if err != nil {
				logger.Fatal("invalid week start", obs.Err(err))
			}
			ws = d.AddDate(0, 0, 7).Format("2006-01-02")
		}
	case "monthly":
		agg := weekly.New(pg, cfg.Shame.MetricsVersion, logger)
		for ms := fromFlag; ; {
			if err := agg.RunMonth(ctx, ms); err != nil {
				logger.Error("recompute monthly failed", obs.String("month_start", ms), obs.Err(err))
			} else {
				logger.Info("recomputed month", obs.String("month_start", ms))
			}
			if ms == toFlag {
				break
			}
			d, err := time.ParseInLocation("2006-01-02", ms, refLoc)
			if err != nil {
				logger.Fatal("invalid month start", obs.Err(err))
			}
			next := time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, refLoc)
			ms = next.Format("2006-01-02")
		}
	default:
		logger.Fatal("unknown granularity", obs.String("granularity", granularity))
	}
}
