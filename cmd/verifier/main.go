// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/czei/themeparkhallofshame/internal/audit"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
)

var version = "dev"

func main() {
	var configPath string
	var dateFlag string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&dateFlag, "date", "", "Local date to verify, YYYY-MM-DD (default: yesterday in the reference timezone)")
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
	verifier := audit.New(pg, cfg.Audit, windows, cfg.Shame.MetricsVersion, cfg.Collector.SnapshotIntervalMinutes)

	localDate := dateFlag
	if localDate == "" {
		refLoc, err := time.LoadLocation(clock.DefaultTimezone)
		if err != nil {
			logger.Fatal("failed to load reference timezone", obs.Err(err))
		}
		localDate = clock.LocalDate(time.Now().AddDate(0, 0, -1), refLoc)
	}

	report, err := verifier.VerifyDate(ctx, localDate)
	if err != nil {
		logger.Fatal("verification failed", obs.Err(err))
	}

	for _, tr := range []audit.TableResult{report.RideDaily, report.ParkDaily, report.RideHourly, report.ParkHourly} {
		if tr.Severity != audit.SeverityOK {
			obs.AuditMismatches.WithLabelValues(tr.Table, string(tr.Severity)).Add(float64(len(tr.Mismatches) + tr.Missing))
			logger.Warn("audit mismatch",
				obs.String("table", tr.Table),
				obs.String("severity", string(tr.Severity)),
				obs.Int("mismatches", len(tr.Mismatches)),
				obs.Int("missing", tr.Missing),
			)
		}
	}
	if len(report.DisneyUniversalGaps) > 0 {
		logger.Warn("disney/universal coverage gaps found", obs.Int("count", len(report.DisneyUniversalGaps)))
	}
	if !report.Interval.WithinTolerance {
		logger.Warn("snapshot interval drift",
			obs.String("median_minutes", fmt.Sprintf("%.2f", report.Interval.MedianMinutes)),
			obs.String("configured_minutes", fmt.Sprintf("%.2f", report.Interval.ConfiguredMinutes)),
		)
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("failed to marshal report", obs.Err(err))
	}
	fmt.Println(string(b))
}
