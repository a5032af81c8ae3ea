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

	"github.com/czei/themeparkhallofshame/internal/classify"
	"github.com/czei/themeparkhallofshame/internal/clock"
	"github.com/czei/themeparkhallofshame/internal/collector"
	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/czei/themeparkhallofshame/internal/obs"
	"github.com/czei/themeparkhallofshame/internal/shame"
	"github.com/czei/themeparkhallofshame/internal/store"
)

var version = "dev"

func main() {
	var configPath string
	var once bool
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&once, "once", false, "Run a single collection cycle and exit")
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

	cache, err := classify.NewCache(ctx, pg, logger)
	if err != nil {
		logger.Fatal("failed to build classification cache", obs.Err(err))
	}
	go cache.RunRefreshLoop(ctx, cfg.Classification.RefreshInterval)

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
	fetcher := collector.NewHTTPFetcher(cfg.Collector.UpstreamBaseURL, cfg.Collector.FetchTimeout)
	coll := collector.New(pg, fetcher, clock.Real{}, cfg.Collector, windows, logger, cache)

	if once {
		if err := coll.RunCycle(ctx); err != nil {
			logger.Fatal("collection cycle failed", obs.Err(err))
		}
		return
	}

	interval := time.Duration(cfg.Collector.SnapshotIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := coll.RunCycle(ctx); err != nil {
		logger.Error("collection cycle failed", obs.Err(err))
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("collector stopped")
			return
		case <-ticker.C:
			if err := coll.RunCycle(ctx); err != nil {
				logger.Error("collection cycle failed", obs.Err(err))
			}
		}
	}
}
