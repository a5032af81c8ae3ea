// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/czei/themeparkhallofshame/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SnapshotsCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshots_collected_total",
		Help: "Total number of ride status snapshots written by the collector",
	})
	SnapshotFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_fetch_errors_total",
		Help: "Total number of upstream fetch failures, labeled by park",
	}, []string{"park"})
	SnapshotFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_fetch_duration_seconds",
		Help:    "Histogram of per-park upstream fetch durations",
		Buckets: prometheus.DefBuckets,
	})
	CollectorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collector_cycle_duration_seconds",
		Help:    "Histogram of full collection cycle durations across all parks",
		Buckets: prometheus.DefBuckets,
	})
	AggregationJobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregation_job_duration_seconds",
		Help:    "Histogram of aggregation job durations, labeled by job type",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})
	AggregationJobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_jobs_failed_total",
		Help: "Total number of failed aggregation job runs, labeled by job type",
	}, []string{"job_type"})
	AuditMismatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_mismatches_total",
		Help: "Total number of audit mismatches found, labeled by check and severity",
	}, []string{"check", "severity"})
	AnomaliesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anomalies_detected_total",
		Help: "Total number of anomalies flagged, labeled by detector and severity",
	}, []string{"detector", "severity"})
	ParksActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parks_active",
		Help: "Number of active parks tracked by the most recent collection cycle",
	})
	QueryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_latency_seconds",
		Help:    "Histogram of ranking/chart query latencies, labeled by period and path",
		Buckets: prometheus.DefBuckets,
	}, []string{"period", "path"})
)

func init() {
	prometheus.MustRegister(
		SnapshotsCollected,
		SnapshotFetchErrors,
		SnapshotFetchDuration,
		CollectorCycleDuration,
		AggregationJobDuration,
		AggregationJobsFailed,
		AuditMismatches,
		AnomaliesDetected,
		ParksActiveGauge,
		QueryLatency,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled
// shutdown. Retained for compatibility; prefer StartHTTPServer which also
// registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
