// Package observability defines the Prometheus collectors exported at
// /metrics. Collectors register once at package load; hot paths touch them
// through the helper functions.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts finished HTTP requests by route.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency by route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetmon_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SamplesIngested counts samples accepted and persisted.
	SamplesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmon_samples_ingested_total",
			Help: "Total number of samples accepted and persisted",
		},
	)

	// SamplesRejected counts samples refused at ingestion.
	SamplesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_samples_rejected_total",
			Help: "Total number of samples rejected at ingestion",
		},
		[]string{"reason"},
	)

	// CleanupRuns counts retention runs by outcome.
	CleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_cleanup_runs_total",
			Help: "Total number of retention cleanup runs",
		},
		[]string{"outcome"},
	)

	// SamplesDeleted counts samples removed by retention.
	SamplesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmon_samples_deleted_total",
			Help: "Total number of samples deleted by retention",
		},
	)

	// SourcesPurged counts sources fully removed by retention.
	SourcesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmon_sources_purged_total",
			Help: "Total number of sources fully removed by retention",
		},
	)

	// CleanupDuration tracks how long cleanup runs take.
	CleanupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetmon_cleanup_duration_seconds",
			Help:    "Retention cleanup run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	// SourcesByState reports the fleet's liveness breakdown, refreshed on
	// every liveness snapshot.
	SourcesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetmon_sources_by_state",
			Help: "Number of sources per liveness state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SamplesIngested)
	prometheus.MustRegister(SamplesRejected)
	prometheus.MustRegister(CleanupRuns)
	prometheus.MustRegister(SamplesDeleted)
	prometheus.MustRegister(SourcesPurged)
	prometheus.MustRegister(CleanupDuration)
	prometheus.MustRegister(SourcesByState)
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIngested records one persisted sample.
func RecordIngested() {
	SamplesIngested.Inc()
}

// RecordRejected records one refused sample.
func RecordRejected(reason string) {
	SamplesRejected.WithLabelValues(reason).Inc()
}

// RecordCleanup records one owned (non-coalesced) cleanup run.
func RecordCleanup(outcome string, samplesDeleted int64, sourcesPurged int, duration time.Duration) {
	CleanupRuns.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		SamplesDeleted.Add(float64(samplesDeleted))
		SourcesPurged.Add(float64(sourcesPurged))
	}
	CleanupDuration.Observe(duration.Seconds())
}

// SetSourcesByState refreshes the liveness breakdown gauge.
func SetSourcesByState(online, offline, inactive int) {
	SourcesByState.WithLabelValues("online").Set(float64(online))
	SourcesByState.WithLabelValues("offline").Set(float64(offline))
	SourcesByState.WithLabelValues("inactive").Set(float64(inactive))
}
