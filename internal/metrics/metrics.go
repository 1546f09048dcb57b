// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of connected alert stream clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of alert messages pushed to stream clients",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Detection Metrics
	DetectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_runs_total",
			Help: "Total number of detector invocations",
		},
		[]string{"detector", "outcome"},
	)

	DetectorCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_candidates_total",
			Help: "Total number of candidates emitted by detectors",
		},
		[]string{"detector"},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_duration_seconds",
			Help:    "Duration of detector runs in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"detector"},
	)

	CandidatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidates_suppressed_total",
			Help: "Total number of candidates dropped by context filtering",
		},
		[]string{"reason"},
	)

	// Anomaly and Alert Metrics
	AnomaliesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_created_total",
			Help: "Total number of anomalies recorded",
		},
		[]string{"type"},
	)

	AnomaliesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomalies_deduplicated_total",
			Help: "Total number of candidates merged into an existing anomaly",
		},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts raised",
		},
		[]string{"level"},
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_transitions_total",
			Help: "Total number of alert workflow transitions",
		},
		[]string{"to"},
	)

	NotifierDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_deliveries_total",
			Help: "Total number of outbound alert notifications",
		},
		[]string{"notifier", "outcome"},
	)

	// Scheduler Metrics
	JobExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_executions_total",
			Help: "Total number of finished job executions",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of job executions in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"job"},
	)

	JobConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "job_consecutive_failures",
			Help: "Current consecutive failure count per job",
		},
		[]string{"job"},
	)

	JobNeedsAttention = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "job_needs_attention",
			Help: "1 when a job has reached the consecutive failure threshold",
		},
		[]string{"job"},
	)

	JobLeaseContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_lease_contention_total",
			Help: "Total number of job triggers skipped because another run held the lease",
		},
		[]string{"job"},
	)

	// Integrity Metrics
	IntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_integrity_failures_total",
			Help: "Total number of evidence hash mismatches detected",
		},
	)

	// Correlation Metrics
	CorrelationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "government_correlations_total",
			Help: "Total number of government infrastructure analyses",
		},
		[]string{"pattern"},
	)

	// Application Info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

var startTime = time.Now()

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// RecordDBQuery records a database query's duration and, on failure, its
// truncated error text.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDetectorRun records one detector invocation. outcome is "ok",
// "error" or "panic".
func RecordDetectorRun(detector, outcome string, candidates int, duration time.Duration) {
	DetectorRuns.WithLabelValues(detector, outcome).Inc()
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	if candidates > 0 {
		DetectorCandidates.WithLabelValues(detector).Add(float64(candidates))
	}
}

// RecordJobExecution records a finished execution and the job's current
// failure streak.
func RecordJobExecution(job, status string, duration time.Duration, consecutiveFailures int) {
	JobExecutions.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	JobConsecutiveFailures.WithLabelValues(job).Set(float64(consecutiveFailures))
}

func RecordNotification(notifier string, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	NotifierDeliveries.WithLabelValues(notifier, outcome).Inc()
}

// circuitStateValue maps a breaker state name to the gauge encoding.
func circuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitTransition records a breaker state change.
func RecordCircuitTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(circuitStateValue(to))
}
