// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package metrics provides Prometheus metrics for the detection pipeline.

All collectors are registered with the default registry through promauto and
exposed at /metrics by the API server:

	curl http://localhost:8765/metrics

# Available Metrics

Detection:
  - detector_runs_total: Detector invocations (counter)
    Labels: detector, outcome (ok, error, panic)
  - detector_candidates_total: Candidates emitted (counter)
    Labels: detector
  - detector_duration_seconds: Detector wall time (histogram)
    Labels: detector
  - candidates_suppressed_total: Candidates dropped by context filtering (counter)
    Labels: reason

Anomalies and alerts:
  - anomalies_created_total: New anomalies (counter)
    Labels: type
  - anomalies_deduplicated_total: Duplicate candidates merged (counter)
  - alerts_created_total: Alerts raised (counter)
    Labels: level
  - alert_transitions_total: Workflow transitions (counter)
    Labels: to
  - notifier_deliveries_total: Outbound notifications (counter)
    Labels: notifier, outcome

Scheduler:
  - job_executions_total: Finished executions (counter)
    Labels: job, status
  - job_duration_seconds: Execution wall time (histogram)
    Labels: job
  - job_consecutive_failures: Current failure streak (gauge)
    Labels: job
  - job_needs_attention: Failure threshold reached (gauge)
    Labels: job
  - job_lease_contention_total: Triggers skipped on a held lease (counter)
    Labels: job

Integrity:
  - custody_integrity_failures_total: Evidence hash mismatches (counter)

Correlation:
  - government_correlations_total: Correlation analyses (counter)
    Labels: pattern

The package also carries database, API, WebSocket and circuit breaker
collectors shared by the infrastructure packages.
*/
package metrics
