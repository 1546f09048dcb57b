// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package scheduler runs detection jobs on an interval or on demand.
//
// Each DetectionJob selects a detector set by type:
//
//   - full_scan: every detector over every device
//   - incremental: the movement detectors over devices seen in the window
//   - targeted: named devices, or the government correlation path
//   - maintenance: archives old dismissed and false-positive anomalies
//
// A job execution holds a per-job lease for its whole duration, so two
// schedulers sharing a lease backend never run the same job at once. The
// persisted "running" status is kept as a second guard and is recovered
// once it is older than the job's maximum execution time.
//
// A failed execution is recorded on the job and never stops the scheduler.
// Jobs that keep failing are reported by Health but are not disabled.
package scheduler
