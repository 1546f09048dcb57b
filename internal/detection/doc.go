// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package detection implements the surveillance detectors.
//
// Detection Architecture:
//
//	measurement.Store -> Runner -> Detector[] -> Candidate[] -> contextfilter -> anomaly
//
// Each detector reads observations for a time window and returns candidates
// carrying a confidence in [0, 1] and a typed Evidence payload:
//   - Impossible Distance: a device reappearing farther away than its
//     plausible ground speed allows
//   - Coordinated Movement: three or more devices moving together, grouped
//     with a union-find over pairwise co-movement
//   - Sequential MAC: runs of adjacent MAC suffixes observed close together
//   - Aerial Signature: altitude and climb profiles consistent with aircraft
//   - Route Correlation: devices that keep following the protected device
//
// The Runner isolates detector failures: a panicking or failing detector is
// logged and counted, and the remaining detectors still run.
package detection
