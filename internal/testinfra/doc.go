// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is built only with the integration tag:
//
//	go test -tags integration ./internal/measurement/...
//
// Example:
//
//	func TestAgainstPostgres(t *testing.T) {
//		pg := testinfra.StartPostgres(t)
//		// connect with pg.DSN
//	}
package testinfra
