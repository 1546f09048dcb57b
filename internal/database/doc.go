// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package database owns the DuckDB connection shared by the ShadowCheck stores.
//
// # Overview
//
// The package opens the DuckDB file, configures the connection pool and hands
// the *sql.DB to the domain stores (anomalies, alerts, custody entries,
// correlations, safe zones, relationships and detection jobs). Each store
// owns its own table definitions through a CreateTable method; InitSchema
// runs them in order and checkpoints the WAL afterwards.
//
// # Error Classification
//
// DuckDB reports constraint and connection failures only through error text.
// IsUniqueConstraintError and IsConnectionError classify those messages so
// stores can map them to domain errors such as "already exists".
//
// # Shutdown
//
// Close forces a CHECKPOINT before closing so the next startup does not need
// to replay the WAL.
package database
