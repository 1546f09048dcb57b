// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package audit records the chain of custody for surveillance anomalies.
//
// Every create, modification, access and export of an anomaly appends one
// CustodyEntry. Entries are never updated or deleted. Within one anomaly the
// entries form a hash chain: each entry stores the hash of its predecessor
// and its own hash over its fields, so removing or editing an entry breaks
// verification.
//
// # Event Types
//
//   - created: the consolidator persisted a new anomaly
//   - modified: a reviewer or the retention job changed a field
//   - accessed: an operator read the anomaly or reviewed its alert
//   - exported: the anomaly was included in an evidence bundle
//   - integrity_failure: the stored evidence no longer matches its hash
//
// # Architecture
//
//	Logger.Record() -> lock -> Store.Last() -> chain hash -> Store.Append()
//
// Writes are synchronous. A custody record that silently failed to persist
// would leave the chain incomplete, so Record returns the store error to the
// caller.
//
// # Storage
//
// MemoryStore serves tests. DuckDBStore persists to the custody_entries
// table with a UNIQUE (anomaly_id, sequence) constraint.
package audit
