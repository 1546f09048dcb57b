// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package api serves the ShadowCheck REST API using the chi router.

Every response except /metrics and the websocket upgrade uses the APIResponse
envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "meta": {...}}

# Routes

All routes live under /api/v1:

	GET    /health                       scheduler health
	GET    /jobs                         detection jobs
	GET    /jobs/{id}
	POST   /jobs/{id}/run                manual trigger, returns the execution summary
	GET    /alerts?status=
	POST   /alerts/{id}/acknowledge
	POST   /alerts/{id}/dismiss
	GET    /anomalies?status=&type=&limit=
	GET    /anomalies/{id}               records an access custody entry
	PATCH  /anomalies/{id}/status
	GET    /anomalies/{id}/custody
	POST   /correlations/{deviceID}?force=
	GET    /safe-zones
	POST   /safe-zones
	DELETE /safe-zones/{id}
	PUT    /relationships
	POST   /export                       evidence bundle
	GET    /ws/alerts                    live alert feed

# Actors

Reads and writes that touch anomaly custody record the actor from the
X-Actor header, or "api" when absent.

# Integrity

Reading an anomaly whose evidence no longer matches its stored hash returns
409 EVIDENCE_TAMPERED with the anomaly in the error details. Status changes
on such anomalies are refused with the same code.
*/
package api
