// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package middleware provides HTTP middleware for the ShadowCheck API.

All middleware uses the standard func(http.Handler) http.Handler shape so it
can be mounted with chi's r.Use:

	r.Use(middleware.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.PrometheusMetrics)

# Request Tracing

RequestID honors an upstream X-Request-ID header or generates a UUID, echoes
it in the response, and stores it as the logging correlation ID so every log
line written while serving the request carries it.

# Actors

Custody entries name the actor responsible for each access. Actor reads the
X-Actor header, falling back to "api", and stores it on the request context
for ActorFromContext.

# Metrics

PrometheusMetrics records api_requests_total and api_request_duration_seconds
labelled by chi route pattern rather than raw path, so identifiers in URLs do
not create new series.
*/
package middleware
