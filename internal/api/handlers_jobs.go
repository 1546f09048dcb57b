// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/middleware"
	"github.com/tomtom215/shadowcheck/internal/scheduler"
)

// Health handles GET /api/v1/health. Jobs at or over the failure threshold
// turn the response into a 503 carrying the same report.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	report, err := h.deps.Jobs.Health(r.Context())
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if !report.Healthy {
		rw.ServiceUnavailable("detection jobs need attention", report)
		return
	}
	rw.Success(report)
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	jobs, err := h.deps.Jobs.Jobs(r.Context())
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if jobs == nil {
		jobs = []scheduler.DetectionJob{}
	}
	rw.List(jobs, len(jobs))
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	job, err := h.deps.Jobs.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(job)
}

// RunJob handles POST /api/v1/jobs/{id}/run. The run is synchronous; a job
// that is disabled or already running is reported in the summary status
// with 409.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	logging.Ctx(r.Context()).Info().
		Str("job_id", id).
		Str("actor", middleware.ActorFromContext(r.Context())).
		Msg("Manual detection job run requested")

	summary, err := h.deps.Jobs.RunJob(r.Context(), id, true)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	switch summary.Status {
	case scheduler.StatusAlreadyRunning:
		rw.Conflict(ErrCodeConflict, "detection job is already running", summary)
	case scheduler.StatusDisabled:
		rw.Conflict(ErrCodeConflict, "detection job is disabled", summary)
	default:
		rw.Success(summary)
	}
}
