// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/alerting"
	"github.com/tomtom215/shadowcheck/internal/middleware"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

// ListAlerts handles GET /api/v1/alerts?status=&limit=&offset=
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	req := ListAlertsRequest{Status: r.URL.Query().Get("status"), Limit: limit, Offset: offset}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeServiceError(rw, verr)
		return
	}

	alerts, err := h.deps.Alerts.List(r.Context(), alerting.Filter{
		Status: alerting.Status(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if alerts == nil {
		alerts = []alerting.Alert{}
	}
	rw.List(alerts, len(alerts))
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	alert, err := h.deps.Alerts.Acknowledge(r.Context(), chi.URLParam(r, "id"), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(alert)
}

// DismissAlert handles POST /api/v1/alerts/{id}/dismiss. An empty body
// dismisses without the false positive flag.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req DismissAlertRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeRequestError(rw, err)
			return
		}
	}

	alert, err := h.deps.Alerts.Dismiss(r.Context(), chi.URLParam(r, "id"),
		middleware.ActorFromContext(r.Context()), req.FalsePositive, req.Reason)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(alert)
}
