// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/middleware"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

// ErrCodeCustodyBroken marks a custody history that failed verification.
const ErrCodeCustodyBroken = "CUSTODY_CHAIN_BROKEN"

const defaultAccessPurpose = "review"

// ListAnomalies handles GET /api/v1/anomalies?status=&type=&limit=
// Listing does not record custody access.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	q := r.URL.Query()
	req := ListAnomaliesRequest{Status: q.Get("status"), Type: q.Get("type"), Limit: limit}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeServiceError(rw, verr)
		return
	}

	anomalies, err := h.deps.Anomalies.List(r.Context(), anomaly.Filter{
		Status: anomaly.Status(req.Status),
		Type:   detection.AnomalyType(req.Type),
		Limit:  req.Limit,
	})
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if anomalies == nil {
		anomalies = []anomaly.SurveillanceAnomaly{}
	}
	rw.List(anomalies, len(anomalies))
}

// GetAnomaly handles GET /api/v1/anomalies/{id}?purpose=
// Each read is recorded in the custody log. Tampered evidence yields 409
// with the anomaly as error details.
func (h *Handler) GetAnomaly(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	purpose := r.URL.Query().Get("purpose")
	if purpose == "" {
		purpose = defaultAccessPurpose
	}

	a, err := h.deps.Anomalies.Get(r.Context(), chi.URLParam(r, "id"), middleware.ActorFromContext(r.Context()), purpose)
	if errors.Is(err, anomaly.ErrEvidenceTampered) {
		rw.Conflict(ErrCodeEvidenceTampered, "anomaly evidence failed integrity verification", a)
		return
	}
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(a)
}

// UpdateAnomalyStatus handles PATCH /api/v1/anomalies/{id}/status.
func (h *Handler) UpdateAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req UpdateStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(rw, err)
		return
	}

	a, err := h.deps.Anomalies.UpdateStatus(r.Context(), chi.URLParam(r, "id"), anomaly.Status(req.Status),
		middleware.ActorFromContext(r.Context()), req.Notes)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(a)
}

// CustodyHistory is the response of GET /anomalies/{id}/custody.
type CustodyHistory struct {
	AnomalyID     string               `json:"anomaly_id"`
	ChainVerified bool                 `json:"chain_verified"`
	Entries       []audit.CustodyEntry `json:"entries"`
}

// GetCustody handles GET /api/v1/anomalies/{id}/custody. A history that
// fails verification is returned as 409 with the entries as details.
func (h *Handler) GetCustody(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	entries, err := h.deps.Anomalies.Custody(r.Context(), id)
	if entries == nil {
		entries = []audit.CustodyEntry{}
	}
	history := CustodyHistory{AnomalyID: id, ChainVerified: err == nil, Entries: entries}

	if errors.Is(err, audit.ErrBrokenChain) {
		rw.Conflict(ErrCodeCustodyBroken, err.Error(), history)
		return
	}
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(history)
}
