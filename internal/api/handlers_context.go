// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/middleware"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

// CorrelationResult is the response of POST /correlations/{deviceID}.
type CorrelationResult struct {
	Correlation *correlation.Correlation `json:"correlation"`
	// Analyzed is false when a fresh stored result was returned.
	Analyzed bool `json:"analyzed"`
}

// Correlate handles POST /api/v1/correlations/{deviceID}?force=
func (h *Handler) Correlate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := CorrelateRequest{DeviceID: chi.URLParam(r, "deviceID")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeServiceError(rw, verr)
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			rw.BadRequest("force must be a boolean")
			return
		}
		force = b
	}

	c, analyzed, err := h.deps.Correlations.Correlate(r.Context(), req.DeviceID, force)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(CorrelationResult{Correlation: c, Analyzed: analyzed})
}

// ListSafeZones handles GET /api/v1/safe-zones.
func (h *Handler) ListSafeZones(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	zones, err := h.deps.Zones.ListZones(r.Context())
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if zones == nil {
		zones = []contextfilter.SafeZone{}
	}
	rw.List(zones, len(zones))
}

// CreateSafeZone handles POST /api/v1/safe-zones. Posting an existing id
// replaces the zone.
func (h *Handler) CreateSafeZone(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SafeZoneRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(rw, err)
		return
	}
	id := req.ID
	if id == "" {
		id = h.newID()
	}
	zone := req.zone(id)
	if err := h.deps.Zones.SaveZone(r.Context(), zone); err != nil {
		writeServiceError(rw, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("zone_id", zone.ID).
		Str("zone_type", string(zone.ZoneType)).
		Str("actor", middleware.ActorFromContext(r.Context())).
		Msg("Safe zone saved")
	rw.Created(zone)
}

// DeleteSafeZone handles DELETE /api/v1/safe-zones/{id}.
func (h *Handler) DeleteSafeZone(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := h.deps.Zones.DeleteZone(r.Context(), id); err != nil {
		writeServiceError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("zone_id", id).
		Str("actor", middleware.ActorFromContext(r.Context())).
		Msg("Safe zone deleted")
	rw.NoContent()
}

// ClassifyRelationship handles PUT /api/v1/relationships.
func (h *Handler) ClassifyRelationship(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req RelationshipRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(rw, err)
		return
	}
	rel, err := h.deps.Relationships.Classify(r.Context(), req.DeviceA, req.DeviceB,
		contextfilter.Classification(req.Classification), req.Notes)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	rw.Success(rel)
}
