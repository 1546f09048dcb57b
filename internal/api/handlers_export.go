// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"

	"github.com/tomtom215/shadowcheck/internal/export"
	"github.com/tomtom215/shadowcheck/internal/middleware"
)

// Export handles POST /api/v1/export. Every exported anomaly gains an
// exported custody entry naming the X-Actor caller.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ExportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(rw, err)
		return
	}

	bundle, err := h.deps.Exports.Build(r.Context(), export.Request{
		DeviceIDs: req.DeviceIDs,
		Actor:     middleware.ActorFromContext(r.Context()),
		Purpose:   req.Purpose,
	})
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	w.Header().Set("X-Bundle-Digest", bundle.Digest)
	rw.Success(bundle)
}
