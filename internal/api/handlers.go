// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/alerting"
	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/export"
	"github.com/tomtom215/shadowcheck/internal/scheduler"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

const maxBodyBytes = 1 << 20

// JobService runs and reports on detection jobs.
type JobService interface {
	Jobs(ctx context.Context) ([]scheduler.DetectionJob, error)
	Job(ctx context.Context, id string) (*scheduler.DetectionJob, error)
	RunJob(ctx context.Context, id string, manual bool) (scheduler.ExecutionSummary, error)
	Health(ctx context.Context) (scheduler.HealthReport, error)
}

// AlertService lists alerts and applies reviewer actions.
type AlertService interface {
	List(ctx context.Context, f alerting.Filter) ([]alerting.Alert, error)
	Acknowledge(ctx context.Context, id, actor string) (*alerting.Alert, error)
	Dismiss(ctx context.Context, id, actor string, isFalsePositive bool, reason string) (*alerting.Alert, error)
}

// AnomalyService reads anomalies through the custody log.
type AnomalyService interface {
	List(ctx context.Context, f anomaly.Filter) ([]anomaly.SurveillanceAnomaly, error)
	Get(ctx context.Context, id, actor, purpose string) (*anomaly.SurveillanceAnomaly, error)
	UpdateStatus(ctx context.Context, id string, to anomaly.Status, actor, notes string) (*anomaly.SurveillanceAnomaly, error)
	Custody(ctx context.Context, id string) ([]audit.CustodyEntry, error)
}

// CorrelationService correlates a device against the agency registry.
type CorrelationService interface {
	Correlate(ctx context.Context, deviceID string, force bool) (*correlation.Correlation, bool, error)
}

// ZoneStore persists safe zones.
type ZoneStore interface {
	ListZones(ctx context.Context) ([]contextfilter.SafeZone, error)
	SaveZone(ctx context.Context, z contextfilter.SafeZone) error
	DeleteZone(ctx context.Context, id string) error
}

// RelationshipClassifier records operator classifications of device pairs.
type RelationshipClassifier interface {
	Classify(ctx context.Context, a, b string, c contextfilter.Classification, notes string) (*contextfilter.DeviceRelationship, error)
}

// BundleBuilder builds evidence bundles.
type BundleBuilder interface {
	Build(ctx context.Context, req export.Request) (*export.Bundle, error)
}

// Dependencies groups the services the handlers call.
type Dependencies struct {
	Jobs          JobService
	Alerts        AlertService
	Anomalies     AnomalyService
	Correlations  CorrelationService
	Zones         ZoneStore
	Relationships RelationshipClassifier
	Exports       BundleBuilder
}

// Handler serves the REST API.
type Handler struct {
	deps  Dependencies
	newID func() string
}

// NewHandler creates the API handlers.
func NewHandler(deps Dependencies, newID func() string) *Handler {
	return &Handler{deps: deps, newID: newID}
}

// writeServiceError maps domain errors onto API responses.
func writeServiceError(rw *ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		rw.ValidationError(verr.Error(), verr.Details())
	case errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, anomaly.ErrNotFound),
		errors.Is(err, alerting.ErrNotFound),
		errors.Is(err, contextfilter.ErrNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, anomaly.ErrInvalidTransition),
		errors.Is(err, alerting.ErrInvalidTransition):
		rw.Conflict(ErrCodeInvalidTransition, err.Error(), nil)
	case errors.Is(err, anomaly.ErrEvidenceTampered):
		rw.Conflict(ErrCodeEvidenceTampered, err.Error(), nil)
	case errors.Is(err, export.ErrNoDevices):
		rw.BadRequest(err.Error())
	default:
		rw.InternalError(err)
	}
}

// decodeAndValidate reads a JSON body into v and validates it.
func decodeAndValidate(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadBody, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", errBadBody, maxBodyBytes)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

var errBadBody = errors.New("invalid request body")

// writeRequestError reports a decode or validation failure.
func writeRequestError(rw *ResponseWriter, err error) {
	if errors.Is(err, errBadBody) {
		rw.BadRequest(err.Error())
		return
	}
	writeServiceError(rw, err)
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
