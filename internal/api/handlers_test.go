// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/alerting"
	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/export"
	"github.com/tomtom215/shadowcheck/internal/scheduler"
)

type fakeJobs struct {
	jobs    map[string]*scheduler.DetectionJob
	status  string
	health  scheduler.HealthReport
	runs    int
	manuals []bool
}

func (f *fakeJobs) Jobs(context.Context) ([]scheduler.DetectionJob, error) {
	var out []scheduler.DetectionJob
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) Job(_ context.Context, id string) (*scheduler.DetectionJob, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, scheduler.ErrJobNotFound
}

func (f *fakeJobs) RunJob(_ context.Context, id string, manual bool) (scheduler.ExecutionSummary, error) {
	j, ok := f.jobs[id]
	if !ok {
		return scheduler.ExecutionSummary{}, scheduler.ErrJobNotFound
	}
	f.runs++
	f.manuals = append(f.manuals, manual)
	return scheduler.ExecutionSummary{JobID: j.ID, JobName: j.Name, Status: f.status, Manual: manual}, nil
}

func (f *fakeJobs) Health(context.Context) (scheduler.HealthReport, error) {
	return f.health, nil
}

type fakeCorrelator struct {
	force bool
}

func (f *fakeCorrelator) Correlate(_ context.Context, id string, force bool) (*correlation.Correlation, bool, error) {
	f.force = force
	return &correlation.Correlation{DeviceID: id, Confidence: 0.4, Pattern: correlation.LabelFor(0.4)}, true, nil
}

type testEnv struct {
	server     http.Handler
	jobs       *fakeJobs
	correlator *fakeCorrelator
	anomalies  *anomaly.MemoryStore
	alerts     *alerting.MemoryStore
	zones      *contextfilter.MemoryStore
	custody    *audit.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	custody := audit.NewLogger(audit.NewMemoryStore())
	anomalyStore := anomaly.NewMemoryStore()
	alertStore := alerting.NewMemoryStore()
	zones := contextfilter.NewMemoryStore()
	correlations := correlation.NewMemoryStore()
	anomalies := anomaly.NewService(anomalyStore, custody)

	jobs := &fakeJobs{
		jobs: map[string]*scheduler.DetectionJob{
			"job-1": {ID: "job-1", Name: "nightly", JobType: scheduler.JobTypeFullScan, Enabled: true},
		},
		status: scheduler.StatusCompleted,
		health: scheduler.HealthReport{Healthy: true, NeedsAttention: []scheduler.JobHealth{}},
	}
	correlator := &fakeCorrelator{}

	ids := 0
	handler := NewHandler(Dependencies{
		Jobs:          jobs,
		Alerts:        alerting.NewWorkflow(alertStore, custody, nil),
		Anomalies:     anomalies,
		Correlations:  correlator,
		Zones:         zones,
		Relationships: contextfilter.NewFilter(zones, config.ContextFilterConfig{TrustedDampening: 0.5, TrustDepth: 2}),
		Exports:       export.NewBuilder(anomalies, correlations, custody, "test"),
	}, func() string {
		ids++
		return fmt.Sprintf("zone-%d", ids)
	})

	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	router := NewRouter(handler, mw, nil, 0)

	return &testEnv{
		server:     router.SetupChi(),
		jobs:       jobs,
		correlator: correlator,
		anomalies:  anomalyStore,
		alerts:     alertStore,
		zones:      zones,
		custody:    custody,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, actor string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Code != http.StatusNoContent && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func (e *testEnv) seedAnomaly(t *testing.T, id, device string, tampered bool) {
	t.Helper()
	evidence := []byte(`{"kind":"impossible_distance"}`)
	a := &anomaly.SurveillanceAnomaly{
		ID:             id,
		DedupeKey:      "key-" + id,
		Type:           detection.TypeImpossibleDistance,
		PrimaryDevice:  device,
		RelatedDevices: []string{},
		Confidence:     0.9,
		Status:         anomaly.StatusPending,
		Evidence:       evidence,
		EvidenceHash:   anomaly.HashEvidence(evidence),
		CreatedAt:      time.Now().UTC(),
	}
	if tampered {
		a.Evidence = []byte(`{"kind":"impossible_distance","edited":true}`)
	}
	if err := e.anomalies.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("healthy: status %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" || resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Error("response should carry a request id")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("API responses should not be cacheable")
	}

	env.jobs.health = scheduler.HealthReport{NeedsAttention: []scheduler.JobHealth{{JobID: "job-1", ConsecutiveFailures: 3}}}
	rec, resp = env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if rec.Code != http.StatusServiceUnavailable || resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("unhealthy: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/jobs", nil, "")
	if rec.Code != http.StatusOK || resp.Meta.Count == nil || *resp.Meta.Count != 1 {
		t.Fatalf("list jobs: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/jobs/missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/jobs/job-1/run", nil, "analyst")
	if rec.Code != http.StatusOK || env.jobs.runs != 1 || !env.jobs.manuals[0] {
		t.Errorf("run job: status %d runs %d manuals %v", rec.Code, env.jobs.runs, env.jobs.manuals)
	}

	env.jobs.status = scheduler.StatusAlreadyRunning
	rec, resp = env.do(t, http.MethodPost, "/api/v1/jobs/job-1/run", nil, "")
	if rec.Code != http.StatusConflict || resp.Error.Code != ErrCodeConflict {
		t.Errorf("already running: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAnomalyAccessRecordsCustody(t *testing.T) {
	env := newTestEnv(t)
	env.seedAnomaly(t, "an-1", "dev-a", false)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/anomalies/an-1?purpose=case-12", nil, "investigator")
	if rec.Code != http.StatusOK {
		t.Fatalf("get anomaly: status %d, body %s", rec.Code, rec.Body.String())
	}

	entries, err := env.custody.History(context.Background(), "an-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EventType != audit.EventAccessed || entries[0].Actor != "investigator" || entries[0].Purpose != "case-12" {
		t.Errorf("custody entries = %+v, want one access by investigator", entries)
	}

	// Missing actor header falls back to "api".
	env.do(t, http.MethodGet, "/api/v1/anomalies/an-1", nil, "")
	entries, _ = env.custody.History(context.Background(), "an-1")
	if last := entries[len(entries)-1]; last.Actor != "api" || last.Purpose != defaultAccessPurpose {
		t.Errorf("default actor entry = %+v", last)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/anomalies/an-1/custody", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("custody: status %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/anomalies/nope", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing anomaly status = %d, want 404", rec.Code)
	}
}

func TestAnomalyTamperingReturnsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedAnomaly(t, "an-t", "dev-a", true)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/anomalies/an-t", nil, "")
	if rec.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != ErrCodeEvidenceTampered {
		t.Fatalf("tampered get: status %d, body %s", rec.Code, rec.Body.String())
	}
	if resp.Error.Details == nil {
		t.Error("tampered response should include the anomaly")
	}
	n, _ := env.custody.Count(context.Background(), audit.EventIntegrityFailure)
	if n != 1 {
		t.Errorf("integrity failures recorded = %d, want 1", n)
	}

	rec, resp = env.do(t, http.MethodPatch, "/api/v1/anomalies/an-t/status", UpdateStatusRequest{Status: "confirmed"}, "")
	if rec.Code != http.StatusConflict || resp.Error.Code != ErrCodeEvidenceTampered {
		t.Errorf("tampered update: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateAnomalyStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedAnomaly(t, "an-1", "dev-a", false)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"investigate", UpdateStatusRequest{Status: "investigating", Notes: "looking"}, http.StatusOK, ""},
		{"invalid transition", UpdateStatusRequest{Status: "investigating"}, http.StatusConflict, ErrCodeInvalidTransition},
		{"archive not allowed", UpdateStatusRequest{Status: "archived"}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"missing status", map[string]string{}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"confirm", UpdateStatusRequest{Status: "confirmed"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPatch, "/api/v1/anomalies/an-1/status", tt.body, "reviewer")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" && (resp.Error == nil || resp.Error.Code != tt.wantErr) {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/anomalies/an-1/status", bytes.NewReader([]byte("{not json")))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestListAnomaliesValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedAnomaly(t, "an-1", "dev-a", false)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/anomalies?status=pending&type=impossible_distance", nil, "")
	if rec.Code != http.StatusOK || *resp.Meta.Count != 1 {
		t.Fatalf("list: status %d, body %s", rec.Code, rec.Body.String())
	}

	for _, q := range []string{"status=bogus", "type=wifi", "limit=0", "limit=abc"} {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/anomalies?"+q, nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("?%s status = %d, want 400", q, rec.Code)
		}
	}

	// Listing does not record access.
	if n, _ := env.custody.Count(context.Background(), audit.EventAccessed); n != 0 {
		t.Errorf("access entries after list = %d, want 0", n)
	}
}

func TestAlertWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, id := range []string{"al-1", "al-2"} {
		if err := env.alerts.Create(ctx, &alerting.Alert{
			ID: id, AnomalyID: fmt.Sprintf("an-%d", i), Status: alerting.StatusActive, CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	rec, _ := env.do(t, http.MethodPost, "/api/v1/alerts/al-1/acknowledge", nil, "ops")
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: status %d, body %s", rec.Code, rec.Body.String())
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/alerts/al-1/dismiss", nil, "ops")
	if rec.Code != http.StatusConflict {
		t.Errorf("dismiss acknowledged alert: status %d, want 409", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/alerts/al-2/dismiss", DismissAlertRequest{FalsePositive: true, Reason: "neighbour's car"}, "ops")
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss: status %d, body %s", rec.Code, rec.Body.String())
	}
	got, _ := env.alerts.Get(ctx, "al-2")
	if got.Status != alerting.StatusDismissed || !got.IsFalsePositive || got.DismissedBy != "ops" {
		t.Errorf("dismissed alert = %+v", got)
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/alerts?status=active", nil, "")
	if rec.Code != http.StatusOK || *resp.Meta.Count != 0 {
		t.Errorf("active alerts: status %d count %v", rec.Code, resp.Meta.Count)
	}
	rec, _ = env.do(t, http.MethodGet, "/api/v1/alerts?status=snoozed", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status filter: %d, want 400", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/alerts/missing/acknowledge", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing alert: %d, want 404", rec.Code)
	}
}

func TestSafeZones(t *testing.T) {
	env := newTestEnv(t)
	square := []ZonePoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}}

	rec, _ := env.do(t, http.MethodPost, "/api/v1/safe-zones", SafeZoneRequest{Name: "Home", ZoneType: "home", Polygon: square}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create zone: status %d, body %s", rec.Code, rec.Body.String())
	}
	zones, _ := env.zones.ListZones(context.Background())
	if len(zones) != 1 || zones[0].ID != "zone-1" || zones[0].SensitivityFactor != 1 || !zones[0].Suppress[detection.TypeImpossibleDistance] {
		t.Fatalf("stored zones = %+v", zones)
	}

	bad := []SafeZoneRequest{
		{Name: "x", ZoneType: "home", Polygon: square[:2]},
		{Name: "x", ZoneType: "park", Polygon: square},
		{Name: "x", ZoneType: "work", Polygon: []ZonePoint{{Lat: 91}, {Lat: 0}, {Lat: 1}}},
		{Name: "x", ZoneType: "work", Polygon: square, Suppress: []string{"multi_vector"}},
	}
	for i, req := range bad {
		rec, resp := env.do(t, http.MethodPost, "/api/v1/safe-zones", req, "")
		if rec.Code != http.StatusBadRequest || resp.Error.Code != ErrCodeValidationFailed {
			t.Errorf("bad zone %d: status %d, body %s", i, rec.Code, rec.Body.String())
		}
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/safe-zones", nil, "")
	if rec.Code != http.StatusOK || *resp.Meta.Count != 1 {
		t.Errorf("list zones: status %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodDelete, "/api/v1/safe-zones/zone-1", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete zone: status %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodDelete, "/api/v1/safe-zones/zone-1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing zone: status %d, want 404", rec.Code)
	}
}

func TestClassifyRelationship(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPut, "/api/v1/relationships", RelationshipRequest{
		DeviceA: "AA:BB:CC:00:00:02", DeviceB: "AA:BB:CC:00:00:01", Classification: "friend", Notes: "partner's phone",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("classify: status %d, body %s", rec.Code, rec.Body.String())
	}
	rel, _ := env.zones.GetRelationship(context.Background(), "AA:BB:CC:00:00:01", "AA:BB:CC:00:00:02")
	if rel == nil || rel.Classification != contextfilter.ClassFriend || rel.DeviceA != "AA:BB:CC:00:00:01" {
		t.Errorf("stored relationship = %+v", rel)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/v1/relationships", RelationshipRequest{
		DeviceA: "AA:BB:CC:00:00:01", DeviceB: "AA:BB:CC:00:00:01", Classification: "friend",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("self relationship: status %d, want 400", rec.Code)
	}
}

func TestCorrelate(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/correlations/AA:BB:CC:00:00:01?force=true", nil, "")
	if rec.Code != http.StatusOK || !env.correlator.force {
		t.Fatalf("correlate: status %d force %v", rec.Code, env.correlator.force)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/correlations/AA:BB:CC:00:00:01?force=maybe", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad force flag: status %d, want 400", rec.Code)
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.seedAnomaly(t, "an-1", "dev-a", false)
	env.seedAnomaly(t, "an-2", "dev-b", false)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/export", ExportRequest{DeviceIDs: []string{"dev-a"}, Purpose: "court request"}, "counsel")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("export: status %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data export.Bundle `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	bundle := body.Data
	if bundle.Metadata.AnomalyCount != 1 || bundle.Metadata.Actor != "counsel" {
		t.Errorf("bundle metadata = %+v", bundle.Metadata)
	}
	if rec.Header().Get("X-Bundle-Digest") != bundle.Digest {
		t.Error("digest header should match bundle digest")
	}
	if err := export.Verify(&bundle); err != nil {
		t.Errorf("Verify(decoded bundle) = %v", err)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/export", ExportRequest{Purpose: "x"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("export without devices: status %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/jobs", nil, "")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("api_requests_total")) {
		t.Errorf("/metrics: status %d", rec.Code)
	}
}
