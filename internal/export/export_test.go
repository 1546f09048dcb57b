// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

type fakeAnomalies []anomaly.SurveillanceAnomaly

func (f fakeAnomalies) ForDevices(_ context.Context, ids []string) ([]anomaly.SurveillanceAnomaly, error) {
	var out []anomaly.SurveillanceAnomaly
	for _, a := range f {
		for _, id := range ids {
			if a.Involves(id) {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func makeAnomaly(id, primary string, related ...string) anomaly.SurveillanceAnomaly {
	evidence := []byte(`{"kind":"route_correlation"}`)
	return anomaly.SurveillanceAnomaly{
		ID:             id,
		Type:           detection.TypeRouteCorrelation,
		PrimaryDevice:  primary,
		RelatedDevices: related,
		Confidence:     0.8,
		Status:         anomaly.StatusPending,
		Evidence:       evidence,
		EvidenceHash:   anomaly.HashEvidence(evidence),
	}
}

func setup(t *testing.T) (*Builder, *audit.Logger) {
	t.Helper()
	ctx := context.Background()

	clean := makeAnomaly("an-1", "dev-a", "self")
	tampered := makeAnomaly("an-2", "dev-b", "dev-a")
	tampered.Evidence = []byte(`{"kind":"route_correlation","edited":true}`)
	other := makeAnomaly("an-3", "dev-z")

	custody := audit.NewLogger(audit.NewMemoryStore())
	for _, a := range []anomaly.SurveillanceAnomaly{clean, tampered, other} {
		if _, err := custody.Record(ctx, audit.Record{AnomalyID: a.ID, EventType: audit.EventCreated, HashAfter: a.EvidenceHash}); err != nil {
			t.Fatal(err)
		}
	}

	correlations := correlation.NewMemoryStore()
	if err := correlations.Upsert(ctx, &correlation.Correlation{
		DeviceID: "dev-a", Confidence: 0.35, Pattern: correlation.LabelFor(0.35),
		AgencyMatches: []string{}, TacticalMatches: []string{}, AnalyzedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(fakeAnomalies{clean, tampered, other}, correlations, custody, "test")
	return b, custody
}

func TestBuildBundle(t *testing.T) {
	ctx := context.Background()
	b, custody := setup(t)

	bundle, err := b.Build(ctx, Request{DeviceIDs: []string{"dev-a", "dev-a", ""}, Actor: "investigator", Purpose: "case 42"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	meta := bundle.Metadata
	if meta.AnomalyCount != 2 || meta.CorrelationCount != 1 || meta.TamperedCount != 1 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(meta.DeviceIDs) != 1 || meta.DigestAlgorithm != DigestAlgorithm || meta.ToolVersion != "test" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.CustodyCount != 4 {
		t.Errorf("CustodyCount = %d, want 4", meta.CustodyCount)
	}

	for _, rec := range bundle.Records.Anomalies {
		wantVerified := rec.Anomaly.ID == "an-1"
		if rec.EvidenceVerified != wantVerified {
			t.Errorf("%s EvidenceVerified = %v, want %v", rec.Anomaly.ID, rec.EvidenceVerified, wantVerified)
		}
		if !rec.ChainVerified {
			t.Errorf("%s custody chain should verify", rec.Anomaly.ID)
		}
		last := rec.Custody[len(rec.Custody)-1]
		if last.EventType != audit.EventExported || last.Actor != "investigator" || last.Purpose != "case 42" {
			t.Errorf("%s last custody entry = %+v, want export record", rec.Anomaly.ID, last)
		}
	}

	if n, _ := custody.Count(ctx, audit.EventExported); n != 2 {
		t.Errorf("exported entries = %d, want 2", n)
	}
	if err := Verify(bundle); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	bundle.Records.Anomalies[0].Anomaly.Confidence = 0.1
	if err := Verify(bundle); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("Verify() after edit = %v, want ErrDigestMismatch", err)
	}
}

func TestBuildRequiresDevices(t *testing.T) {
	b, _ := setup(t)
	if _, err := b.Build(context.Background(), Request{DeviceIDs: []string{""}}); !errors.Is(err, ErrNoDevices) {
		t.Errorf("Build() error = %v, want ErrNoDevices", err)
	}
}

func TestBuildNoMatches(t *testing.T) {
	b, _ := setup(t)
	bundle, err := b.Build(context.Background(), Request{DeviceIDs: []string{"nobody"}, Purpose: "check"})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Metadata.AnomalyCount != 0 || len(bundle.Records.Anomalies) != 0 || bundle.Records.Correlations == nil {
		t.Errorf("unexpected empty bundle: %+v", bundle)
	}
	if bundle.Metadata.Actor != "system" {
		t.Errorf("Actor = %q, want system", bundle.Metadata.Actor)
	}
}
