// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package contextfilter

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/geo"
)

var homePolygon = geo.Polygon{
	{Lat: 39.9, Lon: -75.1},
	{Lat: 39.9, Lon: -74.9},
	{Lat: 40.1, Lon: -74.9},
	{Lat: 40.1, Lon: -75.1},
}

func candidate(typ detection.AnomalyType, primary string, related []string, conf float64, pts ...geo.Point) detection.Candidate {
	return detection.Candidate{Type: typ, PrimaryDevice: primary, RelatedDevices: related, Confidence: conf, Locations: pts}
}

func newFilter(t *testing.T, store Store) *Filter {
	t.Helper()
	return NewFilter(store, config.Defaults().ContextFilter)
}

func TestNewSafeZoneDefaults(t *testing.T) {
	tests := []struct {
		zoneType ZoneType
		suppress bool
	}{
		{ZoneHome, true},
		{ZoneFrequent, true},
		{ZoneWork, false},
	}
	for _, tt := range tests {
		z := NewSafeZone("z", "zone", tt.zoneType, homePolygon, 1)
		if got := z.Suppress[detection.TypeImpossibleDistance]; got != tt.suppress {
			t.Errorf("%s zone suppress impossible_distance = %v, want %v", tt.zoneType, got, tt.suppress)
		}
	}
}

func TestHomeZoneSuppressesImpossibleDistance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SaveZone(ctx, NewSafeZone("home", "Home", ZoneHome, homePolygon, 1)); err != nil {
		t.Fatal(err)
	}

	inside := candidate(detection.TypeImpossibleDistance, "d", nil, 0.95,
		geo.Point{Lat: 40, Lon: -75}, geo.Point{Lat: 40.05, Lon: -75.05})
	outside := candidate(detection.TypeImpossibleDistance, "d", nil, 0.95,
		geo.Point{Lat: 41, Lon: -75}, geo.Point{Lat: 42, Lon: -75})
	aerial := candidate(detection.TypeAerialSignature, "d", nil, 0.6, geo.Point{Lat: 40, Lon: -75})

	got, stats, err := newFilter(t, store).Apply(ctx, []detection.Candidate{inside, outside, aerial})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	for _, c := range got {
		if c.Type == detection.TypeImpossibleDistance && c.Locations[0].Lat == 40 {
			t.Error("candidate inside the home zone reached the output")
		}
	}
	if stats.Suppressed[ReasonSafeZone] != 1 || stats.Total() != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestZoneSensitivityFactor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SaveZone(ctx, NewSafeZone("work", "Office", ZoneWork, homePolygon, 0.5))

	c := candidate(detection.TypeImpossibleDistance, "d", nil, 0.8, geo.Point{Lat: 40, Lon: -75})
	got, stats, err := newFilter(t, store).Apply(ctx, []detection.Candidate{c})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || math.Abs(got[0].Confidence-0.4) > 1e-9 {
		t.Fatalf("got %+v", got)
	}
	if stats.Dampened != 1 {
		t.Errorf("Dampened = %d, want 1", stats.Dampened)
	}
}

func TestRelationshipAdjustments(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := newFilter(t, store)

	for _, r := range []struct {
		a, b string
		c    Classification
	}{
		{"a", "b", ClassFriend},
		{"b", "c", ClassNeighbor},
		{"c", "a", ClassFriend}, // cycle
		{"self", "partner", ClassFriend},
		{"x", "y", ClassThreat},
	} {
		if _, err := f.Classify(ctx, r.a, r.b, r.c, ""); err != nil {
			t.Fatal(err)
		}
	}

	in := []detection.Candidate{
		candidate(detection.TypeRouteCorrelation, "partner", []string{"self"}, 0.9),
		candidate(detection.TypeCoordinatedMovement, "a", []string{"b", "c"}, 0.6),
		candidate(detection.TypeCoordinatedMovement, "a", []string{"b", "z"}, 0.6),
		candidate(detection.TypeRouteCorrelation, "x", []string{"y"}, 0.9),
	}
	got, stats, err := f.Apply(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(got))
	}
	if stats.Suppressed[ReasonTrustedPair] != 1 {
		t.Errorf("trusted pair suppression = %d, want 1", stats.Suppressed[ReasonTrustedPair])
	}
	if math.Abs(got[0].Confidence-0.3) > 1e-9 {
		t.Errorf("trusted group confidence = %v, want 0.3", got[0].Confidence)
	}
	if got[1].Confidence != 0.6 {
		t.Errorf("mixed group confidence = %v, want 0.6", got[1].Confidence)
	}
	if got[2].Confidence != 1.0 {
		t.Errorf("threat boost should cap at 1.0, got %v", got[2].Confidence)
	}
	if stats.Boosted != 1 {
		t.Errorf("Boosted = %d, want 1", stats.Boosted)
	}
}

func TestTrustedComponentDepth(t *testing.T) {
	g := NewRelationshipGraph([]DeviceRelationship{
		{DeviceA: "a", DeviceB: "b", Classification: ClassFriend},
		{DeviceA: "b", DeviceB: "c", Classification: ClassFriend},
		{DeviceA: "c", DeviceB: "d", Classification: ClassFriend},
		{DeviceA: "a", DeviceB: "d", Classification: ClassThreat},
		{DeviceA: "a", DeviceB: "c", Classification: ClassFriend},
	})

	tests := []struct {
		depth int
		want  []string
	}{
		{1, []string{"a", "b", "c"}},
		{2, []string{"a", "b", "c", "d"}},
		{0, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		got := g.TrustedComponent("a", tt.depth)
		if len(got) != len(tt.want) {
			t.Errorf("depth %d: got %v, want %v", tt.depth, got, tt.want)
			continue
		}
		for _, id := range tt.want {
			if !got[id] {
				t.Errorf("depth %d: missing %s", tt.depth, id)
			}
		}
	}
}

func TestRecordCoLocation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := newFilter(t, store)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := f.RecordCoLocation(ctx, "z", "a", at); err != nil {
		t.Fatal(err)
	}
	if err := f.RecordCoLocation(ctx, "a", "z", at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Classify(ctx, "a", "z", ClassNeighbor, "next door"); err != nil {
		t.Fatal(err)
	}

	rel, err := store.GetRelationship(ctx, "z", "a")
	if err != nil || rel == nil {
		t.Fatalf("GetRelationship = %v, %v", rel, err)
	}
	if rel.DeviceA != "a" || rel.DeviceB != "z" {
		t.Errorf("pair not ordered: %s/%s", rel.DeviceA, rel.DeviceB)
	}
	if rel.CoLocationCount != 2 || rel.Classification != ClassNeighbor {
		t.Errorf("rel = %+v", rel)
	}
	if !rel.FirstCoLocated.Equal(at) || !rel.LastCoLocated.Equal(at.Add(time.Hour)) {
		t.Errorf("co-location span = %v..%v", rel.FirstCoLocated, rel.LastCoLocated)
	}

	if _, err := f.Classify(ctx, "a", "z", "enemy", ""); err == nil {
		t.Error("invalid classification should be rejected")
	}
}
