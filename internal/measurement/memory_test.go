// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package measurement

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/geo"
)

func TestMemoryStorePositions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	s.AddPositions(
		PositionObservation{DeviceID: "a", ObservedAt: base.Add(20 * time.Minute), Point: geo.Point{Lat: 40, Lon: -75}},
		PositionObservation{DeviceID: "a", ObservedAt: base, Point: geo.Point{Lat: 40.1, Lon: -75}},
		PositionObservation{DeviceID: "a", ObservedAt: base.Add(10 * time.Minute), Point: geo.Point{}},
		PositionObservation{DeviceID: "b", ObservedAt: base.Add(5 * time.Hour), Point: geo.Point{Lat: 41, Lon: -75}},
	)

	fixes, err := s.Positions(ctx, "a", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("expected 2 usable fixes, got %d", len(fixes))
	}
	if !fixes[0].ObservedAt.Equal(base) {
		t.Errorf("fixes not ordered by time: %v", fixes[0].ObservedAt)
	}

	window, err := s.PositionsInWindow(ctx, base, base.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("PositionsInWindow: %v", err)
	}
	if _, ok := window["b"]; ok {
		t.Error("device b is outside the window")
	}
	if len(window["a"]) != 2 {
		t.Errorf("expected 2 fixes for a, got %d", len(window["a"]))
	}

	d, err := s.Device(ctx, "a")
	if err != nil || d == nil {
		t.Fatalf("Device(a) = %v, %v", d, err)
	}
	if d.TotalReadings != 3 {
		t.Errorf("TotalReadings = %d, want 3", d.TotalReadings)
	}
	if !d.FirstSeen.Equal(base) {
		t.Errorf("FirstSeen = %v, want %v", d.FirstSeen, base)
	}
}

func TestMemoryStoreRegistry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	s.AddDevice(Device{ID: "gov", Manufacturer: "Harris Corporation", GovernmentLikelihood: 0.8, Comment: "  unit 7 ", FirstSeen: now, LastSeen: now})
	s.AddDevice(Device{ID: "civ", Manufacturer: "Netgear", FirstSeen: now.Add(-48 * time.Hour), LastSeen: now.Add(-47 * time.Hour)})

	missing, err := s.Device(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("unknown device should return nil, nil; got %v, %v", missing, err)
	}

	seen, _ := s.DevicesSeen(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if len(seen) != 1 || seen[0].ID != "gov" {
		t.Errorf("DevicesSeen = %+v", seen)
	}

	gov, _ := s.GovernmentCandidates(ctx, 0.5)
	if len(gov) != 1 || gov[0].ID != "gov" {
		t.Errorf("GovernmentCandidates = %+v", gov)
	}

	meta, _ := s.Metadata(ctx, "gov")
	if len(meta) != 1 || meta[0] != "unit 7" {
		t.Errorf("Metadata = %q", meta)
	}
}
