// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package measurement defines the read-only view of the canonical
// observation store and device registry that the detectors consume.
//
// Ingestion, multi-source fusion and manufacturer lookup are owned by other
// systems. This package only reads what they produced.
package measurement

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/geo"
)

// Device is a registry entry for one radio identifier.
type Device struct {
	ID                   string    `json:"device_id"`
	Manufacturer         string    `json:"manufacturer,omitempty"`
	GovernmentLikelihood float64   `json:"government_likelihood"`
	Name                 string    `json:"name,omitempty"`
	Comment              string    `json:"comment,omitempty"`
	NetworkType          string    `json:"network_type,omitempty"`
	FirstSeen            time.Time `json:"first_seen"`
	LastSeen             time.Time `json:"last_seen"`
	TotalReadings        int64     `json:"total_readings"`
}

// PositionObservation is one location fix for a device.
type PositionObservation struct {
	DeviceID   string    `json:"device_id"`
	ObservedAt time.Time `json:"observed_at"`
	Point      geo.Point `json:"point"`
	Altitude   *float64  `json:"altitude_m,omitempty"`
	AccuracyM  float64   `json:"accuracy_m"`
	SourceID   string    `json:"source_id"`
}

// SignalObservation is one signal reading for a device.
type SignalObservation struct {
	DeviceID   string    `json:"device_id"`
	ObservedAt time.Time `json:"observed_at"`
	SignalDBm  float64   `json:"signal_dbm"`
	Encryption string    `json:"encryption,omitempty"`
	Channel    int       `json:"channel,omitempty"`
	SourceID   string    `json:"source_id"`
}

// Reader reads observation ranges. Results are ordered by time.
type Reader interface {
	Positions(ctx context.Context, deviceID string, from, to time.Time) ([]PositionObservation, error)

	// PositionsInWindow groups fixes by device. An empty deviceIDs slice
	// means every device.
	PositionsInWindow(ctx context.Context, from, to time.Time, deviceIDs []string) (map[string][]PositionObservation, error)

	Signals(ctx context.Context, deviceID string, from, to time.Time) ([]SignalObservation, error)
}

// Registry resolves device identifiers.
type Registry interface {
	// Device returns nil, nil when the identifier is unknown.
	Device(ctx context.Context, id string) (*Device, error)

	// DevicesSeen returns devices whose observation span overlaps [from, to].
	DevicesSeen(ctx context.Context, from, to time.Time) ([]Device, error)

	// GovernmentCandidates returns devices whose registry likelihood is at
	// least minLikelihood.
	GovernmentCandidates(ctx context.Context, minLikelihood float64) ([]Device, error)

	// Metadata returns free-text fields (names, comments) for a device.
	Metadata(ctx context.Context, id string) ([]string, error)
}

// Store is the combined read interface.
type Store interface {
	Reader
	Registry
}

// usable reports whether a fix carries a real coordinate.
func usable(p PositionObservation) bool {
	return p.Point.Valid() && !geo.IsUnknownLocation(p.Point)
}

// FirstFix returns the earliest usable fix in the list.
func FirstFix(fixes []PositionObservation) (geo.Point, bool) {
	for _, f := range fixes {
		if usable(f) {
			return f.Point, true
		}
	}
	return geo.Point{}, false
}
