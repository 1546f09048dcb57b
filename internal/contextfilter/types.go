// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package contextfilter suppresses or re-weights detector candidates using
// operator-authored context: safe zones and device relationships.
package contextfilter

import (
	"errors"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/geo"
)

// ErrNotFound is returned when a zone or relationship does not exist.
var ErrNotFound = errors.New("not found")

// ZoneType classifies a safe zone.
type ZoneType string

const (
	ZoneHome     ZoneType = "home"
	ZoneWork     ZoneType = "work"
	ZoneFrequent ZoneType = "frequent"
)

// Valid reports whether z is a known zone type.
func (z ZoneType) Valid() bool {
	return z == ZoneHome || z == ZoneWork || z == ZoneFrequent
}

// SafeZone is an area where detection sensitivity is reduced.
type SafeZone struct {
	ID       string                         `json:"id"`
	Name     string                         `json:"name"`
	ZoneType ZoneType                       `json:"zone_type"`
	Polygon  geo.Polygon                    `json:"polygon"`
	Suppress map[detection.AnomalyType]bool `json:"suppress"`
	// SensitivityFactor multiplies the confidence of candidates in the
	// zone that are not suppressed. 1 leaves them unchanged.
	SensitivityFactor float64   `json:"sensitivity_factor"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewSafeZone creates a zone with the default suppression flags. Home and
// frequent zones suppress impossible distance, since GPS drift at a parked
// device often looks like a large jump.
func NewSafeZone(id, name string, zoneType ZoneType, polygon geo.Polygon, sensitivity float64) SafeZone {
	z := SafeZone{
		ID:                id,
		Name:              name,
		ZoneType:          zoneType,
		Polygon:           polygon,
		Suppress:          make(map[detection.AnomalyType]bool),
		SensitivityFactor: sensitivity,
		CreatedAt:         time.Now().UTC(),
	}
	if zoneType == ZoneHome || zoneType == ZoneFrequent {
		z.Suppress[detection.TypeImpossibleDistance] = true
	}
	return z
}

// Covers reports whether any of the points lies inside the zone.
func (z SafeZone) Covers(points []geo.Point) bool {
	for _, p := range points {
		if z.Polygon.Contains(p) {
			return true
		}
	}
	return false
}

// Classification is the operator's label for a device pair.
type Classification string

const (
	ClassFriend   Classification = "friend"
	ClassNeighbor Classification = "neighbor"
	ClassThreat   Classification = "threat"
	ClassUnknown  Classification = "unknown"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassFriend, ClassNeighbor, ClassThreat, ClassUnknown:
		return true
	}
	return false
}

// Trusted reports whether the classification dampens detections.
func (c Classification) Trusted() bool {
	return c == ClassFriend || c == ClassNeighbor
}

// DeviceRelationship is a symmetric record for a device pair. DeviceA is
// always the lexically smaller identifier.
type DeviceRelationship struct {
	DeviceA         string         `json:"device_a"`
	DeviceB         string         `json:"device_b"`
	Classification  Classification `json:"classification"`
	CoLocationCount int64          `json:"co_location_count"`
	FirstCoLocated  time.Time      `json:"first_co_located,omitempty"`
	LastCoLocated   time.Time      `json:"last_co_located,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// PairKey orders a device pair.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
