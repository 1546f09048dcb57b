// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package detection implements the surveillance pattern detectors.
//
// Each detector is a read-only scan of the measurement store over a time
// window. Detectors return their full candidate set; nothing is persisted
// here. Candidates pass through context filtering and consolidation before
// they become anomalies.
//
// Every scoring weight comes from config.DetectionConfig and is recorded in
// the candidate's evidence so an analyst can see how a score was produced.
package detection

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/shadowcheck/internal/geo"
)

// AnomalyType identifies a surveillance signature.
type AnomalyType string

const (
	TypeImpossibleDistance  AnomalyType = "impossible_distance"
	TypeCoordinatedMovement AnomalyType = "coordinated_movement"
	TypeSequentialMac       AnomalyType = "sequential_mac"
	TypeAerialSignature     AnomalyType = "aerial_signature"
	TypeRouteCorrelation    AnomalyType = "route_correlation"

	// Composite types are derived from other results rather than a scan.
	TypeMultiVector              AnomalyType = "multi_vector"
	TypeGovernmentInfrastructure AnomalyType = "government_infrastructure"
)

// DetectorTypes lists the five scanning detectors in execution order.
var DetectorTypes = []AnomalyType{
	TypeImpossibleDistance,
	TypeCoordinatedMovement,
	TypeSequentialMac,
	TypeAerialSignature,
	TypeRouteCorrelation,
}

// Valid reports whether t is a known anomaly type.
func (t AnomalyType) Valid() bool {
	switch t {
	case TypeImpossibleDistance, TypeCoordinatedMovement, TypeSequentialMac,
		TypeAerialSignature, TypeRouteCorrelation, TypeMultiVector, TypeGovernmentInfrastructure:
		return true
	}
	return false
}

// Request bounds a detector scan. An empty DeviceIDs means every device.
type Request struct {
	From      time.Time
	To        time.Time
	DeviceIDs []string
}

// Candidate is a detector result that has not been filtered or persisted.
type Candidate struct {
	Type           AnomalyType `json:"type"`
	PrimaryDevice  string      `json:"primary_device"`
	RelatedDevices []string    `json:"related_devices"`
	Locations      []geo.Point `json:"locations"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Confidence     float64     `json:"confidence"`
	Evidence       Evidence    `json:"evidence"`
}

// Devices returns the primary device followed by the related devices.
func (c Candidate) Devices() []string {
	out := make([]string, 0, 1+len(c.RelatedDevices))
	out = append(out, c.PrimaryDevice)
	return append(out, c.RelatedDevices...)
}

// Detector scans observations for one anomaly type.
type Detector interface {
	Type() AnomalyType
	Detect(ctx context.Context, req Request) ([]Candidate, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
