// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/shadowcheck/internal/geo"
)

// ErrInvalidEvidence is returned when an evidence payload does not carry
// exactly the variant its Kind names.
var ErrInvalidEvidence = errors.New("invalid evidence payload")

// Evidence is the supporting payload of a candidate. Kind names the
// anomaly type and exactly one matching variant pointer is set.
type Evidence struct {
	Kind AnomalyType `json:"kind"`

	ImpossibleDistance       *ImpossibleDistanceEvidence       `json:"impossible_distance,omitempty"`
	CoordinatedMovement      *CoordinatedMovementEvidence      `json:"coordinated_movement,omitempty"`
	SequentialMac            *SequentialMacEvidence            `json:"sequential_mac,omitempty"`
	Aerial                   *AerialEvidence                   `json:"aerial_signature,omitempty"`
	RouteCorrelation         *RouteCorrelationEvidence         `json:"route_correlation,omitempty"`
	MultiVector              *MultiVectorEvidence              `json:"multi_vector,omitempty"`
	GovernmentInfrastructure *GovernmentInfrastructureEvidence `json:"government_infrastructure,omitempty"`

	Score *ScoreExplanation `json:"score,omitempty"`
}

// ScoreExplanation records the weighted components behind a confidence.
type ScoreExplanation struct {
	Components map[string]float64 `json:"components"`
	Weights    map[string]float64 `json:"weights,omitempty"`
}

// Validate checks the one-variant rule.
func (e Evidence) Validate() error {
	set := map[AnomalyType]bool{
		TypeImpossibleDistance:       e.ImpossibleDistance != nil,
		TypeCoordinatedMovement:      e.CoordinatedMovement != nil,
		TypeSequentialMac:            e.SequentialMac != nil,
		TypeAerialSignature:          e.Aerial != nil,
		TypeRouteCorrelation:         e.RouteCorrelation != nil,
		TypeMultiVector:              e.MultiVector != nil,
		TypeGovernmentInfrastructure: e.GovernmentInfrastructure != nil,
	}

	count := 0
	for _, ok := range set {
		if ok {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("%w: %d variants set", ErrInvalidEvidence, count)
	}
	if !set[e.Kind] {
		return fmt.Errorf("%w: kind %q has no matching variant", ErrInvalidEvidence, e.Kind)
	}
	return nil
}

// Fix is a timestamped position used in evidence.
type Fix struct {
	geo.Point
	ObservedAt time.Time `json:"observed_at"`
}

// ImpossibleDistanceEvidence describes a pair of fixes too far apart for
// ground travel.
type ImpossibleDistanceEvidence struct {
	From             Fix     `json:"from"`
	To               Fix     `json:"to"`
	DistanceKm       float64 `json:"distance_km"`
	ElapsedMinutes   float64 `json:"elapsed_minutes"`
	RequiredSpeedKmh float64 `json:"required_speed_kmh"`
	SpeedCeilingKmh  float64 `json:"speed_ceiling_kmh"`
}

// Movement is one significant displacement of a device.
type Movement struct {
	DeviceID   string  `json:"device_id"`
	Start      Fix     `json:"start"`
	End        Fix     `json:"end"`
	DistanceKm float64 `json:"distance_km"`
}

// CoordinatedMovementEvidence describes a group moving together.
type CoordinatedMovementEvidence struct {
	GroupSize              int        `json:"group_size"`
	Movements              []Movement `json:"movements"`
	AvgTimingOffsetMinutes float64    `json:"avg_timing_offset_minutes"`
	TimeSynchronization    float64    `json:"time_synchronization"`
	AvgDistanceKm          float64    `json:"avg_distance_km"`
}

// SequenceMember is one device in an address sequence.
type SequenceMember struct {
	DeviceID        string  `json:"device_id"`
	Suffix          uint32  `json:"suffix"`
	Manufacturer    string  `json:"manufacturer,omitempty"`
	GovernmentScore float64 `json:"government_score"`
}

// SequentialMacEvidence describes a run of numerically adjacent addresses.
type SequentialMacEvidence struct {
	Members                []SequenceMember `json:"members"`
	ProximityWindow        int              `json:"proximity_window"`
	AverageGovernmentScore float64          `json:"average_government_score"`
	MaxGovernmentScore     float64          `json:"max_government_score"`
	RequiresExternalLookup bool             `json:"requires_external_lookup"`
}

// AltitudeFix is a flight path point.
type AltitudeFix struct {
	Fix
	AltitudeM float64 `json:"altitude_m"`
}

// AerialEvidence describes a climbing, flight-like segment.
type AerialEvidence struct {
	FlightPath      []AltitudeFix `json:"flight_path"`
	AltitudeGainM   float64       `json:"altitude_gain_m"`
	PathLengthKm    float64       `json:"path_length_km"`
	StraightLineKm  float64       `json:"straight_line_km"`
	Linearity       float64       `json:"linearity"`
	HeadingVariance float64       `json:"heading_variance"`
	MaxSpeedKmh     float64       `json:"max_speed_kmh"`
	AvgSpeedKmh     float64       `json:"avg_speed_kmh"`
}

// CoLocation is one arrival near a self-device fix.
type CoLocation struct {
	Point        geo.Point `json:"point"`
	SelfAt       time.Time `json:"self_at"`
	OtherAt      time.Time `json:"other_at"`
	DeltaMinutes float64   `json:"delta_minutes"`
}

// RouteCorrelationEvidence describes a device repeatedly arriving where the
// self device has been.
type RouteCorrelationEvidence struct {
	SelfDevice         string       `json:"self_device"`
	CoLocations        []CoLocation `json:"co_locations"`
	AvgDeltaMinutes    float64      `json:"avg_delta_minutes"`
	DeltaStdDevMinutes float64      `json:"delta_stddev_minutes"`
	AvgDelayMinutes    float64      `json:"avg_following_delay_minutes"`
	FollowingFraction  float64      `json:"following_fraction"`
	LeadingFraction    float64      `json:"leading_fraction"`
	FollowingScore     float64      `json:"following_score"`
	Consistency        float64      `json:"temporal_consistency"`
}

// MultiVectorEvidence lists the signatures that flagged one device in a
// single run.
type MultiVectorEvidence struct {
	Types       []AnomalyType `json:"types"`
	Confidences []float64     `json:"confidences"`
}

// GovernmentInfrastructureEvidence carries a high-confidence correlation.
type GovernmentInfrastructureEvidence struct {
	Manufacturer      string   `json:"manufacturer,omitempty"`
	RegistryScore     float64  `json:"registry_score"`
	ManufacturerScore float64  `json:"manufacturer_score"`
	AgencyMatches     []string `json:"agency_matches"`
	TacticalMatches   []string `json:"tactical_matches"`
	DeploymentPattern string   `json:"deployment_pattern"`
}
