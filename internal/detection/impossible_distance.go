// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/geo"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
)

// Speed tiers for impossible travel, in km/h.
const (
	speedAircraft       = 800.0 // faster than commercial aircraft
	speedHighSpeedRail  = 300.0
	speedFastGroundPlus = 200.0
)

// ImpossibleSpeedConfidence maps a required speed to a confidence. Speeds
// at or below the ceiling return 0.
func ImpossibleSpeedConfidence(speedKmh, ceilingKmh float64) float64 {
	switch {
	case speedKmh <= ceilingKmh:
		return 0
	case speedKmh >= speedAircraft:
		return 1.0
	case speedKmh >= speedHighSpeedRail:
		return 0.95
	case speedKmh >= speedFastGroundPlus:
		return 0.85
	default:
		return 0.75
	}
}

// ImpossibleDistance flags fix pairs that would need a ground speed above
// the plausible ceiling.
type ImpossibleDistance struct {
	reader measurement.Reader
	cfg    config.ImpossibleDistanceConfig
}

// NewImpossibleDistance creates the detector.
func NewImpossibleDistance(reader measurement.Reader, cfg config.ImpossibleDistanceConfig) *ImpossibleDistance {
	return &ImpossibleDistance{reader: reader, cfg: cfg}
}

// Type implements Detector.
func (d *ImpossibleDistance) Type() AnomalyType { return TypeImpossibleDistance }

// Detect implements Detector.
func (d *ImpossibleDistance) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	byDevice, err := d.reader.PositionsInWindow(ctx, req.From, req.To, req.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	var out []Candidate
	for _, id := range sortedKeys(byDevice) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, d.scanDevice(id, byDevice[id])...)
	}

	logging.Debug().
		Int("devices", len(byDevice)).
		Int("candidates", len(out)).
		Float64("speed_ceiling_kmh", d.cfg.MaxGroundSpeedKmh).
		Msg("Impossible distance scan complete")
	return out, nil
}

func (d *ImpossibleDistance) scanDevice(id string, fixes []measurement.PositionObservation) []Candidate {
	var out []Candidate
	for i := 0; i < len(fixes); i++ {
		a := fixes[i]
		for j := i + 1; j < len(fixes); j++ {
			b := fixes[j]
			elapsed := b.ObservedAt.Sub(a.ObservedAt)
			if elapsed > d.cfg.FollowUpWindow {
				break
			}
			// Identical timestamps carry no speed information.
			if elapsed <= 0 {
				continue
			}

			km := geo.HaversineKm(a.Point, b.Point)
			if km <= d.cfg.NoiseFloorKm || km < d.cfg.MinDistanceKm {
				continue
			}
			speed := km / elapsed.Hours()
			confidence := ImpossibleSpeedConfidence(speed, d.cfg.MaxGroundSpeedKmh)
			if confidence == 0 {
				continue
			}

			out = append(out, Candidate{
				Type:           TypeImpossibleDistance,
				PrimaryDevice:  id,
				RelatedDevices: []string{},
				Locations:      []geo.Point{a.Point, b.Point},
				Start:          a.ObservedAt,
				End:            b.ObservedAt,
				Confidence:     confidence,
				Evidence: Evidence{
					Kind: TypeImpossibleDistance,
					ImpossibleDistance: &ImpossibleDistanceEvidence{
						From:             Fix{Point: a.Point, ObservedAt: a.ObservedAt},
						To:               Fix{Point: b.Point, ObservedAt: b.ObservedAt},
						DistanceKm:       geo.Round2(km),
						ElapsedMinutes:   geo.Round2(elapsed.Minutes()),
						RequiredSpeedKmh: geo.Round2(speed),
						SpeedCeilingKmh:  d.cfg.MaxGroundSpeedKmh,
					},
					Score: &ScoreExplanation{
						Components: map[string]float64{"required_speed_kmh": geo.Round2(speed)},
					},
				},
			})
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
