// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"fmt"
	"math"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/geo"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
)

// altitudeGainNormM is the climb that earns a full altitude component.
const altitudeGainNormM = 1000.0

// AerialSignature finds climbing, straight, fast segments that look like
// an aircraft rather than a ground vehicle.
type AerialSignature struct {
	reader measurement.Reader
	cfg    config.AerialConfig
}

// NewAerialSignature creates the detector.
func NewAerialSignature(reader measurement.Reader, cfg config.AerialConfig) *AerialSignature {
	return &AerialSignature{reader: reader, cfg: cfg}
}

// Type implements Detector.
func (d *AerialSignature) Type() AnomalyType { return TypeAerialSignature }

// Detect implements Detector.
func (d *AerialSignature) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	byDevice, err := d.reader.PositionsInWindow(ctx, req.From, req.To, req.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	var out []Candidate
	segments := 0
	for _, id := range sortedKeys(byDevice) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, seg := range ClimbSegments(byDevice[id], d.cfg.MinClimbStepM) {
			segments++
			if c, ok := d.score(id, seg); ok {
				out = append(out, c)
			}
		}
	}

	logging.Debug().
		Int("devices", len(byDevice)).
		Int("segments", segments).
		Int("candidates", len(out)).
		Msg("Aerial signature scan complete")
	return out, nil
}

// ClimbSegments returns maximal runs of at least two consecutive fixes
// where every step gains more than minStepM of altitude. Fixes without
// altitude break a run.
func ClimbSegments(fixes []measurement.PositionObservation, minStepM float64) [][]AltitudeFix {
	var out [][]AltitudeFix
	var current []AltitudeFix

	flush := func() {
		if len(current) >= 2 {
			out = append(out, current)
		}
		current = nil
	}

	for _, f := range fixes {
		if f.Altitude == nil {
			flush()
			continue
		}
		point := AltitudeFix{Fix: Fix{Point: f.Point, ObservedAt: f.ObservedAt}, AltitudeM: *f.Altitude}
		if len(current) > 0 && point.AltitudeM-current[len(current)-1].AltitudeM <= minStepM {
			flush()
		}
		current = append(current, point)
	}
	flush()
	return out
}

func (d *AerialSignature) score(deviceID string, path []AltitudeFix) (Candidate, bool) {
	first, last := path[0], path[len(path)-1]
	gain := last.AltitudeM - first.AltitudeM

	var pathKm, maxSpeed float64
	bearings := make([]float64, 0, len(path)-1)
	for i := 1; i < len(path); i++ {
		step := geo.HaversineKm(path[i-1].Point, path[i].Point)
		pathKm += step
		if step > 0 {
			bearings = append(bearings, geo.BearingDegrees(path[i-1].Point, path[i].Point))
		}
		if hours := path[i].ObservedAt.Sub(path[i-1].ObservedAt).Hours(); hours > 0 {
			maxSpeed = math.Max(maxSpeed, step/hours)
		}
	}

	if gain < d.cfg.MinAltitudeGainM || pathKm < d.cfg.MinDistanceKm {
		return Candidate{}, false
	}

	straightKm := geo.HaversineKm(first.Point, last.Point)
	linearity := 0.0
	if pathKm > 0 {
		linearity = clamp01(straightKm / pathKm)
	}
	avgSpeed := 0.0
	if hours := last.ObservedAt.Sub(first.ObservedAt).Hours(); hours > 0 {
		avgSpeed = pathKm / hours
	}
	headingVariance := geo.CircularVariance(bearings)

	speedRange := d.cfg.AircraftSpeedKmh - d.cfg.GroundSpeedKmh
	speedScore := 0.0
	if speedRange > 0 {
		speedScore = clamp01((avgSpeed - d.cfg.GroundSpeedKmh) / speedRange)
	}

	components := map[string]float64{
		"altitude":  clamp01(gain / altitudeGainNormM),
		"speed":     round3(speedScore),
		"linearity": round3(linearity),
		"heading":   round3(1 - headingVariance),
	}
	w := d.cfg.Weights
	score := round3(w.Altitude*components["altitude"] + w.Speed*components["speed"] +
		w.Linearity*components["linearity"] + w.Heading*components["heading"])

	logging.Weights(logging.Debug(), "weights", w.Map()).
		Str("device_id", deviceID).
		Float64("altitude_gain_m", gain).
		Float64("score", score).
		Msg("Flight segment scored")

	if score < d.cfg.MinScore {
		return Candidate{}, false
	}

	locations := make([]geo.Point, len(path))
	for i, p := range path {
		locations[i] = p.Point
	}

	return Candidate{
		Type:           TypeAerialSignature,
		PrimaryDevice:  deviceID,
		RelatedDevices: []string{},
		Locations:      locations,
		Start:          first.ObservedAt,
		End:            last.ObservedAt,
		Confidence:     score,
		Evidence: Evidence{
			Kind: TypeAerialSignature,
			Aerial: &AerialEvidence{
				FlightPath:      path,
				AltitudeGainM:   geo.Round2(gain),
				PathLengthKm:    geo.Round2(pathKm),
				StraightLineKm:  geo.Round2(straightKm),
				Linearity:       round3(linearity),
				HeadingVariance: round3(headingVariance),
				MaxSpeedKmh:     geo.Round2(maxSpeed),
				AvgSpeedKmh:     geo.Round2(avgSpeed),
			},
			Score: &ScoreExplanation{Components: components, Weights: w.Map()},
		},
	}, true
}
