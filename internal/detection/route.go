// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/geo"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
)

const (
	coLocationCountNorm = 10.0
	consistencyScale    = 10 * time.Minute
)

// RouteCorrelation finds devices that keep turning up where the self
// device has just been.
type RouteCorrelation struct {
	reader measurement.Reader
	selfID string
	cfg    config.RouteCorrelationConfig
}

// NewRouteCorrelation creates the detector. With an empty selfID the
// detector returns no candidates.
func NewRouteCorrelation(reader measurement.Reader, selfID string, cfg config.RouteCorrelationConfig) *RouteCorrelation {
	return &RouteCorrelation{reader: reader, selfID: selfID, cfg: cfg}
}

// Type implements Detector.
func (d *RouteCorrelation) Type() AnomalyType { return TypeRouteCorrelation }

// Detect implements Detector.
func (d *RouteCorrelation) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	if d.selfID == "" {
		logging.Debug().Msg("Route correlation skipped: no self device configured")
		return nil, nil
	}

	selfFixes, err := d.reader.Positions(ctx, d.selfID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("failed to read self positions: %w", err)
	}
	if len(selfFixes) == 0 {
		return nil, nil
	}

	proximityKm := d.cfg.ProximityM / 1000
	grid := geo.NewGrid[int](proximityKm)
	for i, f := range selfFixes {
		grid.Insert(f.Point, f.ObservedAt, i)
	}

	others, err := d.reader.PositionsInWindow(ctx, req.From.Add(-d.cfg.MaxArrivalDelta), req.To.Add(d.cfg.MaxArrivalDelta), req.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	var out []Candidate
	for _, id := range sortedKeys(others) {
		if id == d.selfID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		events := d.coLocations(grid, selfFixes, others[id], proximityKm)
		if len(events) < d.cfg.MinCoLocations {
			continue
		}
		if c, ok := d.score(id, events); ok {
			out = append(out, c)
		}
	}

	logging.Debug().
		Str("self_device", d.selfID).
		Int("self_fixes", len(selfFixes)).
		Int("candidates", len(out)).
		Msg("Route correlation scan complete")
	return out, nil
}

// coLocations pairs each of the other device's fixes with the nearest-in-time
// self fix in range. Each self fix yields at most one event per device.
func (d *RouteCorrelation) coLocations(grid *geo.Grid[int], selfFixes, fixes []measurement.PositionObservation, proximityKm float64) []CoLocation {
	best := make(map[int]CoLocation)
	for _, f := range fixes {
		nearby := grid.QueryNearbyWithin(f.Point, proximityKm,
			f.ObservedAt.Add(-d.cfg.MaxArrivalDelta), f.ObservedAt.Add(d.cfg.MaxArrivalDelta))
		if len(nearby) == 0 {
			continue
		}
		match := nearby[0]
		for _, e := range nearby[1:] {
			if absDuration(f.ObservedAt.Sub(e.Time)) < absDuration(f.ObservedAt.Sub(match.Time)) {
				match = e
			}
		}
		delta := f.ObservedAt.Sub(match.Time)
		if prev, ok := best[match.Value]; ok && math.Abs(prev.DeltaMinutes) <= math.Abs(delta.Minutes()) {
			continue
		}
		best[match.Value] = CoLocation{
			Point:        selfFixes[match.Value].Point,
			SelfAt:       match.Time,
			OtherAt:      f.ObservedAt,
			DeltaMinutes: delta.Minutes(),
		}
	}

	events := make([]CoLocation, 0, len(best))
	for _, e := range best {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].SelfAt.Before(events[j].SelfAt) })
	return events
}

// DelayBonus rewards an average following delay inside the peak band.
func DelayBonus(avgDelay time.Duration, cfg config.RouteCorrelationConfig) float64 {
	switch {
	case avgDelay >= cfg.PeakMinDelay && avgDelay <= cfg.PeakMaxDelay:
		return 1.0
	case avgDelay >= cfg.FollowMinDelay && avgDelay <= cfg.FollowMaxDelay:
		return 0.7
	default:
		return 0.4
	}
}

func (d *RouteCorrelation) score(deviceID string, events []CoLocation) (Candidate, bool) {
	n := float64(len(events))
	followMin, followMax := d.cfg.FollowMinDelay.Minutes(), d.cfg.FollowMaxDelay.Minutes()

	var sum, followSum float64
	var following, leading int
	for _, e := range events {
		sum += e.DeltaMinutes
		switch {
		case e.DeltaMinutes >= followMin && e.DeltaMinutes <= followMax:
			following++
			followSum += e.DeltaMinutes
		case e.DeltaMinutes < 0:
			leading++
		}
	}
	mean := sum / n

	var variance float64
	for _, e := range events {
		variance += (e.DeltaMinutes - mean) * (e.DeltaMinutes - mean)
	}
	stddev := math.Sqrt(variance / n)

	followingFraction := float64(following) / n
	avgDelay := 0.0
	followingScore := 0.0
	if following > 0 {
		avgDelay = followSum / float64(following)
		followingScore = followingFraction * DelayBonus(time.Duration(avgDelay*float64(time.Minute)), d.cfg)
	}
	consistency := 1 / (1 + stddev/consistencyScale.Minutes())

	components := map[string]float64{
		"count":       math.Min(1, n/coLocationCountNorm),
		"following":   round3(followingScore),
		"consistency": round3(consistency),
	}
	w := d.cfg.Weights
	score := round3(w.Count*components["count"] + w.Following*components["following"] + w.Consistency*components["consistency"])

	logging.Weights(logging.Debug(), "weights", w.Map()).
		Str("device_id", deviceID).
		Int("co_locations", len(events)).
		Float64("score", score).
		Msg("Route correlation scored")

	if score < d.cfg.MinScore {
		return Candidate{}, false
	}

	locations := make([]geo.Point, len(events))
	for i, e := range events {
		locations[i] = e.Point
	}
	start, end := events[0].SelfAt, events[len(events)-1].SelfAt
	for _, e := range events {
		if e.OtherAt.Before(start) {
			start = e.OtherAt
		}
		if e.OtherAt.After(end) {
			end = e.OtherAt
		}
	}

	return Candidate{
		Type:           TypeRouteCorrelation,
		PrimaryDevice:  deviceID,
		RelatedDevices: []string{d.selfID},
		Locations:      locations,
		Start:          start,
		End:            end,
		Confidence:     score,
		Evidence: Evidence{
			Kind: TypeRouteCorrelation,
			RouteCorrelation: &RouteCorrelationEvidence{
				SelfDevice:         d.selfID,
				CoLocations:        events,
				AvgDeltaMinutes:    geo.Round2(mean),
				DeltaStdDevMinutes: geo.Round2(stddev),
				AvgDelayMinutes:    geo.Round2(avgDelay),
				FollowingFraction:  round3(followingFraction),
				LeadingFraction:    round3(float64(leading) / n),
				FollowingScore:     round3(followingScore),
				Consistency:        round3(consistency),
			},
			Score: &ScoreExplanation{Components: components, Weights: w.Map()},
		},
	}, true
}
