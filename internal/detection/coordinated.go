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
	groupSizeNorm     = 10.0
	movementDistNormK = 50.0
)

// CoordinatedMovement finds groups of devices that start and finish a
// significant movement together.
type CoordinatedMovement struct {
	reader measurement.Reader
	cfg    config.CoordinatedMovementConfig
}

// NewCoordinatedMovement creates the detector.
func NewCoordinatedMovement(reader measurement.Reader, cfg config.CoordinatedMovementConfig) *CoordinatedMovement {
	return &CoordinatedMovement{reader: reader, cfg: cfg}
}

// Type implements Detector.
func (d *CoordinatedMovement) Type() AnomalyType { return TypeCoordinatedMovement }

// Detect implements Detector.
func (d *CoordinatedMovement) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	byDevice, err := d.reader.PositionsInWindow(ctx, req.From, req.To, req.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	var movements []Movement
	for _, id := range sortedKeys(byDevice) {
		movements = append(movements, ExtractMovements(id, byDevice[id], d.cfg.MinMovementKm, 2*d.cfg.Window)...)
	}
	if len(movements) < d.cfg.MinGroupSize {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := d.group(movements)

	var out []Candidate
	for _, group := range groups {
		if c, ok := d.score(group); ok {
			out = append(out, c)
		}
	}

	logging.Debug().
		Int("movements", len(movements)).
		Int("groups", len(groups)).
		Int("candidates", len(out)).
		Msg("Coordinated movement scan complete")
	return out, nil
}

// ExtractMovements greedily splits a device track into non-overlapping
// displacements of at least minKm completed within maxSpan.
func ExtractMovements(deviceID string, fixes []measurement.PositionObservation, minKm float64, maxSpan time.Duration) []Movement {
	var out []Movement
	i := 0
	for i < len(fixes)-1 {
		start := fixes[i]
		found := -1
		for j := i + 1; j < len(fixes); j++ {
			if fixes[j].ObservedAt.Sub(start.ObservedAt) > maxSpan {
				break
			}
			if geo.HaversineKm(start.Point, fixes[j].Point) >= minKm {
				found = j
				break
			}
		}
		if found < 0 {
			i++
			continue
		}
		end := fixes[found]
		out = append(out, Movement{
			DeviceID:   deviceID,
			Start:      Fix{Point: start.Point, ObservedAt: start.ObservedAt},
			End:        Fix{Point: end.Point, ObservedAt: end.ObservedAt},
			DistanceKm: geo.Round2(geo.HaversineKm(start.Point, end.Point)),
		})
		i = found
	}
	return out
}

// group joins matching movements with union-find, so transitive matches
// form one group and cycles terminate.
func (d *CoordinatedMovement) group(movements []Movement) [][]Movement {
	startKm := d.cfg.StartProximityM / 1000
	grid := geo.NewGrid[int](startKm)
	for i, m := range movements {
		grid.Insert(m.Start.Point, m.Start.ObservedAt, i)
	}

	uf := newUnionFind(len(movements))
	for i, m := range movements {
		nearby := grid.QueryNearbyWithin(m.Start.Point, startKm,
			m.Start.ObservedAt.Add(-d.cfg.Window), m.Start.ObservedAt.Add(d.cfg.Window))
		for _, e := range nearby {
			j := e.Value
			if j == i || movements[j].DeviceID == m.DeviceID {
				continue
			}
			other := movements[j]
			if geo.HaversineM(m.End.Point, other.End.Point) > d.cfg.EndProximityM {
				continue
			}
			if absDuration(m.End.ObservedAt.Sub(other.End.ObservedAt)) > d.cfg.Window {
				continue
			}
			uf.union(i, j)
		}
	}

	components := make(map[int][]Movement)
	for i, m := range movements {
		root := uf.find(i)
		components[root] = append(components[root], m)
	}

	var out [][]Movement
	for _, members := range components {
		// Keep one movement per device: the earliest.
		seen := make(map[string]bool)
		sort.Slice(members, func(a, b int) bool {
			return members[a].Start.ObservedAt.Before(members[b].Start.ObservedAt)
		})
		var unique []Movement
		for _, m := range members {
			if !seen[m.DeviceID] {
				seen[m.DeviceID] = true
				unique = append(unique, m)
			}
		}
		if len(unique) >= d.cfg.MinGroupSize {
			out = append(out, unique)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a][0].Start.ObservedAt.Before(out[b][0].Start.ObservedAt)
	})
	return out
}

func (d *CoordinatedMovement) score(group []Movement) (Candidate, bool) {
	var offsetSum float64
	pairs := 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			offsetSum += absDuration(group[i].Start.ObservedAt.Sub(group[j].Start.ObservedAt)).Minutes()
			pairs++
		}
	}
	avgOffset := 0.0
	if pairs > 0 {
		avgOffset = offsetSum / float64(pairs)
	}

	var distSum float64
	for _, m := range group {
		distSum += m.DistanceKm
	}
	avgDist := distSum / float64(len(group))

	windowMin := d.cfg.Window.Minutes()
	synchronization := 1.0
	if windowMin > 0 {
		synchronization = clamp01(1 - avgOffset/windowMin)
	}

	components := map[string]float64{
		"group_size": math.Min(1, float64(len(group))/groupSizeNorm),
		"timing":     synchronization,
		"distance":   math.Min(1, avgDist/movementDistNormK),
	}
	w := d.cfg.Weights
	score := round3(w.GroupSize*components["group_size"] + w.Timing*components["timing"] + w.Distance*components["distance"])

	logging.Weights(logging.Debug(), "weights", w.Map()).
		Str("primary_device", group[0].DeviceID).
		Int("group_size", len(group)).
		Float64("score", score).
		Msg("Coordinated movement scored")

	if score < d.cfg.MinScore {
		return Candidate{}, false
	}

	related := make([]string, 0, len(group)-1)
	locations := make([]geo.Point, 0, 2*len(group))
	start, end := group[0].Start.ObservedAt, group[0].End.ObservedAt
	for i, m := range group {
		if i > 0 {
			related = append(related, m.DeviceID)
		}
		locations = append(locations, m.Start.Point, m.End.Point)
		if m.Start.ObservedAt.Before(start) {
			start = m.Start.ObservedAt
		}
		if m.End.ObservedAt.After(end) {
			end = m.End.ObservedAt
		}
	}
	sort.Strings(related)

	return Candidate{
		Type:           TypeCoordinatedMovement,
		PrimaryDevice:  group[0].DeviceID,
		RelatedDevices: related,
		Locations:      locations,
		Start:          start,
		End:            end,
		Confidence:     score,
		Evidence: Evidence{
			Kind: TypeCoordinatedMovement,
			CoordinatedMovement: &CoordinatedMovementEvidence{
				GroupSize:              len(group),
				Movements:              group,
				AvgTimingOffsetMinutes: geo.Round2(avgOffset),
				TimeSynchronization:    round3(synchronization),
				AvgDistanceKm:          geo.Round2(avgDist),
			},
			Score: &ScoreExplanation{Components: components, Weights: w.Map()},
		},
	}, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// unionFind is a disjoint-set forest with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
