// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package contextfilter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// Suppression reasons reported in FilterStats and metrics.
const (
	ReasonSafeZone     = "safe_zone"
	ReasonTrustedPair  = "trusted_relationship"
	ReasonBelowMinimum = "below_min_confidence"
)

// FilterStats summarizes one Apply call.
type FilterStats struct {
	Input      int            `json:"input"`
	Suppressed map[string]int `json:"suppressed"`
	Dampened   int            `json:"dampened"`
	Boosted    int            `json:"boosted"`
}

// Total returns the number of suppressed candidates.
func (s FilterStats) Total() int {
	n := 0
	for _, v := range s.Suppressed {
		n += v
	}
	return n
}

// Filter applies safe zones and relationships to candidates.
type Filter struct {
	store Store
	cfg   config.ContextFilterConfig
	now   func() time.Time
}

// NewFilter creates a filter.
func NewFilter(store Store, cfg config.ContextFilterConfig) *Filter {
	return &Filter{store: store, cfg: cfg, now: time.Now}
}

// Apply returns the candidates that survive context filtering, with
// adjusted confidences. Zones and relationships are loaded once per call.
func (f *Filter) Apply(ctx context.Context, candidates []detection.Candidate) ([]detection.Candidate, FilterStats, error) {
	stats := FilterStats{Input: len(candidates), Suppressed: make(map[string]int)}
	if len(candidates) == 0 {
		return nil, stats, nil
	}

	zones, err := f.store.ListZones(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load safe zones: %w", err)
	}
	rels, err := f.store.ListRelationships(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load relationships: %w", err)
	}
	graph := NewRelationshipGraph(rels)

	out := make([]detection.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if reason, ok := f.suppressed(c, zones, graph); ok {
			stats.Suppressed[reason]++
			metrics.CandidatesSuppressed.WithLabelValues(reason).Inc()
			logging.Ctx(ctx).Debug().
				Str("type", string(c.Type)).
				Str("device_id", c.PrimaryDevice).
				Str("reason", reason).
				Msg("Candidate suppressed")
			continue
		}

		original := c.Confidence
		c.Confidence = f.zoneFactor(c, zones) * c.Confidence
		c.Confidence = f.relationshipFactor(c, graph, &stats) * c.Confidence
		c.Confidence = math.Min(1, c.Confidence)
		if c.Confidence < original {
			stats.Dampened++
		}
		out = append(out, c)
	}
	return out, stats, nil
}

func (f *Filter) suppressed(c detection.Candidate, zones []SafeZone, graph *RelationshipGraph) (string, bool) {
	for _, z := range zones {
		if z.Suppress[c.Type] && z.Covers(c.Locations) {
			return ReasonSafeZone, true
		}
	}
	if c.Type == detection.TypeRouteCorrelation {
		for _, other := range c.RelatedDevices {
			if graph.Classification(c.PrimaryDevice, other).Trusted() {
				return ReasonTrustedPair, true
			}
		}
	}
	return "", false
}

func (f *Filter) zoneFactor(c detection.Candidate, zones []SafeZone) float64 {
	factor := 1.0
	for _, z := range zones {
		if z.SensitivityFactor > 0 && z.SensitivityFactor < 1 && z.Covers(c.Locations) {
			factor *= z.SensitivityFactor
		}
	}
	return factor
}

func (f *Filter) relationshipFactor(c detection.Candidate, graph *RelationshipGraph, stats *FilterStats) float64 {
	factor := 1.0

	if c.Type == detection.TypeCoordinatedMovement && len(c.RelatedDevices) > 0 {
		trusted := graph.TrustedComponent(c.PrimaryDevice, f.cfg.TrustDepth)
		all := true
		for _, d := range c.RelatedDevices {
			if !trusted[d] {
				all = false
				break
			}
		}
		if all {
			factor *= f.cfg.TrustedDampening
		}
	}

	for _, d := range c.RelatedDevices {
		if graph.Classification(c.PrimaryDevice, d) == ClassThreat {
			factor *= f.cfg.ThreatBoost
			stats.Boosted++
			break
		}
	}
	return factor
}

// RecordCoLocation bumps the co-location statistics for a pair, creating
// an unclassified relationship on first sight.
func (f *Filter) RecordCoLocation(ctx context.Context, a, b string, at time.Time) error {
	a, b = PairKey(a, b)
	rel, err := f.store.GetRelationship(ctx, a, b)
	if err != nil {
		return err
	}
	if rel == nil {
		rel = &DeviceRelationship{DeviceA: a, DeviceB: b, Classification: ClassUnknown, FirstCoLocated: at}
	}
	rel.CoLocationCount++
	if rel.FirstCoLocated.IsZero() || at.Before(rel.FirstCoLocated) {
		rel.FirstCoLocated = at
	}
	if at.After(rel.LastCoLocated) {
		rel.LastCoLocated = at
	}
	rel.UpdatedAt = f.now().UTC()
	return f.store.UpsertRelationship(ctx, rel)
}

// Classify sets the operator classification for a pair, keeping its
// co-location statistics.
func (f *Filter) Classify(ctx context.Context, a, b string, c Classification, notes string) (*DeviceRelationship, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid classification %q", c)
	}
	a, b = PairKey(a, b)
	rel, err := f.store.GetRelationship(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		rel = &DeviceRelationship{DeviceA: a, DeviceB: b}
	}
	rel.Classification = c
	rel.Notes = notes
	rel.UpdatedAt = f.now().UTC()
	if err := f.store.UpsertRelationship(ctx, rel); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("device_a", a).
		Str("device_b", b).
		Str("classification", string(c)).
		Msg("Device relationship classified")
	return rel, nil
}
