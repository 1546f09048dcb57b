// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"sort"

	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/geo"
)

// MultiVector derives one composite per device that is the primary device
// of candidates from at least two distinct detectors. Its confidence is the
// noisy-or of the strongest candidate per detector.
func MultiVector(candidates []Candidate) []Candidate {
	type agg struct {
		best map[AnomalyType]Candidate
	}
	byDevice := make(map[string]*agg)
	for _, c := range candidates {
		if c.Type == TypeMultiVector || c.Type == TypeGovernmentInfrastructure {
			continue
		}
		a, ok := byDevice[c.PrimaryDevice]
		if !ok {
			a = &agg{best: make(map[AnomalyType]Candidate)}
			byDevice[c.PrimaryDevice] = a
		}
		if prev, ok := a.best[c.Type]; !ok || c.Confidence > prev.Confidence {
			a.best[c.Type] = c
		}
	}

	var out []Candidate
	for _, device := range sortedKeys(byDevice) {
		a := byDevice[device]
		if len(a.best) < 2 {
			continue
		}

		types := make([]AnomalyType, 0, len(a.best))
		for t := range a.best {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		miss := 1.0
		relatedSet := make(map[string]bool)
		var locations []geo.Point
		var confidences []float64
		first := a.best[types[0]]
		start, end := first.Start, first.End
		for _, t := range types {
			c := a.best[t]
			miss *= 1 - c.Confidence
			confidences = append(confidences, c.Confidence)
			locations = append(locations, c.Locations...)
			for _, r := range c.RelatedDevices {
				if r != device {
					relatedSet[r] = true
				}
			}
			if c.Start.Before(start) {
				start = c.Start
			}
			if c.End.After(end) {
				end = c.End
			}
		}

		out = append(out, Candidate{
			Type:           TypeMultiVector,
			PrimaryDevice:  device,
			RelatedDevices: sortedKeys(relatedSet),
			Locations:      locations,
			Start:          start,
			End:            end,
			Confidence:     round3(1 - miss),
			Evidence: Evidence{
				Kind:        TypeMultiVector,
				MultiVector: &MultiVectorEvidence{Types: types, Confidences: confidences},
			},
		})
	}
	return out
}

// GovernmentCandidate turns a high-confidence correlation into a candidate.
// Other labels return false.
func GovernmentCandidate(c *correlation.Correlation, locations []geo.Point) (Candidate, bool) {
	if c == nil || c.Pattern != correlation.PatternHighConfidence {
		return Candidate{}, false
	}
	return Candidate{
		Type:           TypeGovernmentInfrastructure,
		PrimaryDevice:  c.DeviceID,
		RelatedDevices: []string{},
		Locations:      locations,
		Start:          c.AnalyzedAt,
		End:            c.AnalyzedAt,
		Confidence:     c.Confidence,
		Evidence: Evidence{
			Kind: TypeGovernmentInfrastructure,
			GovernmentInfrastructure: &GovernmentInfrastructureEvidence{
				Manufacturer:      c.Manufacturer,
				RegistryScore:     c.RegistryScore,
				ManufacturerScore: c.ManufacturerScore,
				AgencyMatches:     c.AgencyMatches,
				TacticalMatches:   c.TacticalMatches,
				DeploymentPattern: string(c.Pattern),
			},
		},
	}, true
}
