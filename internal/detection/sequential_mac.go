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
	"strconv"
	"strings"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/geo"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
)

const sequenceLengthNorm = 20.0

// ParseMACSuffix returns the trailing 24 bits of a 48-bit hardware address
// written with ':', '-' or '.' separators or as 12 bare hex digits.
func ParseMACSuffix(id string) (uint32, bool) {
	hex := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(id))
	if len(hex) != 12 {
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return uint32(v & 0xFFFFFF), true
}

// SequentialMac finds runs of devices with numerically adjacent addresses,
// typical of fleets provisioned from one block.
type SequentialMac struct {
	store measurement.Store
	cfg   config.SequentialMacConfig
}

// NewSequentialMac creates the detector.
func NewSequentialMac(store measurement.Store, cfg config.SequentialMacConfig) *SequentialMac {
	return &SequentialMac{store: store, cfg: cfg}
}

// Type implements Detector.
func (d *SequentialMac) Type() AnomalyType { return TypeSequentialMac }

// Detect implements Detector.
func (d *SequentialMac) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	devices, err := d.devices(ctx, req)
	if err != nil {
		return nil, err
	}

	members := make([]SequenceMember, 0, len(devices))
	byID := make(map[string]measurement.Device, len(devices))
	for _, dev := range devices {
		suffix, ok := ParseMACSuffix(dev.ID)
		if !ok {
			continue
		}
		byID[dev.ID] = dev
		members = append(members, SequenceMember{
			DeviceID:        dev.ID,
			Suffix:          suffix,
			Manufacturer:    dev.Manufacturer,
			GovernmentScore: math.Max(dev.GovernmentLikelihood, correlation.ManufacturerScore(dev.Manufacturer)),
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Suffix != members[j].Suffix {
			return members[i].Suffix < members[j].Suffix
		}
		return members[i].DeviceID < members[j].DeviceID
	})

	var out []Candidate
	for _, run := range FindSequences(members, d.cfg.ProximityWindow, d.cfg.MinSequenceLength) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, ok, err := d.score(ctx, req, run, byID)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, c)
		}
	}

	logging.Debug().
		Int("devices", len(members)).
		Int("candidates", len(out)).
		Int("proximity_window", d.cfg.ProximityWindow).
		Msg("Sequential address scan complete")
	return out, nil
}

func (d *SequentialMac) devices(ctx context.Context, req Request) ([]measurement.Device, error) {
	if len(req.DeviceIDs) == 0 {
		devices, err := d.store.DevicesSeen(ctx, req.From, req.To)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		return devices, nil
	}

	var out []measurement.Device
	for _, id := range req.DeviceIDs {
		dev, err := d.store.Device(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up device %s: %w", id, err)
		}
		if dev != nil {
			out = append(out, *dev)
		}
	}
	return out, nil
}

// FindSequences splits sorted members into maximal non-overlapping runs.
// Every member of a run lies within window of the run's first member.
func FindSequences(sorted []SequenceMember, window, minLength int) [][]SequenceMember {
	var out [][]SequenceMember
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && int64(sorted[j].Suffix)-int64(sorted[i].Suffix) <= int64(window) {
			j++
		}
		if j-i >= minLength {
			out = append(out, sorted[i:j])
			i = j
			continue
		}
		i++
	}
	return out
}

func (d *SequentialMac) score(ctx context.Context, req Request, run []SequenceMember, byID map[string]measurement.Device) (Candidate, bool, error) {
	var sum, maxScore float64
	for _, m := range run {
		sum += m.GovernmentScore
		maxScore = math.Max(maxScore, m.GovernmentScore)
	}
	avg := sum / float64(len(run))

	components := map[string]float64{
		"length":           math.Min(1, float64(len(run))/sequenceLengthNorm),
		"government":       round3(avg),
		"high_score_bonus": 0,
	}
	if maxScore > d.cfg.HighScoreMember {
		components["high_score_bonus"] = 1
	}
	w := d.cfg.Weights
	score := round3(w.Length*components["length"] + w.Government*components["government"] + w.HighScoreBonus*components["high_score_bonus"])

	logging.Weights(logging.Debug(), "weights", w.Map()).
		Str("run_start", run[0].DeviceID).
		Int("length", len(run)).
		Float64("score", score).
		Msg("Address sequence scored")

	if score <= d.cfg.MinScore {
		return Candidate{}, false, nil
	}

	ids := make([]string, len(run))
	for i, m := range run {
		ids[i] = m.DeviceID
	}
	positions, err := d.store.PositionsInWindow(ctx, req.From, req.To, ids)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("failed to read sequence positions: %w", err)
	}

	var locations []geo.Point
	start, end := byID[run[0].DeviceID].FirstSeen, byID[run[0].DeviceID].LastSeen
	for _, id := range ids {
		if p, ok := measurement.FirstFix(positions[id]); ok {
			locations = append(locations, p)
		}
		dev := byID[id]
		if dev.FirstSeen.Before(start) {
			start = dev.FirstSeen
		}
		if dev.LastSeen.After(end) {
			end = dev.LastSeen
		}
	}

	lookup := avg > d.cfg.LookupAverageScore || len(run) > d.cfg.LookupLength || maxScore > d.cfg.LookupMemberScore
	members := append([]SequenceMember(nil), run...)

	return Candidate{
		Type:           TypeSequentialMac,
		PrimaryDevice:  run[0].DeviceID,
		RelatedDevices: ids[1:],
		Locations:      locations,
		Start:          start,
		End:            end,
		Confidence:     score,
		Evidence: Evidence{
			Kind: TypeSequentialMac,
			SequentialMac: &SequentialMacEvidence{
				Members:                members,
				ProximityWindow:        d.cfg.ProximityWindow,
				AverageGovernmentScore: round3(avg),
				MaxGovernmentScore:     maxScore,
				RequiresExternalLookup: lookup,
			},
			Score: &ScoreExplanation{Components: components, Weights: w.Map()},
		},
	}, true, nil
}
