// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// ConsolidationResult summarises one Consolidate call.
type ConsolidationResult struct {
	Created []*SurveillanceAnomaly
	// Existing holds the stored anomalies matched by deduplicated
	// candidates, so callers can retry work that an earlier run left undone.
	Existing     []*SurveillanceAnomaly
	Deduplicated int
}

// lockStripes bounds the number of dedupe-key mutexes.
const lockStripes = 64

// Consolidator persists candidates as anomalies, one per dedupe key.
type Consolidator struct {
	store   Store
	custody *audit.Logger
	now     func() time.Time

	// Striped write locks, held across lookup and insert
	keyLocks [lockStripes]sync.Mutex
}

// NewConsolidator creates a consolidator.
func NewConsolidator(store Store, custody *audit.Logger) *Consolidator {
	return &Consolidator{store: store, custody: custody, now: time.Now}
}

// Consolidate persists every candidate whose dedupe key is new. A store
// failure stops consolidation and is returned with the anomalies created so
// far. An anomaly whose custody record failed is still reported as created.
func (c *Consolidator) Consolidate(ctx context.Context, candidates []detection.Candidate) (ConsolidationResult, error) {
	var res ConsolidationResult
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a, created, err := c.consolidateOne(ctx, &candidates[i])
		switch {
		case created:
			res.Created = append(res.Created, a)
		case a != nil:
			res.Existing = append(res.Existing, a)
			res.Deduplicated++
			metrics.AnomaliesDeduplicated.Inc()
		}
		if err != nil {
			return res, err
		}
	}

	logging.Ctx(ctx).Info().
		Int("candidates", len(candidates)).
		Int("created", len(res.Created)).
		Int("deduplicated", res.Deduplicated).
		Msg("Candidates consolidated")
	return res, nil
}

func (c *Consolidator) consolidateOne(ctx context.Context, cand *detection.Candidate) (*SurveillanceAnomaly, bool, error) {
	key := DedupeKey(cand.Type, cand.PrimaryDevice, cand.Start, cand.End)

	mu := &c.keyLocks[stripe(key)]
	mu.Lock()
	defer mu.Unlock()

	existing, err := c.store.GetByDedupeKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	a, err := c.newAnomaly(key, cand)
	if err != nil {
		return nil, false, err
	}
	if err := c.store.Create(ctx, a); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			existing, err := c.store.GetByDedupeKey(ctx, key)
			return existing, false, err
		}
		return nil, false, err
	}

	if _, err := c.custody.Record(ctx, audit.Record{
		AnomalyID: a.ID,
		EventType: audit.EventCreated,
		Actor:     "system",
		Purpose:   "detection",
		HashAfter: a.EvidenceHash,
		Details:   fmt.Sprintf("%s anomaly created with confidence %.3f", a.Type, a.Confidence),
	}); err != nil {
		return a, true, fmt.Errorf("record creation of %s: %w", a.ID, err)
	}

	metrics.AnomaliesCreated.WithLabelValues(string(a.Type)).Inc()
	logging.Ctx(ctx).Info().
		Str("anomaly_id", a.ID).
		Str("type", string(a.Type)).
		Str("primary_device", a.PrimaryDevice).
		Float64("confidence", a.Confidence).
		Int("priority", a.Priority).
		Msg("Anomaly created")
	return a, true, nil
}

// stripe maps a dedupe key to its lock index.
func stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

func (c *Consolidator) newAnomaly(key string, cand *detection.Candidate) (*SurveillanceAnomaly, error) {
	payload, err := json.Marshal(cand.Evidence)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	now := c.now().UTC().Truncate(time.Microsecond)
	return &SurveillanceAnomaly{
		ID:             uuid.New().String(),
		DedupeKey:      key,
		Type:           cand.Type,
		PrimaryDevice:  cand.PrimaryDevice,
		RelatedDevices: append([]string(nil), cand.RelatedDevices...),
		Locations:      append(cand.Locations[:0:0], cand.Locations...),
		Start:          cand.Start.UTC(),
		End:            cand.End.UTC(),
		Confidence:     cand.Confidence,
		Strength:       StrengthFor(cand.Confidence, StatusPending),
		Priority:       PriorityFor(cand.Type, cand.Confidence),
		Status:         StatusPending,
		Evidence:       payload,
		EvidenceHash:   HashEvidence(payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
