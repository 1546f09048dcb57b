// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Service is the reviewer-facing access path to anomalies. Every read and
// write through it lands in the chain of custody.
type Service struct {
	store   Store
	custody *audit.Logger
	now     func() time.Time
}

// NewService creates an anomaly service.
func NewService(store Store, custody *audit.Logger) *Service {
	return &Service{store: store, custody: custody, now: time.Now}
}

// Get returns an anomaly after verifying its evidence hash. On mismatch the
// anomaly is still returned together with ErrEvidenceTampered.
func (s *Service) Get(ctx context.Context, id, actor, purpose string) (*SurveillanceAnomaly, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	fresh := HashEvidence(a.Evidence)
	if fresh != a.EvidenceHash {
		if _, err := s.custody.Record(ctx, audit.Record{
			AnomalyID:  a.ID,
			EventType:  audit.EventIntegrityFailure,
			Actor:      actor,
			Purpose:    purpose,
			HashBefore: a.EvidenceHash,
			HashAfter:  fresh,
			Details:    "evidence hash mismatch on access",
		}); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("anomaly_id", a.ID).Msg("Failed to record integrity failure")
		}
		logging.Critical().
			Str("anomaly_id", a.ID).
			Str("stored_hash", a.EvidenceHash).
			Str("computed_hash", fresh).
			Str("actor", actor).
			Msg("Anomaly evidence has been tampered with")
		return a, ErrEvidenceTampered
	}

	if _, err := s.custody.Record(ctx, audit.Record{
		AnomalyID:  a.ID,
		EventType:  audit.EventAccessed,
		Actor:      actor,
		Purpose:    purpose,
		HashBefore: a.EvidenceHash,
		HashAfter:  a.EvidenceHash,
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus applies a reviewer transition.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor, notes string) (*SurveillanceAnomaly, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	if !a.VerifyEvidence() {
		return nil, ErrEvidenceTampered
	}

	from := a.Status
	a.Status = to
	a.Strength = StrengthFor(a.Confidence, to)
	a.ReviewedBy = actor
	a.ReviewNotes = notes
	a.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	if err := s.store.UpdateReview(ctx, a); err != nil {
		return nil, err
	}

	if _, err := s.custody.Record(ctx, audit.Record{
		AnomalyID:  a.ID,
		EventType:  audit.EventModified,
		Actor:      actor,
		Purpose:    "investigation",
		HashBefore: a.EvidenceHash,
		HashAfter:  a.EvidenceHash,
		Details:    fmt.Sprintf("status %s -> %s", from, to),
	}); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("anomaly_id", a.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor).
		Msg("Anomaly status updated")
	return a, nil
}

// List returns anomalies without recording access.
func (s *Service) List(ctx context.Context, f Filter) ([]SurveillanceAnomaly, error) {
	return s.store.List(ctx, f)
}

// ForDevices returns anomalies involving any of the devices.
func (s *Service) ForDevices(ctx context.Context, deviceIDs []string) ([]SurveillanceAnomaly, error) {
	return s.store.ForDevices(ctx, deviceIDs)
}

// Custody returns the verified custody history of an anomaly.
func (s *Service) Custody(ctx context.Context, id string) ([]audit.CustodyEntry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.custody.History(ctx, id)
}

// ArchiveStale archives anomalies created before cutoff that are dismissed,
// or still open but flagged false positive by an alert reviewer. It returns
// the number archived.
func (s *Service) ArchiveStale(ctx context.Context, cutoff time.Time, falsePositiveIDs []string) (int, error) {
	fp := make(map[string]bool, len(falsePositiveIDs))
	for _, id := range falsePositiveIDs {
		fp[id] = true
	}

	old, err := s.store.List(ctx, Filter{CreatedBefore: cutoff})
	if err != nil {
		return 0, err
	}

	archived := 0
	for i := range old {
		a := &old[i]
		if !Archivable(a.Status) {
			continue
		}
		if a.Status != StatusDismissed && !fp[a.ID] {
			continue
		}

		from := a.Status
		a.Status = StatusArchived
		a.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
		if err := s.store.UpdateReview(ctx, a); err != nil {
			return archived, err
		}
		if _, err := s.custody.Record(ctx, audit.Record{
			AnomalyID:  a.ID,
			EventType:  audit.EventModified,
			Actor:      "retention",
			Purpose:    "retention",
			HashBefore: a.EvidenceHash,
			HashAfter:  a.EvidenceHash,
			Details:    fmt.Sprintf("status %s -> %s", from, StatusArchived),
		}); err != nil {
			return archived, err
		}
		archived++
	}

	if archived > 0 {
		logging.Ctx(ctx).Info().Int("archived", archived).Time("cutoff", cutoff).Msg("Stale anomalies archived")
	}
	return archived, nil
}

func (s *Service) load(ctx context.Context, id string) (*SurveillanceAnomaly, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}
