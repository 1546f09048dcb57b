// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// Record describes one custody event before it is chained.
type Record struct {
	AnomalyID  string
	EventType  EventType
	Actor      string
	Purpose    string
	HashBefore string
	HashAfter  string
	Details    string
}

// Logger appends chained custody entries.
type Logger struct {
	store Store
	// Chaining reads the previous entry then appends; the mutex keeps that
	// pair atomic within the process. The store's UNIQUE sequence guards
	// against a second writer.
	mu  sync.Mutex
	now func() time.Time
}

// NewLogger creates a custody logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Record appends an entry for r and returns it.
func (l *Logger) Record(ctx context.Context, r Record) (*CustodyEntry, error) {
	if r.AnomalyID == "" || !r.EventType.Valid() {
		return nil, fmt.Errorf("%w: anomaly %q event %q", ErrInvalidEntry, r.AnomalyID, r.EventType)
	}
	if r.Actor == "" {
		r.Actor = "system"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.Last(ctx, r.AnomalyID)
	if err != nil {
		return nil, err
	}

	e := &CustodyEntry{
		ID:            uuid.New().String(),
		AnomalyID:     r.AnomalyID,
		EventType:     r.EventType,
		Actor:         r.Actor,
		Purpose:       r.Purpose,
		HashBefore:    r.HashBefore,
		HashAfter:     r.HashAfter,
		Details:       r.Details,
		Timestamp:     l.now().UTC().Truncate(time.Microsecond),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	}
	if last != nil {
		e.Sequence = last.Sequence + 1
		e.PrevEntryHash = last.EntryHash
	}
	e.EntryHash = e.ComputeHash()

	if err := l.store.Append(ctx, e); err != nil {
		return nil, err
	}

	if r.EventType == EventIntegrityFailure {
		metrics.IntegrityFailures.Inc()
	}
	logging.Ctx(ctx).Debug().
		Str("anomaly_id", e.AnomalyID).
		Str("event_type", string(e.EventType)).
		Str("actor", e.Actor).
		Int64("sequence", e.Sequence).
		Msg("Custody entry recorded")
	return e, nil
}

// History returns the entries for an anomaly after verifying the chain.
// The entries are returned even when verification fails.
func (l *Logger) History(ctx context.Context, anomalyID string) ([]CustodyEntry, error) {
	entries, err := l.store.ForAnomaly(ctx, anomalyID)
	if err != nil {
		return nil, err
	}
	if err := VerifyChain(entries); err != nil {
		logging.Critical().Err(err).Str("anomaly_id", anomalyID).Msg("Custody chain verification failed")
		return entries, err
	}
	return entries, nil
}

// Count returns the number of entries of a type.
func (l *Logger) Count(ctx context.Context, eventType EventType) (int64, error) {
	return l.store.Count(ctx, eventType)
}
