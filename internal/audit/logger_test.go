// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

// tamper rewrites a stored entry in place, bypassing the append-only API.
func tamper(s *MemoryStore, anomalyID string, seq int64, mutate func(*CustodyEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries[anomalyID] {
		if s.entries[anomalyID][i].Sequence == seq {
			mutate(&s.entries[anomalyID][i])
		}
	}
}

func newTestLogger() (*Logger, *MemoryStore) {
	store := NewMemoryStore()
	l := NewLogger(store)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	l.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return l, store
}

func TestLoggerRecordChainsEntries(t *testing.T) {
	l, _ := newTestLogger()
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")

	events := []Record{
		{AnomalyID: "a1", EventType: EventCreated, HashAfter: "h1"},
		{AnomalyID: "a1", EventType: EventAccessed, Actor: "analyst", Purpose: "review", HashBefore: "h1", HashAfter: "h1"},
		{AnomalyID: "a1", EventType: EventModified, Actor: "analyst", HashBefore: "h1", HashAfter: "h1", Details: "status confirmed"},
	}
	var prev *CustodyEntry
	for i, r := range events {
		e, err := l.Record(ctx, r)
		if err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
		if e.Sequence != int64(i) {
			t.Errorf("entry %d sequence = %d", i, e.Sequence)
		}
		if prev != nil && e.PrevEntryHash != prev.EntryHash {
			t.Errorf("entry %d not linked to previous", i)
		}
		if e.CorrelationID != "corr-1" {
			t.Errorf("entry %d correlation id = %q", i, e.CorrelationID)
		}
		prev = e
	}
	if prev.Actor != "analyst" {
		t.Errorf("actor = %q", prev.Actor)
	}

	entries, err := l.History(ctx, "a1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(entries))
	}
	if entries[0].Actor != "system" {
		t.Errorf("default actor = %q, want system", entries[0].Actor)
	}
}

func TestLoggerRecordRejectsInvalid(t *testing.T) {
	l, _ := newTestLogger()
	ctx := context.Background()

	tests := []Record{
		{EventType: EventCreated},
		{AnomalyID: "a1", EventType: "deleted"},
	}
	for _, r := range tests {
		if _, err := l.Record(ctx, r); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Record(%+v) error = %v, want ErrInvalidEntry", r, err)
		}
	}
}

func TestHistoryDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CustodyEntry)
	}{
		{"details rewritten", func(e *CustodyEntry) { e.Details = "nothing happened" }},
		{"actor rewritten", func(e *CustodyEntry) { e.Actor = "someone-else" }},
		{"link broken", func(e *CustodyEntry) { e.PrevEntryHash = "00" }},
		{"sequence shifted", func(e *CustodyEntry) { e.Sequence = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store := newTestLogger()
			ctx := context.Background()
			for _, et := range []EventType{EventCreated, EventAccessed, EventExported} {
				if _, err := l.Record(ctx, Record{AnomalyID: "a1", EventType: et}); err != nil {
					t.Fatal(err)
				}
			}

			tamper(store, "a1", 1, tt.mutate)

			entries, err := l.History(ctx, "a1")
			if !errors.Is(err, ErrBrokenChain) {
				t.Fatalf("History() error = %v, want ErrBrokenChain", err)
			}
			if len(entries) != 3 {
				t.Errorf("History() should still return entries, got %d", len(entries))
			}
		})
	}
}

func TestLoggerCount(t *testing.T) {
	l, _ := newTestLogger()
	ctx := context.Background()
	for _, r := range []Record{
		{AnomalyID: "a1", EventType: EventCreated},
		{AnomalyID: "a2", EventType: EventCreated},
		{AnomalyID: "a1", EventType: EventIntegrityFailure},
	} {
		if _, err := l.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		eventType EventType
		want      int64
	}{
		{EventCreated, 2},
		{EventIntegrityFailure, 1},
		{EventExported, 0},
		{"", 3},
	}
	for _, tt := range tests {
		got, err := l.Count(ctx, tt.eventType)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.eventType, got, tt.want)
		}
	}
}

func TestMemoryStoreRejectsDuplicateSequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := &CustodyEntry{ID: "1", AnomalyID: "a1", Sequence: 0, EventType: EventCreated}
	if err := s.Append(ctx, e); err != nil {
		t.Fatal(err)
	}
	dup := &CustodyEntry{ID: "2", AnomalyID: "a1", Sequence: 0, EventType: EventAccessed}
	if err := s.Append(ctx, dup); !errors.Is(err, ErrDuplicateSeq) {
		t.Errorf("Append() error = %v, want ErrDuplicateSeq", err)
	}
	other := &CustodyEntry{ID: "3", AnomalyID: "a2", Sequence: 0, EventType: EventCreated}
	if err := s.Append(ctx, other); err != nil {
		t.Errorf("sequence 0 on another anomaly should be accepted: %v", err)
	}
}
