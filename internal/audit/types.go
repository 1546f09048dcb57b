// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package audit

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// EventType classifies a custody entry.
type EventType string

const (
	EventCreated          EventType = "created"
	EventModified         EventType = "modified"
	EventAccessed         EventType = "accessed"
	EventExported         EventType = "exported"
	EventIntegrityFailure EventType = "integrity_failure"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventModified, EventAccessed, EventExported, EventIntegrityFailure:
		return true
	}
	return false
}

// Errors returned by the custody log.
var (
	ErrInvalidEntry = errors.New("invalid custody entry")
	ErrBrokenChain  = errors.New("custody chain broken")
	ErrDuplicateSeq = errors.New("custody sequence already used")
)

// CustodyEntry is one append-only record for an anomaly.
type CustodyEntry struct {
	ID        string    `json:"id"`
	AnomalyID string    `json:"anomaly_id"`
	Sequence  int64     `json:"sequence"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	Purpose   string    `json:"purpose,omitempty"`

	// Evidence hashes before and after the event. Both equal the current
	// hash for accesses; HashBefore is empty on creation.
	HashBefore string `json:"hash_before,omitempty"`
	HashAfter  string `json:"hash_after,omitempty"`

	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	PrevEntryHash string `json:"prev_entry_hash,omitempty"`
	EntryHash     string `json:"entry_hash"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// ComputeHash returns the blake2b-256 hex digest over the entry's fields
// and its predecessor's hash.
func (e *CustodyEntry) ComputeHash() string {
	h, _ := blake2b.New256(nil)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(e.Sequence))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(e.Timestamp.UnixNano()))
	h.Write(buf[:])

	for _, field := range []string{
		e.ID, e.AnomalyID, string(e.EventType), e.Actor, e.Purpose,
		e.HashBefore, e.HashAfter, e.Details, e.PrevEntryHash,
	} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(field)))
		h.Write(buf[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store persists custody entries. It never updates or deletes.
type Store interface {
	// Append fails with ErrDuplicateSeq when the anomaly already has an
	// entry with the same sequence.
	Append(ctx context.Context, e *CustodyEntry) error

	// ForAnomaly returns entries in sequence order.
	ForAnomaly(ctx context.Context, anomalyID string) ([]CustodyEntry, error)

	// Last returns the newest entry for an anomaly, or nil.
	Last(ctx context.Context, anomalyID string) (*CustodyEntry, error)

	// Count returns the number of entries of the given type across all
	// anomalies. An empty type counts everything.
	Count(ctx context.Context, eventType EventType) (int64, error)
}

// VerifyChain checks sequence numbering and hash links of entries ordered
// by sequence.
func VerifyChain(entries []CustodyEntry) error {
	prev := ""
	for i := range entries {
		e := &entries[i]
		if e.Sequence != int64(i) {
			return fmt.Errorf("%w: sequence gap at entry %s", ErrBrokenChain, e.ID)
		}
		if e.PrevEntryHash != prev {
			return fmt.Errorf("%w: link mismatch at entry %s", ErrBrokenChain, e.ID)
		}
		if e.ComputeHash() != e.EntryHash {
			return fmt.Errorf("%w: hash mismatch at entry %s", ErrBrokenChain, e.ID)
		}
		prev = e.EntryHash
	}
	return nil
}
