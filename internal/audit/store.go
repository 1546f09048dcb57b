// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package audit

import (
	"context"
	"sync"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]CustodyEntry
}

// NewMemoryStore creates a new in-memory custody store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]CustodyEntry)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *CustodyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[e.AnomalyID]
	for _, existing := range list {
		if existing.Sequence == e.Sequence {
			return ErrDuplicateSeq
		}
	}
	s.entries[e.AnomalyID] = append(list, *e)
	return nil
}

// ForAnomaly implements Store.
func (s *MemoryStore) ForAnomaly(_ context.Context, anomalyID string) ([]CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CustodyEntry(nil), s.entries[anomalyID]...), nil
}

// Last implements Store.
func (s *MemoryStore) Last(_ context.Context, anomalyID string) (*CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[anomalyID]
	if len(list) == 0 {
		return nil, nil
	}
	last := list[len(list)-1]
	return &last, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, eventType EventType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, list := range s.entries {
		for _, e := range list {
			if eventType == "" || e.EventType == eventType {
				n++
			}
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
