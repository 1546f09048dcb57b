// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultListLimit = 100

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    map[string]*Alert
	byAnomaly map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:    make(map[string]*Alert),
		byAnomaly: make(map[string]string),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAnomaly[a.AnomalyID]; ok {
		return ErrAlreadyExists
	}
	c := *a
	s.alerts[a.ID] = &c
	s.byAnomaly[a.AnomalyID] = a.ID
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

// GetByAnomaly implements Store.
func (s *MemoryStore) GetByAnomaly(ctx context.Context, anomalyID string) (*Alert, error) {
	s.mu.RLock()
	id, ok := s.byAnomaly[anomalyID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Alert
	for _, a := range s.alerts {
		if f.Status == "" || a.Status == f.Status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateReview implements Store.
func (s *MemoryStore) UpdateReview(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = a.Status
	cur.IsFalsePositive = a.IsFalsePositive
	cur.DismissReason = a.DismissReason
	cur.AcknowledgedAt = a.AcknowledgedAt
	cur.AcknowledgedBy = a.AcknowledgedBy
	cur.DismissedAt = a.DismissedAt
	cur.DismissedBy = a.DismissedBy
	return nil
}

// FalsePositiveAnomalyIDs implements Store.
func (s *MemoryStore) FalsePositiveAnomalyIDs(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, a := range s.alerts {
		if a.IsFalsePositive && a.DismissedAt != nil && a.DismissedAt.Before(before) {
			out = append(out, a.AnomalyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
