// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package anomaly

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*SurveillanceAnomaly
	byDedup map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*SurveillanceAnomaly),
		byDedup: make(map[string]string),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, a *SurveillanceAnomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDedup[a.DedupeKey]; ok {
		return ErrAlreadyExists
	}
	c := clone(a)
	s.byID[a.ID] = c
	s.byDedup[a.DedupeKey] = a.ID
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*SurveillanceAnomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

// GetByDedupeKey implements Store.
func (s *MemoryStore) GetByDedupeKey(_ context.Context, key string) (*SurveillanceAnomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDedup[key]
	if !ok {
		return nil, nil
	}
	return clone(s.byID[id]), nil
}

// UpdateReview implements Store.
func (s *MemoryStore) UpdateReview(_ context.Context, a *SurveillanceAnomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = a.Status
	cur.Strength = a.Strength
	cur.ReviewedBy = a.ReviewedBy
	cur.ReviewNotes = a.ReviewNotes
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]SurveillanceAnomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SurveillanceAnomaly
	for _, a := range s.byID {
		if matches(a, f) {
			out = append(out, *clone(a))
		}
	}
	sortAnomalies(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ForDevices implements Store.
func (s *MemoryStore) ForDevices(_ context.Context, deviceIDs []string) ([]SurveillanceAnomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SurveillanceAnomaly
	for _, a := range s.byID {
		if involvesAny(a, deviceIDs) {
			out = append(out, *clone(a))
		}
	}
	sortAnomalies(out)
	return out, nil
}

func matches(a *SurveillanceAnomaly, f Filter) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if !f.CreatedBefore.IsZero() && !a.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func involvesAny(a *SurveillanceAnomaly, deviceIDs []string) bool {
	for _, id := range deviceIDs {
		if a.Involves(id) {
			return true
		}
	}
	return false
}

func sortAnomalies(list []SurveillanceAnomaly) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func clone(a *SurveillanceAnomaly) *SurveillanceAnomaly {
	c := *a
	c.RelatedDevices = append([]string(nil), a.RelatedDevices...)
	c.Locations = append(c.Locations[:0:0], a.Locations...)
	c.Evidence = append([]byte(nil), a.Evidence...)
	return &c
}

var _ Store = (*MemoryStore)(nil)
