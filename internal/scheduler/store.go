// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements JobStore in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*DetectionJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*DetectionJob)}
}

// Create implements JobStore.
func (s *MemoryStore) Create(_ context.Context, j *DetectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Name == j.Name {
			return ErrJobAlreadyExists
		}
	}
	if _, ok := s.jobs[j.ID]; ok {
		return ErrJobAlreadyExists
	}
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

// Get implements JobStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*DetectionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

// GetByName implements JobStore.
func (s *MemoryStore) GetByName(_ context.Context, name string) (*DetectionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.Name == name {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

// List implements JobStore. Jobs are ordered by name.
func (s *MemoryStore) List(_ context.Context) ([]DetectionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DetectionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// Update implements JobStore.
func (s *MemoryStore) Update(_ context.Context, j *DetectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func cloneJob(j *DetectionJob) *DetectionJob {
	c := *j
	c.TargetDevices = append([]string{}, j.TargetDevices...)
	c.LastRunStart = cloneTime(j.LastRunStart)
	c.LastRunEnd = cloneTime(j.LastRunEnd)
	c.NextRunAt = cloneTime(j.NextRunAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ JobStore = (*MemoryStore)(nil)
