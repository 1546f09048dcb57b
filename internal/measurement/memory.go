// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package measurement

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local demos.
type MemoryStore struct {
	mu        sync.RWMutex
	devices   map[string]Device
	positions map[string][]PositionObservation
	signals   map[string][]SignalObservation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:   make(map[string]Device),
		positions: make(map[string][]PositionObservation),
		signals:   make(map[string][]SignalObservation),
	}
}

// AddDevice registers or replaces a device.
func (s *MemoryStore) AddDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
}

// AddPositions appends fixes, registering unknown devices on the fly and
// extending their first/last seen span.
func (s *MemoryStore) AddPositions(obs ...PositionObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		s.positions[o.DeviceID] = append(s.positions[o.DeviceID], o)
		s.touchLocked(o.DeviceID, o.ObservedAt)
	}
	for id := range s.positions {
		list := s.positions[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].ObservedAt.Before(list[j].ObservedAt) })
	}
}

// AddSignals appends signal readings.
func (s *MemoryStore) AddSignals(obs ...SignalObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		s.signals[o.DeviceID] = append(s.signals[o.DeviceID], o)
		s.touchLocked(o.DeviceID, o.ObservedAt)
	}
	for id := range s.signals {
		list := s.signals[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].ObservedAt.Before(list[j].ObservedAt) })
	}
}

func (s *MemoryStore) touchLocked(id string, at time.Time) {
	d, ok := s.devices[id]
	if !ok {
		d = Device{ID: id, FirstSeen: at, LastSeen: at}
	}
	if d.FirstSeen.IsZero() || at.Before(d.FirstSeen) {
		d.FirstSeen = at
	}
	if at.After(d.LastSeen) {
		d.LastSeen = at
	}
	d.TotalReadings++
	s.devices[id] = d
}

// Positions implements Reader.
func (s *MemoryStore) Positions(_ context.Context, deviceID string, from, to time.Time) ([]PositionObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterPositions(s.positions[deviceID], from, to), nil
}

// PositionsInWindow implements Reader.
func (s *MemoryStore) PositionsInWindow(_ context.Context, from, to time.Time, deviceIDs []string) (map[string][]PositionObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := deviceIDs
	if len(ids) == 0 {
		ids = make([]string, 0, len(s.positions))
		for id := range s.positions {
			ids = append(ids, id)
		}
	}

	out := make(map[string][]PositionObservation, len(ids))
	for _, id := range ids {
		if fixes := filterPositions(s.positions[id], from, to); len(fixes) > 0 {
			out[id] = fixes
		}
	}
	return out, nil
}

// Signals implements Reader.
func (s *MemoryStore) Signals(_ context.Context, deviceID string, from, to time.Time) ([]SignalObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SignalObservation
	for _, o := range s.signals[deviceID] {
		if !o.ObservedAt.Before(from) && !o.ObservedAt.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Device implements Registry.
func (s *MemoryStore) Device(_ context.Context, id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// DevicesSeen implements Registry.
func (s *MemoryStore) DevicesSeen(_ context.Context, from, to time.Time) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Device
	for _, d := range s.devices {
		if !d.LastSeen.Before(from) && !d.FirstSeen.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GovernmentCandidates implements Registry.
func (s *MemoryStore) GovernmentCandidates(_ context.Context, minLikelihood float64) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Device
	for _, d := range s.devices {
		if d.GovernmentLikelihood >= minLikelihood && d.GovernmentLikelihood > 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Metadata implements Registry.
func (s *MemoryStore) Metadata(_ context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, nil
	}
	return metadataFields(d.Name, d.Comment), nil
}

func filterPositions(list []PositionObservation, from, to time.Time) []PositionObservation {
	var out []PositionObservation
	for _, o := range list {
		if o.ObservedAt.Before(from) || o.ObservedAt.After(to) || !usable(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func metadataFields(fields ...string) []string {
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
