// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLeaseHeld is returned when another owner holds an unexpired lease.
var ErrLeaseHeld = errors.New("lease held by another owner")

// Locker hands out exclusive, expiring leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is an exclusive claim on a key until ExpiresAt or Release.
type Lease struct {
	Key       string
	Owner     string
	ExpiresAt time.Time

	release func(ctx context.Context) error
	once    sync.Once
	err     error
}

// Release gives the lease up. Releasing twice is a no-op, and releasing a
// lease that has already expired and been taken by another owner leaves the
// new owner's lease in place.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		if l.release != nil {
			l.err = l.release(ctx)
		}
	})
	return l.err
}

func leaseKey(jobID string) string {
	return "job_lease:" + jobID
}

func newOwner() string {
	return uuid.New().String()
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease), now: time.Now}
}

// Acquire implements Locker.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, ErrLeaseHeld
	}

	owner := newOwner()
	expires := now.Add(ttl)
	m.leases[key] = memoryLease{owner: owner, expiresAt: expires}

	return &Lease{
		Key:       key,
		Owner:     owner,
		ExpiresAt: expires,
		release: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if held, ok := m.leases[key]; ok && held.owner == owner {
				delete(m.leases, key)
			}
			return nil
		},
	}, nil
}

var _ Locker = (*MemoryLocker)(nil)
