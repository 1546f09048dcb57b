// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

// BadgerLocker stores leases as BadgerDB entries with a TTL. The entry value
// is the owner token, so a release never deletes a lease that expired and
// was re-acquired by someone else.
type BadgerLocker struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerLocker opens a BadgerDB at path for leases.
func NewBadgerLocker(path string) (*BadgerLocker, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20 // leases are tiny
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for leases: %w", err)
	}
	return &BadgerLocker{db: db, ownsDB: true}, nil
}

// NewBadgerLockerFromDB uses an existing BadgerDB. Close leaves it open.
func NewBadgerLockerFromDB(db *badger.DB) *BadgerLocker {
	return &BadgerLocker{db: db}
}

// Acquire implements Locker. Lease expiry has one-second resolution.
func (b *BadgerLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	owner := newOwner()
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return ErrLeaseHeld
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(owner)).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrLeaseHeld
	}
	if err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}

	return &Lease{
		Key:       key,
		Owner:     owner,
		ExpiresAt: time.Now().Add(ttl),
		release: func(context.Context) error {
			return b.release(key, owner)
		},
	}, nil
}

func (b *BadgerLocker) release(key, owner string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(current) != owner {
			logging.Warn().Str("lease", key).Msg("Lease expired and was taken over before release")
			return nil
		}
		return txn.Delete([]byte(key))
	})
}

// RunGC reclaims space from released leases.
func (b *BadgerLocker) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the database if the locker opened it.
func (b *BadgerLocker) Close() error {
	if b.ownsDB && b.db != nil {
		return b.db.Close()
	}
	return nil
}

var _ Locker = (*BadgerLocker)(nil)
