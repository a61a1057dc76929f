// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// incrementRetries bounds the conflict-retry loop for counter updates.
// Badger aborts one of two conflicting transactions on the same key; a
// handful of retries is enough even under heavy per-subject bursts.
const incrementRetries = 8

// BadgerStore is a Store implementation backed by BadgerDB.
// Badger expires entries natively via per-entry TTL, which matches the
// registry and counter semantics without a custom sweeper.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a store on top of an opened badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a badger database at path and wraps it.
// Badger's own verbose logger is disabled; operational errors still surface
// through the Store interface.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get retrieves the value at key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// Set stores value at key with the given ttl.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the entry at key.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Increment atomically adds one to the counter at key inside a single
// transaction. The remaining TTL is carried over so the counter keeps its
// original window. Conflicting transactions are retried.
func (s *BadgerStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64

	for attempt := 0; attempt < incrementRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				count = 1
				entry := badger.NewEntry([]byte(key), []byte("1"))
				if ttl > 0 {
					entry = entry.WithTTL(ttl)
				}
				return txn.SetEntry(entry)
			}
			if err != nil {
				return err
			}

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			parsed, _ := strconv.ParseInt(string(value), 10, 64)
			count = parsed + 1

			entry := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(count, 10)))
			if expires := item.ExpiresAt(); expires > 0 {
				remaining := time.Until(time.Unix(int64(expires), 0))
				if remaining <= 0 {
					// Window just lapsed between read and write; start fresh.
					count = 1
					entry = badger.NewEntry([]byte(key), []byte("1"))
					remaining = ttl
				}
				if remaining > 0 {
					entry = entry.WithTTL(remaining)
				}
			}
			return txn.SetEntry(entry)
		})

		if err == nil {
			return count, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return 0, fmt.Errorf("%w: increment conflict on %s", ErrUnavailable, key)
}

// Keys returns all live keys with the given prefix.
func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}

// RunGC runs one badger value-log garbage collection cycle.
// Called by the janitor service; a no-rewrite result is not an error.
func (s *BadgerStore) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
