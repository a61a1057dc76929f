// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package store provides the shared TTL-capable key/value store that backs
// all mutable engine state: the trust registry, quarantine records, behavior
// baseline cache, and rate-window counters.
//
// Every component takes a Store as a constructor dependency; there is no
// process-global state. Two implementations are provided: MemoryStore for
// single-instance deployments and tests, and BadgerStore for durable storage
// across restarts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers on the evaluation hot path treat this as fatal for the current
// evaluation and fail closed.
var ErrUnavailable = errors.New("store: backend unavailable")

// Store is a TTL-capable key/value store with an atomic counter primitive.
type Store interface {
	// Get retrieves the value at key. Returns ErrNotFound for missing or
	// expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A ttl of zero means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the entry at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds one to the integer counter at key and
	// returns the new value. The ttl is applied when the counter is created
	// and is NOT refreshed by later increments, so a counter never outlives
	// the window that created it. Increment-and-read is one atomic step.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Keys returns all live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
