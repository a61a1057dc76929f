// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing key = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Still live just before expiry.
	s.SetClock(func() time.Time { return now.Add(59 * time.Second) })
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// Gone after expiry.
	s.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreIncrementMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, err := s.Increment(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
		if count != i {
			t.Errorf("Increment %d = %d, want %d", i, count, i)
		}
	}
}

func TestMemoryStoreIncrementTTLNotRefreshed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if _, err := s.Increment(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	// Incrementing near the end of the window must not extend it.
	s.SetClock(func() time.Time { return now.Add(55 * time.Second) })
	if _, err := s.Increment(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	s.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	count, err := s.Increment(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("Increment after window: %v", err)
	}
	if count != 1 {
		t.Errorf("counter outlived its window: got %d, want 1", count)
	}
}

func TestMemoryStoreIncrementConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.Increment(ctx, "counter", time.Minute); err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	count, err := s.Increment(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("final Increment: %v", err)
	}
	if want := int64(workers*perWorker + 1); count != want {
		t.Errorf("undercount under concurrency: got %d, want %d", count, want)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	_ = s.Set(ctx, "live", []byte("v"), time.Hour)
	_ = s.Set(ctx, "dead1", []byte("v"), time.Second)
	_ = s.Set(ctx, "dead2", []byte("v"), time.Second)

	s.SetClock(func() time.Time { return now.Add(2 * time.Second) })

	if removed := s.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", s.Len())
	}
}

func TestMemoryStoreKeysPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "quarantine:u1", []byte("{}"), 0)
	_ = s.Set(ctx, "quarantine:u2", []byte("{}"), 0)
	_ = s.Set(ctx, "device:u1:f1", []byte("1"), 0)

	keys, err := s.Keys(ctx, "quarantine:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys = %v, want 2 quarantine keys", keys)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "absent"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}
