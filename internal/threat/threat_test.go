// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package threat

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/studygate/internal/config"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/store"
)

func newTestDetectors(buf *bytes.Buffer) (*Detectors, *store.MemoryStore) {
	s := store.NewMemoryStore()
	security := logging.NewSecurityLoggerWithLogger(logging.NewTestLogger(buf))
	return New(s, config.Default().Threat, security), s
}

func TestBruteForceAdmitsExactlyThreshold(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		decision, err := d.CheckBruteForce(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("check %d rejected, want allowed through threshold", i)
		}
		if decision.Count != i {
			t.Errorf("check %d count = %d, want %d", i, decision.Count, i)
		}
	}

	// The 11th attempt in the window is rejected.
	decision, err := d.CheckBruteForce(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("11th check: %v", err)
	}
	if decision.Allowed {
		t.Error("11th attempt allowed, want rejected")
	}
	if decision.Count != 11 {
		t.Errorf("11th count = %d, want 11", decision.Count)
	}
	if decision.RetryAfter <= 0 {
		t.Error("rejected decision missing RetryAfter")
	}
	if !strings.Contains(buf.String(), "brute_force") {
		t.Errorf("threat not logged: %s", buf.String())
	}
}

func TestDetectorsIsolateSubjects(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := d.CheckBruteForce(ctx, "203.0.113.7"); err != nil {
			t.Fatalf("check: %v", err)
		}
	}

	decision, err := d.CheckBruteForce(ctx, "198.51.100.9")
	if err != nil {
		t.Fatalf("check other ip: %v", err)
	}
	if !decision.Allowed || decision.Count != 1 {
		t.Errorf("other ip decision = %+v, want fresh counter", decision)
	}
}

func TestDetectorsIsolateFromEachOther(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	// Same subject string on different detectors uses separate counters.
	if _, err := d.CheckBruteForce(ctx, "subject"); err != nil {
		t.Fatalf("brute force: %v", err)
	}
	decision, err := d.CheckEnumeration(ctx, "subject")
	if err != nil {
		t.Fatalf("enumeration: %v", err)
	}
	if decision.Count != 1 {
		t.Errorf("enumeration count = %d, want 1", decision.Count)
	}
}

func TestEnumerationThreshold(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	var last Decision
	for i := 0; i < 21; i++ {
		var err error
		last, err = d.CheckEnumeration(ctx, "user-1")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
	if last.Allowed {
		t.Error("21st API call allowed, want rejected at threshold 20")
	}
}

func TestFloodThreshold(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	var rejected int
	for i := 0; i < 105; i++ {
		decision, err := d.CheckFlood(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			rejected++
		}
	}
	if rejected != 5 {
		t.Errorf("rejected = %d, want 5 of 105 at threshold 100", rejected)
	}
}

func TestConcurrentChecksNeverExceedThreshold(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDetectors(&buf)
	ctx := context.Background()

	const attempts = 40
	var allowed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := d.CheckBruteForce(ctx, "203.0.113.7")
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Errorf("allowed = %d, want exactly 10 under concurrency", got)
	}
}

func TestCheckStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	security := logging.NewSecurityLoggerWithLogger(logging.NewTestLogger(&buf))
	d := New(unavailableStore{}, config.Default().Threat, security)

	if _, err := d.CheckFlood(context.Background(), "203.0.113.7"); err == nil {
		t.Error("CheckFlood on failing store = nil, want error")
	}
}

type unavailableStore struct{}

func (unavailableStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return store.ErrUnavailable
}

func (unavailableStore) Delete(ctx context.Context, key string) error { return store.ErrUnavailable }

func (unavailableStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}

func (unavailableStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) Close() error { return nil }
