// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/studygate/internal/behavior"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/store"
)

func newTestRegistry() (*Registry, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return New(s, DefaultOptions()), s
}

func TestIsKnownDeviceUnregistered(t *testing.T) {
	r, _ := newTestRegistry()

	known, err := r.IsKnownDevice(context.Background(), "u1", "fp1")
	if err != nil {
		t.Fatalf("IsKnownDevice: %v", err)
	}
	if known {
		t.Error("unregistered device reported as known")
	}
}

func TestRegisterDeviceThenKnown(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.RegisterDevice(ctx, "u1", "fp1"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	known, err := r.IsKnownDevice(ctx, "u1", "fp1")
	if err != nil {
		t.Fatalf("IsKnownDevice: %v", err)
	}
	if !known {
		t.Error("registered device not known")
	}

	// Same fingerprint for a different user stays unknown.
	known, err = r.IsKnownDevice(ctx, "u2", "fp1")
	if err != nil {
		t.Fatalf("IsKnownDevice: %v", err)
	}
	if known {
		t.Error("device known for wrong user")
	}
}

func TestRegisterDeviceIdempotentRefresh(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(s, DefaultOptions())
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := r.RegisterDevice(ctx, "u1", "fp1"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	// Re-register 20 days in; the 30-day TTL restarts.
	now = now.Add(20 * 24 * time.Hour)
	if err := r.RegisterDevice(ctx, "u1", "fp1"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	// 25 more days: past the original expiry, inside the refreshed one.
	now = now.Add(25 * 24 * time.Hour)
	known, err := r.IsKnownDevice(ctx, "u1", "fp1")
	if err != nil {
		t.Fatalf("IsKnownDevice: %v", err)
	}
	if !known {
		t.Error("TTL not refreshed on re-registration")
	}
}

func TestKnownLocationsColdStart(t *testing.T) {
	r, _ := newTestRegistry()

	places, err := r.KnownLocations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("KnownLocations: %v", err)
	}
	if len(places) != 0 {
		t.Errorf("cold start list = %v, want empty", places)
	}
}

func TestRegisterLocationDedupe(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	seoul := geo.Place{Country: "KR", City: "Seoul"}

	for i := 0; i < 3; i++ {
		if err := r.RegisterLocation(ctx, "u1", seoul); err != nil {
			t.Fatalf("RegisterLocation: %v", err)
		}
	}

	places, err := r.KnownLocations(ctx, "u1")
	if err != nil {
		t.Fatalf("KnownLocations: %v", err)
	}
	if len(places) != 1 {
		t.Errorf("list = %v, want single deduped entry", places)
	}
}

func TestRegisterLocationCapEvictsOldest(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		place := geo.Place{Country: "KR", City: fmt.Sprintf("city-%02d", i)}
		if err := r.RegisterLocation(ctx, "u1", place); err != nil {
			t.Fatalf("RegisterLocation %d: %v", i, err)
		}
	}

	places, err := r.KnownLocations(ctx, "u1")
	if err != nil {
		t.Fatalf("KnownLocations: %v", err)
	}
	if len(places) != 10 {
		t.Fatalf("list length = %d, want 10", len(places))
	}
	if places[0].City != "city-05" || places[9].City != "city-14" {
		t.Errorf("kept %s..%s, want the 10 most recent (city-05..city-14)",
			places[0].City, places[9].City)
	}
}

func TestRegisterLocationSkipsUnresolved(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.RegisterLocation(ctx, "u1", geo.Place{}); err != nil {
		t.Fatalf("RegisterLocation: %v", err)
	}
	places, _ := r.KnownLocations(ctx, "u1")
	if len(places) != 0 {
		t.Errorf("unresolved place stored: %v", places)
	}
}

func TestIsKnownLocation(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	seoul := geo.Place{Country: "KR", City: "Seoul"}

	if err := r.RegisterLocation(ctx, "u1", seoul); err != nil {
		t.Fatalf("RegisterLocation: %v", err)
	}

	known, err := r.IsKnownLocation(ctx, "u1", seoul)
	if err != nil {
		t.Fatalf("IsKnownLocation: %v", err)
	}
	if !known {
		t.Error("registered location not known")
	}

	known, err = r.IsKnownLocation(ctx, "u1", geo.Place{Country: "KR", City: "Busan"})
	if err != nil {
		t.Fatalf("IsKnownLocation: %v", err)
	}
	if known {
		t.Error("unregistered city reported known")
	}
}

func TestBaselineDefaultsAndCaches(t *testing.T) {
	r, s := newTestRegistry()
	ctx := context.Background()

	b, err := r.Baseline(ctx, "u1")
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if b.LoginRate != behavior.DefaultBaseline().LoginRate {
		t.Errorf("LoginRate = %v, want default", b.LoginRate)
	}

	// The default was cache-filled.
	if _, err := s.Get(ctx, "baseline:u1"); err != nil {
		t.Errorf("baseline not cached: %v", err)
	}
}

func TestStoreBaselineRoundTrip(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	custom := behavior.DefaultBaseline()
	custom.LoginRate = 7.5
	if err := r.StoreBaseline(ctx, "u1", custom); err != nil {
		t.Fatalf("StoreBaseline: %v", err)
	}

	b, err := r.Baseline(ctx, "u1")
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if b.LoginRate != 7.5 {
		t.Errorf("LoginRate = %v, want 7.5", b.LoginRate)
	}
}

func TestQuarantineLifecycle(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	_, found, err := r.QuarantineRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("QuarantineRecord: %v", err)
	}
	if found {
		t.Fatal("record found before quarantine")
	}

	if err := r.Quarantine(ctx, "u1", "credential stuffing", 24*time.Hour); err != nil {
		t.Fatalf("Quarantine: %v", err)
	}

	record, found, err := r.QuarantineRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("QuarantineRecord: %v", err)
	}
	if !found {
		t.Fatal("active quarantine not found")
	}
	if record.Reason != "credential stuffing" {
		t.Errorf("Reason = %q", record.Reason)
	}
	if !record.ExpiresAt.After(record.QuarantinedAt) {
		t.Error("ExpiresAt not after QuarantinedAt")
	}

	if err := r.Release(ctx, "u1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	_, found, err = r.QuarantineRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("QuarantineRecord: %v", err)
	}
	if found {
		t.Error("record survives release")
	}

	// Releasing again is a no-op.
	if err := r.Release(ctx, "u1"); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestQuarantineExpires(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(s, DefaultOptions())
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := r.Quarantine(ctx, "u1", "flood", time.Hour); err != nil {
		t.Fatalf("Quarantine: %v", err)
	}

	now = now.Add(2 * time.Hour)
	_, found, err := r.QuarantineRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("QuarantineRecord: %v", err)
	}
	if found {
		t.Error("quarantine outlived its duration")
	}
}

func TestListQuarantined(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	_ = r.Quarantine(ctx, "u2", "flood", time.Hour)
	_ = r.Quarantine(ctx, "u1", "brute force", time.Hour)

	records, err := r.ListQuarantined(ctx)
	if err != nil {
		t.Fatalf("ListQuarantined: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].UserID != "u1" || records[1].UserID != "u2" {
		t.Errorf("records not sorted by user: %v", records)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	r := New(failingStore{}, DefaultOptions())
	ctx := context.Background()

	if _, err := r.IsKnownDevice(ctx, "u1", "fp1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("IsKnownDevice err = %v, want ErrUnavailable", err)
	}
	if _, _, err := r.QuarantineRecord(ctx, "u1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("QuarantineRecord err = %v, want ErrUnavailable", err)
	}
	if _, err := r.KnownLocations(ctx, "u1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("KnownLocations err = %v, want ErrUnavailable", err)
	}
}

// failingStore returns ErrUnavailable for every operation.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, store.ErrUnavailable
}

func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return store.ErrUnavailable
}

func (failingStore) Delete(ctx context.Context, key string) error { return store.ErrUnavailable }

func (failingStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}

func (failingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, store.ErrUnavailable
}

func (failingStore) Close() error { return nil }
