// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package registry persists per-user trust state: known devices, known
// locations, cached behavior baselines, and quarantine records. All
// state lives in the shared store under TTL-bounded keys, so trust
// decays on its own when evidence stops being refreshed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/studygate/internal/behavior"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/metrics"
	"github.com/tomtom215/studygate/internal/store"
)

// Options bound the registry's TTLs and list sizes.
type Options struct {
	DeviceTTL         time.Duration
	LocationTTL       time.Duration
	MaxKnownLocations int
	BaselineTTL       time.Duration
}

// DefaultOptions mirror the engine's stock trust windows: devices stay
// trusted 30 days, locations 7, baselines are re-derived hourly.
func DefaultOptions() Options {
	return Options{
		DeviceTTL:         30 * 24 * time.Hour,
		LocationTTL:       7 * 24 * time.Hour,
		MaxKnownLocations: 10,
		BaselineTTL:       time.Hour,
	}
}

// Registry is the store-backed trust registry.
type Registry struct {
	store store.Store
	opts  Options
}

// New creates a registry over the shared store.
func New(s store.Store, opts Options) *Registry {
	if opts.MaxKnownLocations < 1 {
		opts.MaxKnownLocations = DefaultOptions().MaxKnownLocations
	}
	return &Registry{store: s, opts: opts}
}

func deviceKey(userID, fingerprint string) string {
	return "device:" + userID + ":" + fingerprint
}

func locationsKey(userID string) string {
	return "locations:" + userID
}

func baselineKey(userID string) string {
	return "baseline:" + userID
}

func quarantineKey(userID string) string {
	return "quarantine:" + userID
}

// IsKnownDevice reports whether the fingerprint is registered for the
// user. Store failures propagate so the engine can fail closed.
func (r *Registry) IsKnownDevice(ctx context.Context, userID, fingerprint string) (bool, error) {
	_, err := r.store.Get(ctx, deviceKey(userID, fingerprint))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("known device lookup: %w", err)
	}
	return true, nil
}

// RegisterDevice marks the fingerprint trusted for the user. Re-registering
// an already-known device is idempotent and refreshes the TTL.
func (r *Registry) RegisterDevice(ctx context.Context, userID, fingerprint string) error {
	value, _ := json.Marshal(map[string]int64{"registered_at": time.Now().Unix()})
	if err := r.store.Set(ctx, deviceKey(userID, fingerprint), value, r.opts.DeviceTTL); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	metrics.RegistryOps.WithLabelValues("register_device").Inc()
	return nil
}

// KnownLocations returns the user's known-location list, most recent
// last. A user with no history gets an empty list.
func (r *Registry) KnownLocations(ctx context.Context, userID string) ([]geo.Place, error) {
	raw, err := r.store.Get(ctx, locationsKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("known locations lookup: %w", err)
	}

	var places []geo.Place
	if err := json.Unmarshal(raw, &places); err != nil {
		// A corrupt list is unreadable history, not a store outage;
		// treat it as cold start and let the next write replace it.
		return nil, nil
	}
	return places, nil
}

// IsKnownLocation reports whether the place matches a known location
// exactly on {country, city}.
func (r *Registry) IsKnownLocation(ctx context.Context, userID string, place geo.Place) (bool, error) {
	places, err := r.KnownLocations(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, known := range places {
		if known.Country == place.Country && known.City == place.City {
			return true, nil
		}
	}
	return false, nil
}

// RegisterLocation appends the place to the user's known-location list.
// Duplicates are dropped, the list keeps only the most recent entries up
// to the cap, and every write restarts the list-level TTL.
func (r *Registry) RegisterLocation(ctx context.Context, userID string, place geo.Place) error {
	if place.IsZero() {
		return nil
	}

	places, err := r.KnownLocations(ctx, userID)
	if err != nil {
		return err
	}

	for _, known := range places {
		if known.Country == place.Country && known.City == place.City {
			return nil
		}
	}

	places = append(places, place)
	if len(places) > r.opts.MaxKnownLocations {
		places = places[len(places)-r.opts.MaxKnownLocations:]
	}

	raw, err := json.Marshal(places)
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	if err := r.store.Set(ctx, locationsKey(userID), raw, r.opts.LocationTTL); err != nil {
		return fmt.Errorf("register location: %w", err)
	}
	metrics.RegistryOps.WithLabelValues("register_location").Inc()
	return nil
}

// Baseline returns the user's behavior baseline. Users without a cached
// baseline get the default profile, which is written back so repeated
// evaluations within the TTL share one read.
func (r *Registry) Baseline(ctx context.Context, userID string) (behavior.Baseline, error) {
	raw, err := r.store.Get(ctx, baselineKey(userID))
	if err == nil {
		var b behavior.Baseline
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return behavior.Baseline{}, fmt.Errorf("baseline lookup: %w", err)
	}

	b := behavior.DefaultBaseline()
	if raw, err := json.Marshal(b); err == nil {
		// Cache-fill failure is not fatal; the default still serves.
		_ = r.store.Set(ctx, baselineKey(userID), raw, r.opts.BaselineTTL)
	}
	return b, nil
}

// StoreBaseline replaces the user's cached baseline.
func (r *Registry) StoreBaseline(ctx context.Context, userID string, b behavior.Baseline) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	if err := r.store.Set(ctx, baselineKey(userID), raw, r.opts.BaselineTTL); err != nil {
		return fmt.Errorf("store baseline: %w", err)
	}
	return nil
}
