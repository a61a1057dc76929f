// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/studygate/internal/metrics"
	"github.com/tomtom215/studygate/internal/store"
)

// QuarantineRecord describes an active quarantine. A record exists only
// while the quarantine is in force; the store's TTL releases it.
type QuarantineRecord struct {
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Quarantine isolates a user for the given duration. An existing record
// is replaced, which restarts the clock.
func (r *Registry) Quarantine(ctx context.Context, userID, reason string, d time.Duration) error {
	now := time.Now().UTC()
	record := QuarantineRecord{
		UserID:        userID,
		Reason:        reason,
		QuarantinedAt: now,
		ExpiresAt:     now.Add(d),
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode quarantine record: %w", err)
	}
	if err := r.store.Set(ctx, quarantineKey(userID), raw, d); err != nil {
		return fmt.Errorf("quarantine user: %w", err)
	}

	metrics.RegistryOps.WithLabelValues("quarantine").Inc()
	metrics.QuarantinedUsers.Inc()
	return nil
}

// QuarantineRecord returns the user's active quarantine record, or
// found=false when the user is not quarantined. Store failures propagate
// so the engine fails closed rather than missing an active quarantine.
func (r *Registry) QuarantineRecord(ctx context.Context, userID string) (QuarantineRecord, bool, error) {
	raw, err := r.store.Get(ctx, quarantineKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return QuarantineRecord{}, false, nil
	}
	if err != nil {
		return QuarantineRecord{}, false, fmt.Errorf("quarantine lookup: %w", err)
	}

	var record QuarantineRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		// Unreadable record: the user was quarantined by someone; keep
		// the isolation rather than failing open on a decode bug.
		return QuarantineRecord{UserID: userID, Reason: "unreadable record"}, true, nil
	}
	return record, true, nil
}

// Release lifts a quarantine before its TTL expires. Releasing a user
// who is not quarantined is not an error.
func (r *Registry) Release(ctx context.Context, userID string) error {
	_, found, err := r.QuarantineRecord(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := r.store.Delete(ctx, quarantineKey(userID)); err != nil {
		return fmt.Errorf("release quarantine: %w", err)
	}
	metrics.RegistryOps.WithLabelValues("release").Inc()
	metrics.QuarantinedUsers.Dec()
	return nil
}

// ListQuarantined returns all active quarantine records sorted by user.
func (r *Registry) ListQuarantined(ctx context.Context) ([]QuarantineRecord, error) {
	keys, err := r.store.Keys(ctx, "quarantine:")
	if err != nil {
		return nil, fmt.Errorf("list quarantined: %w", err)
	}

	records := make([]QuarantineRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue // expired between Keys and Get
		}
		if err != nil {
			return nil, fmt.Errorf("list quarantined: %w", err)
		}

		var record QuarantineRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records, nil
}
