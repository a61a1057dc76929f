// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package supervisor

import (
	"context"
	"time"

	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/store"
)

// Janitor periodically reclaims expired store entries. The memory
// backend needs sweeps to bound growth; Badger needs value-log GC.
// Either way expired keys are already invisible to readers, so the
// janitor only affects footprint, never correctness.
type Janitor struct {
	store    store.Store
	interval time.Duration
}

// NewJanitor creates the janitor service. A non-positive interval
// falls back to five minutes.
func NewJanitor(s store.Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{store: s, interval: interval}
}

// Serve implements suture.Service.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.collect()
		}
	}
}

func (j *Janitor) collect() {
	switch s := j.store.(type) {
	case *store.MemoryStore:
		if removed := s.Sweep(); removed > 0 {
			logging.Debug().Int("removed", removed).Msg("Swept expired store entries")
		}
	case *store.BadgerStore:
		if err := s.RunGC(); err != nil {
			logging.Debug().Err(err).Msg("Badger value log GC failed")
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (j *Janitor) String() string {
	return "store-janitor"
}
