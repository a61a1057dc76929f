// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package anonymizer

import (
	"context"
	"time"

	"github.com/tomtom215/studygate/internal/logging"
)

// Updater periodically reloads the VPN and Tor list files so exit-node
// rotations show up without a restart. It implements suture.Service and
// runs under the supervision tree.
type Updater struct {
	lookup   *Lookup
	vpnPath  string
	torPath  string
	interval time.Duration
}

// NewUpdater creates an updater for the given lookup and list paths.
// Empty paths are skipped. A non-positive interval falls back to hourly.
func NewUpdater(lookup *Lookup, vpnPath, torPath string, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Updater{
		lookup:   lookup,
		vpnPath:  vpnPath,
		torPath:  torPath,
		interval: interval,
	}
}

// Reload loads both list files once. A failed file is logged and left
// as-is; the previous set keeps serving.
func (u *Updater) Reload() {
	if u.vpnPath != "" {
		if _, err := u.lookup.LoadVPNFile(u.vpnPath); err != nil {
			logging.Error().Err(err).Str("path", u.vpnPath).Msg("VPN list reload failed")
		}
	}
	if u.torPath != "" {
		if _, err := u.lookup.LoadTorFile(u.torPath); err != nil {
			logging.Error().Err(err).Str("path", u.torPath).Msg("Tor list reload failed")
		}
	}
}

// Serve runs the periodic reload loop until the context is canceled.
func (u *Updater) Serve(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u.Reload()
		}
	}
}

// String identifies the service in supervisor logs.
func (u *Updater) String() string {
	return "anonymizer-updater"
}
