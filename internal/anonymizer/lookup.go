// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package anonymizer detects requests arriving through anonymizing
// infrastructure (commercial VPN exits, Tor exit nodes). Lookups are
// exact-IP set membership, O(1) on the request hot path; list files are
// loaded at startup and refreshed periodically by the Updater.
package anonymizer

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/tomtom215/studygate/internal/logging"
)

// Result describes what kind of anonymizing infrastructure an address
// belongs to, if any.
type Result struct {
	IsVPN bool
	IsTor bool

	// Private marks RFC 1918, loopback, and link-local addresses. These
	// are never classified as VPN or Tor regardless of list contents.
	Private bool
}

// Lookup holds the VPN and Tor exit-node address sets.
type Lookup struct {
	mu  sync.RWMutex
	vpn map[netip.Addr]struct{}
	tor map[netip.Addr]struct{}
}

// NewLookup creates an empty lookup. Until lists are loaded every
// address resolves as neither VPN nor Tor.
func NewLookup() *Lookup {
	return &Lookup{
		vpn: make(map[netip.Addr]struct{}),
		tor: make(map[netip.Addr]struct{}),
	}
}

// Check classifies an IP address string. Unparseable addresses return
// the zero Result: evidence extraction treats them as ordinary traffic
// rather than failing the request.
func (l *Lookup) Check(ipStr string) Result {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return Result{}
	}

	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return Result{Private: true}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	_, isVPN := l.vpn[addr]
	_, isTor := l.tor[addr]
	return Result{IsVPN: isVPN, IsTor: isTor}
}

// Counts returns the current VPN and Tor set sizes.
func (l *Lookup) Counts() (vpn, tor int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.vpn), len(l.tor)
}

// LoadVPNFile replaces the VPN set from a newline-delimited IP list.
func (l *Lookup) LoadVPNFile(path string) (int, error) {
	set, err := loadAddrFile(path)
	if err != nil {
		return 0, fmt.Errorf("load vpn list: %w", err)
	}

	l.mu.Lock()
	l.vpn = set
	l.mu.Unlock()

	logging.Info().Str("path", path).Int("addresses", len(set)).Msg("VPN exit list loaded")
	return len(set), nil
}

// LoadTorFile replaces the Tor set from a newline-delimited IP list.
func (l *Lookup) LoadTorFile(path string) (int, error) {
	set, err := loadAddrFile(path)
	if err != nil {
		return 0, fmt.Errorf("load tor list: %w", err)
	}

	l.mu.Lock()
	l.tor = set
	l.mu.Unlock()

	logging.Info().Str("path", path).Int("addresses", len(set)).Msg("Tor exit list loaded")
	return len(set), nil
}

// loadAddrFile parses a newline-delimited IP list. Blank lines and
// #-comments are skipped; invalid addresses are counted and dropped
// rather than failing the whole load.
func loadAddrFile(path string) (map[netip.Addr]struct{}, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is trusted input from configuration
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Str("path", path).Msg("Error closing address list")
		}
	}()

	set := make(map[netip.Addr]struct{})
	invalid := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Tolerate "addr port" and "addr,meta" formats from exit-list dumps.
		if i := strings.IndexAny(line, " \t,"); i > 0 {
			line = line[:i]
		}

		addr, err := netip.ParseAddr(line)
		if err != nil {
			invalid++
			continue
		}
		set[addr.Unmap()] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if invalid > 0 {
		logging.Warn().Str("path", path).Int("skipped", invalid).Msg("Skipped invalid addresses in list")
	}
	return set, nil
}
