// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package evidence

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/studygate/internal/anonymizer"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/store"
)

func TestDeviceFingerprintStable(t *testing.T) {
	d := Device{
		UserAgent:        "Mozilla/5.0",
		ScreenResolution: "1920x1080",
		Timezone:         "Asia/Seoul",
		Language:         "ko-KR",
		Platform:         "macOS",
	}

	first := d.Fingerprint()
	second := d.Fingerprint()
	if first != second {
		t.Errorf("fingerprint not stable: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(first))
	}
}

func TestDeviceFingerprintDistinguishes(t *testing.T) {
	base := Device{UserAgent: "ua", ScreenResolution: "r", Timezone: "tz", Language: "l", Platform: "p"}
	changed := base
	changed.Platform = "other"

	if base.Fingerprint() == changed.Fingerprint() {
		t.Error("different devices produced the same fingerprint")
	}
}

func TestDeviceFromRequestDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/study/1", nil)

	d := DeviceFromRequest(r)
	if d.ScreenResolution != "unknown" || d.Timezone != "unknown" || d.Platform != "unknown" {
		t.Errorf("missing headers not defaulted: %+v", d)
	}
}

func TestDeviceFromRequestHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/study/1", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("X-Screen-Resolution", "2560x1440")
	r.Header.Set("X-Timezone", "Europe/Berlin")
	r.Header.Set("Accept-Language", "de-DE")
	r.Header.Set("Sec-CH-UA-Platform", "Linux")

	d := DeviceFromRequest(r)
	want := Device{
		UserAgent:        "Mozilla/5.0",
		ScreenResolution: "2560x1440",
		Timezone:         "Europe/Berlin",
		Language:         "de-DE",
		Platform:         "Linux",
	}
	if d != want {
		t.Errorf("DeviceFromRequest = %+v, want %+v", d, want)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"no forwarding", "", "203.0.113.7:51423", "203.0.113.7"},
		{"single hop", "198.51.100.9", "10.0.0.1:80", "198.51.100.9"},
		{"multiple hops take first", "198.51.100.9, 10.0.0.2, 10.0.0.1", "10.0.0.1:80", "198.51.100.9"},
		{"padded entry", "  198.51.100.9 , 10.0.0.2", "10.0.0.1:80", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

type fixedResolver struct {
	place geo.Place
	err   error
}

func (f fixedResolver) Resolve(ctx context.Context, ip string) (geo.Place, error) {
	return f.place, f.err
}

func writeList(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write list: %v", err)
	}
	return path
}

func TestLocationResolved(t *testing.T) {
	e := NewExtractor(
		fixedResolver{place: geo.Place{Country: "KR", City: "Seoul"}},
		anonymizer.NewLookup(),
		nil,
	)

	r := httptest.NewRequest("GET", "/api/study/1", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	loc := e.Location(context.Background(), r)
	if loc.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q, want 203.0.113.7", loc.IPAddress)
	}
	if loc.Country != "KR" || loc.City != "Seoul" {
		t.Errorf("place = %s/%s, want KR/Seoul", loc.Country, loc.City)
	}
	if loc.IsVPN || loc.IsTor {
		t.Errorf("clean address flagged: %+v", loc)
	}
}

func TestLocationUnresolvedFailsOpen(t *testing.T) {
	e := NewExtractor(fixedResolver{err: geo.ErrUnresolved}, anonymizer.NewLookup(), nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:1234"

	loc := e.Location(context.Background(), r)
	if loc.Resolved() {
		t.Errorf("unresolved location carries place data: %+v", loc)
	}
	if loc.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q, want 203.0.113.7", loc.IPAddress)
	}
}

func TestLocationAnonymizerFlags(t *testing.T) {
	anon := anonymizer.NewLookup()
	if _, err := anon.LoadTorFile(writeList(t, "203.0.113.7\n")); err != nil {
		t.Fatalf("LoadTorFile: %v", err)
	}

	e := NewExtractor(fixedResolver{err: geo.ErrUnresolved}, anon, nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	loc := e.Location(context.Background(), r)
	if !loc.IsTor {
		t.Error("Tor exit not flagged")
	}
	if loc.IsVPN {
		t.Error("IsVPN = true, want false")
	}
}

func TestLocationAnonymizerCached(t *testing.T) {
	anon := anonymizer.NewLookup()
	vpnList := writeList(t, "203.0.113.7\n")
	if _, err := anon.LoadVPNFile(vpnList); err != nil {
		t.Fatalf("LoadVPNFile: %v", err)
	}

	cache := store.NewMemoryStore()
	e := NewExtractor(fixedResolver{err: geo.ErrUnresolved}, anon, cache)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	if loc := e.Location(context.Background(), r); !loc.IsVPN {
		t.Fatal("VPN exit not flagged on first lookup")
	}

	// The classification now comes from the cache even after the set
	// stops listing the address.
	if _, err := anon.LoadVPNFile(writeList(t, "198.51.100.1\n")); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loc := e.Location(context.Background(), r); !loc.IsVPN {
		t.Error("cached classification not used")
	}
}

func TestSessionSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

	sess := NewSession(now.Add(-10 * time.Minute))
	sess.LoginCount = 3
	sess.FailedAttempts = 2
	sess.Touch("study")
	sess.Touch("study")
	sess.Touch("quiz")

	snap := sess.Snapshot(now)
	if snap.LoginRate != 3 {
		t.Errorf("LoginRate = %v, want 3", snap.LoginRate)
	}
	if snap.Hour != 14 {
		t.Errorf("Hour = %d, want 14", snap.Hour)
	}
	if snap.FailedLogins != 2 {
		t.Errorf("FailedLogins = %d, want 2", snap.FailedLogins)
	}
	if snap.EndpointCalls["study"] != 2 || snap.EndpointCalls["quiz"] != 1 {
		t.Errorf("EndpointCalls = %v, want study:2 quiz:1", snap.EndpointCalls)
	}

	if d := sess.Duration(now); d != 10*time.Minute {
		t.Errorf("Duration = %v, want 10m", d)
	}
}
