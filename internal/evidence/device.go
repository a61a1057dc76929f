// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package evidence extracts the per-request evidence the trust engine
// scores: device fingerprint, location context, and a behavior snapshot.
// Extraction never fails a request; missing or malformed inputs degrade
// to unknown values.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Device is the stable set of client attributes used for fingerprinting.
type Device struct {
	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
	Platform         string `json:"platform"`
}

// Fingerprint returns the device's stable identifier: the sha256 hex of
// the colon-joined attributes. Two requests with identical attributes
// always produce the same fingerprint.
func (d Device) Fingerprint() string {
	data := d.UserAgent + ":" + d.ScreenResolution + ":" + d.Timezone + ":" + d.Language + ":" + d.Platform
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// DeviceFromRequest extracts device attributes from request headers.
// Clients supply screen resolution and timezone via custom headers; the
// platform comes from client hints. Absent headers become "unknown" so
// header-stripping clients still produce a stable (if generic)
// fingerprint.
func DeviceFromRequest(r *http.Request) Device {
	return Device{
		UserAgent:        r.UserAgent(),
		ScreenResolution: headerOr(r, "X-Screen-Resolution", "unknown"),
		Timezone:         headerOr(r, "X-Timezone", "unknown"),
		Language:         headerOr(r, "Accept-Language", "unknown"),
		Platform:         headerOr(r, "Sec-CH-UA-Platform", "unknown"),
	}
}

func headerOr(r *http.Request, name, fallback string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return fallback
}
