// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package threat implements rate-based attack detectors over the store's
// atomic counter: credential brute force per IP, account enumeration per
// user, and request flooding per IP. Each check increments and compares
// in one step, so concurrent requests cannot slip past the threshold
// between a read and a write.
package threat

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/studygate/internal/config"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/metrics"
	"github.com/tomtom215/studygate/internal/store"
)

// Detector names, used in keys, metrics, and threat logs.
const (
	BruteForce  = "brute_force"
	Enumeration = "enumeration"
	Flood       = "flood"
)

// Category classifies a route for detector selection and behavior
// tracking. Categories are declared statically where routes are mounted;
// the engine never inspects paths.
type Category string

const (
	CategoryAuth  Category = "auth"
	CategoryStudy Category = "study"
	CategoryQuiz  Category = "quiz"
	CategoryAdmin Category = "admin"
	CategoryOther Category = "other"
)

// Decision is the outcome of one detector check.
type Decision struct {
	// Allowed is false once the subject's count exceeds the threshold
	// within the window.
	Allowed bool

	// Count is the subject's observation count including this request.
	Count int64

	// Limit is the detector threshold.
	Limit int64

	// RetryAfter advises how long a rejected subject should back off.
	RetryAfter time.Duration
}

type detector struct {
	name      string
	window    time.Duration
	threshold int64
}

// Detectors runs the three rate detectors against the shared store.
type Detectors struct {
	store    store.Store
	security *logging.SecurityLogger

	bruteForce  detector
	enumeration detector
	flood       detector
}

// New creates the detector set from the validated configuration.
func New(s store.Store, cfg config.ThreatConfig, security *logging.SecurityLogger) *Detectors {
	return &Detectors{
		store:       s,
		security:    security,
		bruteForce:  detector{BruteForce, cfg.BruteForce.Window, cfg.BruteForce.Threshold},
		enumeration: detector{Enumeration, cfg.Enumeration.Window, cfg.Enumeration.Threshold},
		flood:       detector{Flood, cfg.Flood.Window, cfg.Flood.Threshold},
	}
}

// CheckBruteForce counts a login-shaped request from ip.
func (d *Detectors) CheckBruteForce(ctx context.Context, ip string) (Decision, error) {
	return d.check(ctx, d.bruteForce, ip, ip)
}

// CheckEnumeration counts an API request from the user.
func (d *Detectors) CheckEnumeration(ctx context.Context, userID string) (Decision, error) {
	return d.check(ctx, d.enumeration, userID, "")
}

// CheckFlood counts any request from ip.
func (d *Detectors) CheckFlood(ctx context.Context, ip string) (Decision, error) {
	return d.check(ctx, d.flood, ip, ip)
}

// check increments the subject's counter and compares against the
// threshold in one atomic step. The Nth observation within the window
// reports Count N; observations beyond the threshold are rejected, so a
// threshold of 10 admits exactly 10 requests per window.
func (d *Detectors) check(ctx context.Context, det detector, subject, ip string) (Decision, error) {
	key := "ratelimit:" + det.name + ":" + subject

	count, err := d.store.Increment(ctx, key, det.window)
	if err != nil {
		return Decision{}, fmt.Errorf("%s check: %w", det.name, err)
	}

	decision := Decision{
		Allowed: count <= det.threshold,
		Count:   count,
		Limit:   det.threshold,
	}
	metrics.ObserveDetectorCheck(det.name, decision.Allowed)

	if !decision.Allowed {
		decision.RetryAfter = det.window
		d.security.LogThreatDetected(det.name, subject, ip, count, det.threshold)
	}
	return decision, nil
}
