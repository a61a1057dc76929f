// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package trust implements the per-request trust evaluation engine.
// Every request starts fully trusted and loses score for each piece of
// missing or contradicting evidence; the final score maps to a threat
// tier and an enforcement action. The engine holds no state between
// requests beyond what the registry persists.
package trust

import (
	"context"
	"strconv"
	"time"

	"github.com/tomtom215/studygate/internal/audit"
	"github.com/tomtom215/studygate/internal/behavior"
	"github.com/tomtom215/studygate/internal/config"
	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/metrics"
	"github.com/tomtom215/studygate/internal/registry"
)

// Action is the enforcement verdict for a request.
type Action string

const (
	ActionAllow      Action = "allow"
	ActionChallenge  Action = "challenge"
	ActionBlock      Action = "block"
	ActionQuarantine Action = "quarantine"
)

// Tier is the coarse threat bucket derived from the trust score.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"

	// TierUnknown marks evaluations that failed before a score could be
	// computed.
	TierUnknown Tier = "unknown"
)

// Score penalties. Weights are fixed; only the tier thresholds are
// configurable.
const (
	unknownDevicePenalty      = 0.3
	suspiciousLocationPenalty = 0.4
	anomalyWeight             = 0.5
)

// Principal is the authenticated identity a request acts as.
type Principal struct {
	UserID string

	// Privileged principals (admins, staff) are held to a stricter
	// action mapping.
	Privileged bool
}

// Evidence is everything the engine scores for one request.
type Evidence struct {
	Device   evidence.Device
	Location evidence.LocationContext
	Session  evidence.Session
}

// Result is the full evaluation outcome.
type Result struct {
	Action Action
	Score  float64
	Tier   Tier

	// Directives carry machine-readable follow-ups for the client
	// (mfa_required, block_duration_seconds, ...). Never includes
	// internal reasons.
	Directives map[string]string

	// DeviceKnown reports whether the fingerprint was registered;
	// the enforcement point uses it for opt-in registration.
	DeviceKnown bool

	// EvaluationError marks a fail-closed result caused by an internal
	// failure rather than the evidence itself.
	EvaluationError bool

	// Audit is the emitted audit record.
	Audit audit.Record
}

// Engine evaluates requests against the trust registry.
type Engine struct {
	registry *registry.Registry
	audit    *audit.Logger
	security *logging.SecurityLogger
	cfg      config.TrustConfig

	now func() time.Time
}

// NewEngine creates an engine. The configuration must already be
// validated; the engine assumes ordered thresholds.
func NewEngine(reg *registry.Registry, auditLog *audit.Logger, security *logging.SecurityLogger, cfg config.TrustConfig) *Engine {
	return &Engine{
		registry: reg,
		audit:    auditLog,
		security: security,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock replaces the engine's time source. Tests pin it so hour-of-day
// signals do not depend on when the suite runs.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Evaluate scores one request and returns the enforcement action.
//
// The score starts at 1.0 and drops for an unregistered device (-0.3), a
// suspicious location (-0.4), and behavioral anomaly (-0.5 x anomaly),
// clamped to [0, 1]. An active quarantine overrides everything. Any
// store failure fails closed: the result is CHALLENGE with an
// evaluation_error directive, never ALLOW.
func (e *Engine) Evaluate(ctx context.Context, principal Principal, ev Evidence) Result {
	start := e.now()
	fingerprint := ev.Device.Fingerprint()

	deviceKnown, err := e.registry.IsKnownDevice(ctx, principal.UserID, fingerprint)
	if err != nil {
		return e.failClosed(principal, ev, err, start)
	}

	suspicious, err := e.isSuspiciousLocation(ctx, principal.UserID, ev.Location)
	if err != nil {
		return e.failClosed(principal, ev, err, start)
	}

	baseline, err := e.registry.Baseline(ctx, principal.UserID)
	if err != nil {
		return e.failClosed(principal, ev, err, start)
	}
	anomaly := behavior.AnomalyScore(baseline, ev.Session.Snapshot(start))

	score := 1.0
	if !deviceKnown {
		score -= unknownDevicePenalty
	}
	if suspicious {
		score -= suspiciousLocationPenalty
	}
	score -= anomalyWeight * anomaly
	score = clamp(score)

	tier := e.tier(score)
	action := e.action(tier, score, principal.Privileged)

	// Quarantine has the highest precedence, whatever the score says.
	record, quarantined, err := e.registry.QuarantineRecord(ctx, principal.UserID)
	if err != nil {
		return e.failClosed(principal, ev, err, start)
	}
	if quarantined {
		action = ActionQuarantine
	}

	result := Result{
		Action:      action,
		Score:       score,
		Tier:        tier,
		Directives:  e.directives(action, deviceKnown, record, start),
		DeviceKnown: deviceKnown,
	}
	result.Audit = e.audit.Append(audit.Record{
		UserID:     principal.UserID,
		IPAddress:  ev.Location.IPAddress,
		Score:      score,
		Tier:       string(tier),
		Action:     string(action),
		Directives: result.Directives,
	})

	metrics.ObserveEvaluation(string(action), string(tier), score, start)
	return result
}

// isSuspiciousLocation applies the location rule: anonymized traffic is
// always suspicious; otherwise a location is suspicious only when the
// user has location history and this place is not in it. An empty
// history is cold start, not suspicion.
func (e *Engine) isSuspiciousLocation(ctx context.Context, userID string, loc evidence.LocationContext) (bool, error) {
	if loc.IsVPN || loc.IsTor {
		return true, nil
	}

	known, err := e.registry.KnownLocations(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(known) == 0 {
		return false, nil
	}

	place := loc.Place()
	for _, k := range known {
		if k.Country == place.Country && k.City == place.City {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) tier(score float64) Tier {
	switch {
	case score >= e.cfg.LowThreshold:
		return TierLow
	case score >= e.cfg.MediumThreshold:
		return TierMedium
	case score >= e.cfg.HighThreshold:
		return TierHigh
	default:
		return TierCritical
	}
}

func (e *Engine) action(tier Tier, score float64, privileged bool) Action {
	switch tier {
	case TierLow:
		return ActionAllow
	case TierMedium:
		if score < e.cfg.MFAThreshold {
			return ActionChallenge
		}
		return ActionAllow
	case TierHigh:
		if privileged {
			return ActionBlock
		}
		return ActionChallenge
	default:
		return ActionBlock
	}
}

func (e *Engine) directives(action Action, deviceKnown bool, record registry.QuarantineRecord, now time.Time) map[string]string {
	d := make(map[string]string)

	switch action {
	case ActionChallenge:
		d["mfa_required"] = "true"
		d["challenge_type"] = "mfa"
	case ActionBlock:
		d["block_duration_seconds"] = strconv.Itoa(int(e.cfg.BlockDuration.Seconds()))
		d["notify"] = "true"
	case ActionQuarantine:
		remaining := e.cfg.QuarantineDuration
		if !record.ExpiresAt.IsZero() {
			remaining = record.ExpiresAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
		}
		d["quarantine_duration_seconds"] = strconv.Itoa(int(remaining.Seconds()))
		d["notify_admin"] = "true"
	}

	if !deviceKnown {
		d["device_registration_suggested"] = "true"
	}
	return d
}

// failClosed converts an internal failure into the restrictive default.
func (e *Engine) failClosed(principal Principal, ev Evidence, err error, start time.Time) Result {
	e.security.LogEvaluationError(principal.UserID, ev.Location.IPAddress, err)
	metrics.EvaluationErrors.Inc()

	directives := map[string]string{
		"mfa_required":     "true",
		"challenge_type":   "mfa",
		"evaluation_error": "true",
	}

	result := Result{
		Action:          ActionChallenge,
		Score:           0,
		Tier:            TierUnknown,
		Directives:      directives,
		EvaluationError: true,
	}
	result.Audit = e.audit.Append(audit.Record{
		UserID:          principal.UserID,
		IPAddress:       ev.Location.IPAddress,
		Score:           0,
		Tier:            string(TierUnknown),
		Action:          string(ActionChallenge),
		Directives:      directives,
		EvaluationError: true,
	})

	metrics.ObserveEvaluation(string(ActionChallenge), string(TierUnknown), 0, start)
	return result
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
