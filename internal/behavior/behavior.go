// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package behavior scores how far a request's observed activity deviates
// from the user's learned baseline. Scoring is pure: no store access, no
// clock reads; callers supply both sides and get a deterministic score.
package behavior

// Signal weights. The individual signals are additive and the total is
// clamped to 1.0.
const (
	loginRateWeight     = 0.3
	offHoursWeight      = 0.2
	failedLoginsWeight  = 0.4
	endpointShiftWeight = 0.1

	// loginRateMultiplier flags a login rate this many times above the
	// baseline.
	loginRateMultiplier = 3.0

	// failedLoginsLimit is the failed-attempt count above which the
	// failed-logins signal fires.
	failedLoginsLimit = 5

	// endpointShiftMultiplier flags an endpoint called this many times
	// more often than its baseline rate.
	endpointShiftMultiplier = 5.0
)

// Baseline is a user's learned activity profile.
type Baseline struct {
	// LoginRate is the typical logins per hour.
	LoginRate float64 `json:"login_rate"`

	// EndpointRates maps endpoint categories to their typical call
	// counts per observation window.
	EndpointRates map[string]float64 `json:"endpoint_rates"`

	// ActiveStartHour and ActiveEndHour bound the usual activity window
	// in local hours, inclusive.
	ActiveStartHour int `json:"active_start_hour"`
	ActiveEndHour   int `json:"active_end_hour"`

	// SessionSeconds is the typical session length.
	SessionSeconds int `json:"session_seconds"`
}

// DefaultBaseline is the profile assumed for users with no history yet.
// Rates reflect a typical student session: mostly study content, some
// quizzes, occasional auth traffic during daytime hours.
func DefaultBaseline() Baseline {
	return Baseline{
		LoginRate: 2.0,
		EndpointRates: map[string]float64{
			"study": 10,
			"quiz":  5,
			"auth":  1,
		},
		ActiveStartHour: 9,
		ActiveEndHour:   21,
		SessionSeconds:  1800,
	}
}

// Snapshot is the activity observed around the current request.
type Snapshot struct {
	// LoginRate is the recent logins per hour.
	LoginRate float64 `json:"login_rate"`

	// Hour is the local hour of the request, 0-23.
	Hour int `json:"hour"`

	// FailedLogins counts recent failed authentication attempts.
	FailedLogins int `json:"failed_logins"`

	// EndpointCalls maps endpoint categories to recent call counts.
	EndpointCalls map[string]float64 `json:"endpoint_calls"`
}

// AnomalyScore returns a deviation score in [0, 1].
//
// Four signals contribute: login rate more than 3x baseline (+0.3),
// request outside the active-hours window (+0.2), more than 5 failed
// logins (+0.4), and endpoint usage shifted more than 5x above its
// baseline rate (+0.1 total, however many endpoints deviate).
func AnomalyScore(baseline Baseline, snapshot Snapshot) float64 {
	score := 0.0

	if snapshot.LoginRate > baseline.LoginRate*loginRateMultiplier {
		score += loginRateWeight
	}

	if snapshot.Hour < baseline.ActiveStartHour || snapshot.Hour > baseline.ActiveEndHour {
		score += offHoursWeight
	}

	if snapshot.FailedLogins > failedLoginsLimit {
		score += failedLoginsWeight
	}

	// Endpoint deviation is a single capped signal. One wildly shifted
	// endpoint and ten are the same evidence of a shifted usage pattern;
	// per-endpoint accumulation would let this minor signal dominate the
	// strong ones.
	for endpoint, count := range snapshot.EndpointCalls {
		if count > baseline.EndpointRates[endpoint]*endpointShiftMultiplier {
			score += endpointShiftWeight
			break
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}
