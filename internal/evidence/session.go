// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package evidence

import (
	"time"

	"github.com/tomtom215/studygate/internal/behavior"
)

// Session is the request-scoped activity state the enforcement point
// accumulates per user: live counts for the current session window, not
// the learned baseline.
type Session struct {
	// LoginCount is logins observed in the current hourly window.
	LoginCount int `json:"login_count"`

	// FailedAttempts counts failed authentications in the session.
	FailedAttempts int `json:"failed_attempts"`

	// StartUnix is when the session window opened.
	StartUnix int64 `json:"start_unix"`

	// EndpointCalls maps endpoint categories to live call counts.
	EndpointCalls map[string]float64 `json:"endpoint_calls"`
}

// NewSession opens a session window at now.
func NewSession(now time.Time) Session {
	return Session{
		StartUnix:     now.Unix(),
		EndpointCalls: make(map[string]float64),
	}
}

// Touch records one call to an endpoint category.
func (s *Session) Touch(category string) {
	if s.EndpointCalls == nil {
		s.EndpointCalls = make(map[string]float64)
	}
	s.EndpointCalls[category]++
}

// Duration returns how long the session has been open at now.
func (s Session) Duration(now time.Time) time.Duration {
	if s.StartUnix == 0 {
		return 0
	}
	return now.Sub(time.Unix(s.StartUnix, 0))
}

// Snapshot converts the session state into the analyzer's input at the
// given instant. Only live session state flows in; the stored baseline
// stays on the other side of the comparison.
func (s Session) Snapshot(now time.Time) behavior.Snapshot {
	return behavior.Snapshot{
		LoginRate:     float64(s.LoginCount),
		Hour:          now.Hour(),
		FailedLogins:  s.FailedAttempts,
		EndpointCalls: s.EndpointCalls,
	}
}
