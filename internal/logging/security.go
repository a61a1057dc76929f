// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent represents a security-relevant event for audit logging.
type SecurityEvent struct {
	// Event is the type of event (e.g., "trust_decision", "threat_detected").
	Event string
	// UserID is the acting user's identifier (if known).
	UserID string
	// IPAddress is the client's IP address.
	IPAddress string
	// UserAgent is the client's user agent (truncated).
	UserAgent string
	// Action is the enforcement verdict (allow, challenge, block, quarantine).
	Action string
	// Tier is the threat tier (low, medium, high, critical).
	Tier string
	// Score is the computed trust score.
	Score float64
	// Elevated marks events that should be emitted at WARN severity.
	Elevated bool
	// Error is the error message if evaluation degraded.
	Error string
	// Details contains additional sanitized details.
	Details map[string]string
}

// SecurityLogger provides structured logging for zero-trust decisions.
// It automatically sanitizes sensitive data before logging.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger bound to the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", "security").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent logs a security event with automatic sanitization.
// Elevated events (high/critical tiers, threat rejections) log at WARN.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info()
	if event.Elevated {
		e = l.logger.Warn()
	}

	e = e.Str("event", event.Event)

	if event.UserID != "" {
		e = e.Str("user_id", SanitizeUserID(event.UserID))
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.Tier != "" {
		e = e.Str("tier", event.Tier).Float64("trust_score", event.Score)
	}
	if event.Error != "" {
		e = e.Str("error", SanitizeError(event.Error))
	}

	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// LogTrustDecision logs the outcome of one trust evaluation.
func (l *SecurityLogger) LogTrustDecision(userID, ip, action, tier string, score float64, elevated bool) {
	l.LogEvent(&SecurityEvent{
		Event:     "trust_decision",
		UserID:    userID,
		IPAddress: ip,
		Action:    action,
		Tier:      tier,
		Score:     score,
		Elevated:  elevated,
	})
}

// LogThreatDetected logs a rate-detector rejection.
func (l *SecurityLogger) LogThreatDetected(detector, subject, ip string, count, limit int64) {
	l.LogEvent(&SecurityEvent{
		Event:     "threat_detected",
		UserID:    subject,
		IPAddress: ip,
		Elevated:  true,
		Details: map[string]string{
			"detector": detector,
			"count":    itoa(count),
			"limit":    itoa(limit),
		},
	})
}

// LogQuarantine logs a quarantine placement or release.
func (l *SecurityLogger) LogQuarantine(userID, reason string, released bool) {
	event := "user_quarantined"
	if released {
		event = "quarantine_released"
	}
	l.LogEvent(&SecurityEvent{
		Event:    event,
		UserID:   userID,
		Elevated: !released,
		Details:  map[string]string{"reason": reason},
	})
}

// LogEvaluationError logs a degraded (fail-closed) evaluation.
func (l *SecurityLogger) LogEvaluationError(userID, ip string, err error) {
	l.LogEvent(&SecurityEvent{
		Event:     "evaluation_error",
		UserID:    userID,
		IPAddress: ip,
		Elevated:  true,
		Error:     err.Error(),
	})
}

// itoa formats an int64 without pulling in strconv at every call site.
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ============================================================
// Sanitization Functions
// ============================================================

// SanitizeUserID masks a user ID for privacy.
// Example: "user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeError removes potentially sensitive information from error messages.
func SanitizeError(err string) string {
	sensitivePatterns := []string{
		"password",
		"secret",
		"token",
		"key",
		"bearer",
		"authorization",
		"cookie",
	}

	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerErr, pattern) {
			return "security evaluation error"
		}
	}

	return truncateString(err, 200)
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	sensitiveKeys := map[string]bool{
		"token":         true,
		"password":      true,
		"secret":        true,
		"api_key":       true,
		"authorization": true,
		"cookie":        true,
		"session":       true,
		"session_id":    true,
	}

	if sensitiveKeys[strings.ToLower(key)] {
		return "***"
	}
	return value
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
