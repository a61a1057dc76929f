// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package audit records every trust decision. Records are emitted to the
// structured security log and kept in a capped in-memory ring for the
// admin surface; long-term retention belongs to the log pipeline, not
// this process.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/studygate/internal/logging"
)

// ringCapacity bounds the in-memory record ring.
const ringCapacity = 1000

// Record is one trust decision.
type Record struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	IPAddress       string            `json:"ip_address"`
	Score           float64           `json:"score"`
	Tier            string            `json:"tier"`
	Action          string            `json:"action"`
	Directives      map[string]string `json:"directives,omitempty"`
	EvaluationError bool              `json:"evaluation_error,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Logger emits audit records and retains the most recent ones.
type Logger struct {
	security *logging.SecurityLogger

	mu   sync.RWMutex
	ring []Record
	next int
	full bool
}

// NewLogger creates an audit logger over the given security logger.
func NewLogger(security *logging.SecurityLogger) *Logger {
	return &Logger{
		security: security,
		ring:     make([]Record, ringCapacity),
	}
}

// Append assigns the record an ID and timestamp if unset, logs it, and
// retains it in the ring.
func (l *Logger) Append(record Record) Record {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	elevated := record.Tier == "high" || record.Tier == "critical"
	l.security.LogTrustDecision(record.UserID, record.IPAddress, record.Action, record.Tier, record.Score, elevated)

	l.mu.Lock()
	l.ring[l.next] = record
	l.next = (l.next + 1) % ringCapacity
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	return record
}

// Recent returns up to n records, newest first.
func (l *Logger) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = ringCapacity
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + ringCapacity) % ringCapacity
		out = append(out, l.ring[idx])
	}
	return out
}
