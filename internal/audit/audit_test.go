// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package audit

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/tomtom215/studygate/internal/logging"
)

func newTestAuditLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(logging.NewSecurityLoggerWithLogger(logging.NewTestLogger(buf)))
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := newTestAuditLogger(&buf)

	record := l.Append(Record{
		UserID:    "user-1",
		IPAddress: "203.0.113.7",
		Score:     0.7,
		Tier:      "medium",
		Action:    "allow",
	})

	if record.ID == "" {
		t.Error("ID not assigned")
	}
	if record.Timestamp.IsZero() {
		t.Error("Timestamp not assigned")
	}
	if !strings.Contains(buf.String(), "trust_decision") {
		t.Errorf("decision not logged: %s", buf.String())
	}
}

func TestElevatedTierLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	l := newTestAuditLogger(&buf)

	l.Append(Record{UserID: "user-1", Score: 0.2, Tier: "critical", Action: "block"})

	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("critical decision not logged at warn: %s", buf.String())
	}
}

func TestRecentNewestFirst(t *testing.T) {
	var buf bytes.Buffer
	l := newTestAuditLogger(&buf)

	for i := 0; i < 5; i++ {
		l.Append(Record{UserID: fmt.Sprintf("user-%d", i), Action: "allow", Tier: "low"})
	}

	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
	if recent[0].UserID != "user-4" || recent[2].UserID != "user-2" {
		t.Errorf("order = %s..%s, want user-4..user-2", recent[0].UserID, recent[2].UserID)
	}
}

func TestRecentMoreThanStored(t *testing.T) {
	var buf bytes.Buffer
	l := newTestAuditLogger(&buf)

	l.Append(Record{UserID: "user-1", Action: "allow", Tier: "low"})

	if got := l.Recent(50); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	var buf bytes.Buffer
	l := newTestAuditLogger(&buf)

	for i := 0; i < ringCapacity+10; i++ {
		l.Append(Record{UserID: fmt.Sprintf("user-%d", i), Action: "allow", Tier: "low"})
	}

	recent := l.Recent(ringCapacity + 100)
	if len(recent) != ringCapacity {
		t.Fatalf("len = %d, want %d", len(recent), ringCapacity)
	}
	if recent[0].UserID != fmt.Sprintf("user-%d", ringCapacity+9) {
		t.Errorf("newest = %s, want user-%d", recent[0].UserID, ringCapacity+9)
	}
	// The oldest surviving record is the 11th appended.
	if recent[len(recent)-1].UserID != "user-10" {
		t.Errorf("oldest = %s, want user-10", recent[len(recent)-1].UserID)
	}
}
