// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package enforce

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/logging"
)

// sessionTTL bounds the per-user activity window the behavior snapshot
// is built from.
const sessionTTL = time.Hour

func sessionKey(userID string) string {
	return "session:" + userID
}

// loadSession returns the user's live activity window, opening a fresh
// one when none exists or the store cannot serve it. Session state is
// advisory: losing it degrades anomaly detection for one window, it
// never fails a request.
func (g *Gate) loadSession(ctx context.Context, userID string) evidence.Session {
	raw, err := g.store.Get(ctx, sessionKey(userID))
	if err != nil {
		return evidence.NewSession(time.Now())
	}

	var sess evidence.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return evidence.NewSession(time.Now())
	}
	return sess
}

func (g *Gate) saveSession(ctx context.Context, userID string, sess evidence.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := g.store.Set(ctx, sessionKey(userID), raw, sessionTTL); err != nil {
		logging.Debug().Err(err).Msg("Session write failed")
	}
}

// RecordFailedLogin bumps the user's failed-attempt count. The platform
// auth service reports failures here so the burst signal has data.
func (g *Gate) RecordFailedLogin(ctx context.Context, userID string) {
	sess := g.loadSession(ctx, userID)
	sess.FailedAttempts++
	g.saveSession(ctx, userID, sess)
}
