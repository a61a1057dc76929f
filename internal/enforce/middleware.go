// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package enforce is the HTTP enforcement point: it runs the threat
// detectors and the trust engine on every protected request and turns
// actions into responses. Route categories are declared statically where
// routes are mounted; nothing in here inspects URL paths to guess what a
// request is.
package enforce

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/studygate/internal/auth"
	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/threat"
	"github.com/tomtom215/studygate/internal/trust"
)

// requestIDHeader carries the request id to and from clients.
const requestIDHeader = "X-Request-ID"

// consentHeader lists what the client opted to trust ("device",
// "location", or both comma-separated). Registration only happens on an
// ALLOW outcome with explicit consent.
const consentHeader = "X-Trust-Consent"

type requestIDKey struct{}

// RequestID assigns each request a UUID unless the client supplied one,
// and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id, if assigned.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequireRole rejects identities without the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok || id.Role != role {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient privileges"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect runs the detectors and the trust engine for one statically
// declared route category. It must be mounted behind auth.Middleware.
func (g *Gate) Protect(category threat.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			if done := g.runDetectors(w, r, category, id); done {
				return
			}

			result, sess := g.evaluate(r, category, id)
			switch result.Action {
			case trust.ActionAllow:
				g.learn(r, id, sess, result)
				next.ServeHTTP(w, r)
			case trust.ActionChallenge:
				writeJSON(w, http.StatusForbidden, deniedBody("additional verification required", result.Directives))
			case trust.ActionBlock:
				writeJSON(w, http.StatusForbidden, deniedBody("access temporarily restricted", result.Directives))
			case trust.ActionQuarantine:
				writeJSON(w, http.StatusForbidden, deniedBody("account access suspended, contact support", result.Directives))
			}
		})
	}
}

// runDetectors applies the rate detectors for the category. Returns true
// when the response has been written (rejection or detector failure).
func (g *Gate) runDetectors(w http.ResponseWriter, r *http.Request, category threat.Category, id auth.Identity) bool {
	ctx := r.Context()
	ip := evidence.ClientIP(r)

	decision, err := g.detectors.CheckFlood(ctx, ip)
	if err != nil {
		// Detector state is unavailable; the evaluation path will fail
		// closed with better diagnostics, so let it proceed.
		logging.Error().Err(err).Msg("Flood detector unavailable")
		return false
	}
	if !decision.Allowed {
		writeRateLimited(w, decision)
		return true
	}

	if category == threat.CategoryAuth && r.Method == http.MethodPost {
		decision, err = g.detectors.CheckBruteForce(ctx, ip)
		if err != nil {
			logging.Error().Err(err).Msg("Brute-force detector unavailable")
			return false
		}
		if !decision.Allowed {
			writeRateLimited(w, decision)
			return true
		}
	}

	decision, err = g.detectors.CheckEnumeration(ctx, id.UserID)
	if err != nil {
		logging.Error().Err(err).Msg("Enumeration detector unavailable")
		return false
	}
	if !decision.Allowed {
		writeRateLimited(w, decision)
		return true
	}

	return false
}

// evaluate gathers evidence and runs the trust engine.
func (g *Gate) evaluate(r *http.Request, category threat.Category, id auth.Identity) (trust.Result, evidence.Session) {
	ctx := r.Context()

	sess := g.loadSession(ctx, id.UserID)
	sess.Touch(string(category))
	if category == threat.CategoryAuth && r.Method == http.MethodPost {
		sess.LoginCount++
	}
	g.saveSession(ctx, id.UserID, sess)

	ev := trust.Evidence{
		Device:   evidence.DeviceFromRequest(r),
		Location: g.extractor.Location(ctx, r),
		Session:  sess,
	}

	principal := trust.Principal{UserID: id.UserID, Privileged: id.Privileged()}
	return g.engine.Evaluate(ctx, principal, ev), sess
}

// learn registers the device or location after an ALLOW outcome when the
// client explicitly opted in. Failures only log; the request already
// passed.
func (g *Gate) learn(r *http.Request, id auth.Identity, sess evidence.Session, result trust.Result) {
	consent := r.Header.Get(consentHeader)
	if consent == "" {
		return
	}
	ctx := r.Context()

	for _, what := range strings.Split(consent, ",") {
		switch strings.TrimSpace(what) {
		case "device":
			fingerprint := evidence.DeviceFromRequest(r).Fingerprint()
			if err := g.registry.RegisterDevice(ctx, id.UserID, fingerprint); err != nil {
				logging.Error().Err(err).Msg("Consented device registration failed")
			}
		case "location":
			loc := g.extractor.Location(ctx, r)
			if loc.IsVPN || loc.IsTor || !loc.Resolved() {
				continue
			}
			if err := g.registry.RegisterLocation(ctx, id.UserID, loc.Place()); err != nil {
				logging.Error().Err(err).Msg("Consented location registration failed")
			}
		}
	}
}

func deniedBody(message string, directives map[string]string) map[string]any {
	return map[string]any{
		"error":      message,
		"directives": directives,
	}
}

func writeRateLimited(w http.ResponseWriter, decision threat.Decision) {
	if decision.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "too many requests",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Response encoding failed")
	}
}
