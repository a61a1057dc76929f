// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package enforce

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/studygate/internal/auth"
	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/threat"
)

// deviceRegistration is the consent payload for trusting a device. The
// attributes come from the client, not from headers, so the fingerprint
// matches what the device will present on later requests.
type deviceRegistration struct {
	DeviceName       string `json:"device_name" validate:"required,max=100"`
	UserAgent        string `json:"user_agent" validate:"required,max=512"`
	ScreenResolution string `json:"screen_resolution" validate:"required,max=32"`
	Timezone         string `json:"timezone" validate:"required,max=64"`
	Language         string `json:"language" validate:"required,max=32"`
	Platform         string `json:"platform" validate:"required,max=64"`
	TrustThisDevice  bool   `json:"trust_this_device"`
}

type locationRegistration struct {
	Country string `json:"country" validate:"required,iso3166_1_alpha2"`
	City    string `json:"city" validate:"max=100"`
}

type quarantineRequest struct {
	Reason          string `json:"reason" validate:"required,max=200"`
	DurationSeconds int    `json:"duration_seconds" validate:"omitempty,min=60,max=2592000"`
}

type failedLoginEvent struct {
	UserID string `json:"user_id" validate:"required,max=100"`
}

func (g *Gate) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var payload deviceRegistration
	if !g.decode(w, r, &payload) {
		return
	}

	device := evidence.Device{
		UserAgent:        payload.UserAgent,
		ScreenResolution: payload.ScreenResolution,
		Timezone:         payload.Timezone,
		Language:         payload.Language,
		Platform:         payload.Platform,
	}
	fingerprint := device.Fingerprint()

	if payload.TrustThisDevice {
		if err := g.registry.RegisterDevice(r.Context(), id.UserID, fingerprint); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "registration unavailable"})
			return
		}
		logging.Info().Str("user_id", logging.SanitizeUserID(id.UserID)).Str("device_name", payload.DeviceName).Msg("Device trusted")
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"fingerprint": fingerprint,
		"trusted":     payload.TrustThisDevice,
	})
}

func (g *Gate) handleRegisterLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var payload locationRegistration
	if !g.decode(w, r, &payload) {
		return
	}

	place := geo.Place{Country: payload.Country, City: payload.City}
	if err := g.registry.RegisterLocation(r.Context(), id.UserID, place); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "registration unavailable"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"country": place.Country,
		"city":    place.City,
	})
}

func (g *Gate) handleTrustStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	result, _ := g.evaluate(r, threat.CategoryOther, id)

	writeJSON(w, http.StatusOK, map[string]any{
		"trust_score":  result.Score,
		"threat_tier":  result.Tier,
		"action":       result.Action,
		"directives":   result.Directives,
		"device_known": result.DeviceKnown,
	})
}

func (g *Gate) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")

	var payload quarantineRequest
	if !g.decode(w, r, &payload) {
		return
	}

	duration := g.quarantineDuration
	if payload.DurationSeconds > 0 {
		duration = time.Duration(payload.DurationSeconds) * time.Second
	}

	if err := g.registry.Quarantine(r.Context(), userID, payload.Reason, duration); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "quarantine unavailable"})
		return
	}
	g.security.LogQuarantine(userID, payload.Reason, false)

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":          userID,
		"duration_seconds": int(duration.Seconds()),
	})
}

func (g *Gate) handleRelease(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")

	if err := g.registry.Release(r.Context(), userID); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "release unavailable"})
		return
	}
	g.security.LogQuarantine(userID, "", true)

	w.WriteHeader(http.StatusNoContent)
}

func (g *Gate) handleListQuarantined(w http.ResponseWriter, r *http.Request) {
	records, err := g.registry.ListQuarantined(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "listing unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"quarantined": records,
		"count":       len(records),
	})
}

func (g *Gate) handleRecentAudits(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": g.audit.Recent(limit),
	})
}

func (g *Gate) handleFailedLogin(w http.ResponseWriter, r *http.Request) {
	var payload failedLoginEvent
	if !g.decode(w, r, &payload) {
		return
	}

	g.RecordFailedLogin(r.Context(), payload.UserID)
	w.WriteHeader(http.StatusAccepted)
}

func (g *Gate) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode unmarshals and validates a JSON body. Returns false after
// writing the error response.
func (g *Gate) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	if err := g.validate.Struct(payload); err != nil {
		var fields []string
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, f := range invalid {
				fields = append(fields, f.Field())
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid request body",
			"fields": fields,
		})
		return false
	}
	return true
}
