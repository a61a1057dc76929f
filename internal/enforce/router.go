// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package enforce

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/studygate/internal/audit"
	"github.com/tomtom215/studygate/internal/auth"
	"github.com/tomtom215/studygate/internal/config"
	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/registry"
	"github.com/tomtom215/studygate/internal/store"
	"github.com/tomtom215/studygate/internal/threat"
	"github.com/tomtom215/studygate/internal/trust"
)

// Gate bundles everything the enforcement point needs per request.
type Gate struct {
	engine    *trust.Engine
	detectors *threat.Detectors
	extractor *evidence.Extractor
	registry  *registry.Registry
	audit     *audit.Logger
	security  *logging.SecurityLogger
	store     store.Store
	validate  *validator.Validate

	quarantineDuration time.Duration
}

// NewGate assembles the enforcement point.
func NewGate(
	engine *trust.Engine,
	detectors *threat.Detectors,
	extractor *evidence.Extractor,
	reg *registry.Registry,
	auditLog *audit.Logger,
	security *logging.SecurityLogger,
	s store.Store,
	quarantineDuration time.Duration,
) *Gate {
	return &Gate{
		engine:             engine,
		detectors:          detectors,
		extractor:          extractor,
		registry:           reg,
		audit:              auditLog,
		security:           security,
		store:              s,
		validate:           validator.New(),
		quarantineDuration: quarantineDuration,
	}
}

// Router builds the HTTP surface: the trust API for clients, the admin
// surface, and the operational endpoints.
func (g *Gate) Router(cfg config.ServerConfig, jwt *auth.JWTManager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", consentHeader, "X-Screen-Resolution", "X-Timezone"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.OuterRateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.OuterRateLimit, cfg.OuterRateWindow))
	}

	r.Get("/healthz", g.handleHealthz)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api/trust", func(r chi.Router) {
		r.Use(auth.Middleware(jwt))

		// Registration mutates trust state, so it runs the full gate.
		r.Group(func(r chi.Router) {
			r.Use(g.Protect(threat.CategoryAuth))
			r.Post("/devices", g.handleRegisterDevice)
			r.Post("/locations", g.handleRegisterLocation)
		})

		// Status stays reachable for challenged users; it reports the
		// evaluation instead of enforcing it.
		r.Get("/status", g.handleTrustStatus)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.Middleware(jwt))
		r.Use(RequireRole(auth.RoleAdmin))
		r.Use(g.Protect(threat.CategoryAdmin))

		r.Get("/quarantine", g.handleListQuarantined)
		r.Post("/quarantine/{user}", g.handleQuarantine)
		r.Delete("/quarantine/{user}", g.handleRelease)
		r.Get("/audit", g.handleRecentAudits)
		r.Post("/events/failed-login", g.handleFailedLogin)
	})

	return r
}
