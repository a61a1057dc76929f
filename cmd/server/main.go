// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package main is the entry point for the Studygate server.
//
// Studygate is the zero-trust enforcement point for an education SaaS
// platform. Every authenticated request is re-evaluated from evidence
// (device fingerprint, network location, behavior against a per-user
// baseline) and mapped to an enforcement action: allow, challenge,
// block, or quarantine.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layering (defaults, config.yaml,
//     STUDYGATE_* environment variables)
//  2. Logging: zerolog, configured once for the whole process
//  3. Store: shared key/value state (in-memory or BadgerDB)
//  4. Geolocation: MaxMind city database behind a circuit breaker,
//     or a no-op resolver when disabled
//  5. Anonymizer: VPN and Tor exit-node lists with periodic reload
//  6. Trust engine, threat detectors, and the HTTP enforcement surface
//  7. Supervision tree: suture v4 runs the HTTP server and the
//     maintenance services, restarting them on failure
//
// # Configuration
//
// Required:
//   - STUDYGATE_AUTH__JWT_SECRET: 32+ character token-verification secret
//
// Common:
//   - STUDYGATE_SERVER__PORT: listen port (default 8460)
//   - STUDYGATE_STORE__BACKEND: "memory" or "badger"
//   - STUDYGATE_GEO__ENABLED / STUDYGATE_GEO__DATABASE_PATH: MaxMind lookup
//   - STUDYGATE_ANONYMIZER__VPN_LIST_PATH / TOR_LIST_PATH: exit-node lists
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener stops
// accepting connections, in-flight requests get 10 seconds to finish,
// then the store is closed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/studygate/internal/anonymizer"
	"github.com/tomtom215/studygate/internal/audit"
	"github.com/tomtom215/studygate/internal/auth"
	"github.com/tomtom215/studygate/internal/config"
	"github.com/tomtom215/studygate/internal/enforce"
	"github.com/tomtom215/studygate/internal/evidence"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/registry"
	"github.com/tomtom215/studygate/internal/store"
	"github.com/tomtom215/studygate/internal/supervisor"
	"github.com/tomtom215/studygate/internal/threat"
	"github.com/tomtom215/studygate/internal/trust"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors log through the default logger; Init has not run yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("store_backend", cfg.Store.Backend).
		Bool("geo_enabled", cfg.Geo.Enabled).
		Int("port", cfg.Server.Port).
		Msg("Starting Studygate")

	if cfg.Auth.JWTSecret == "" {
		logging.Fatal().Msg("STUDYGATE_AUTH__JWT_SECRET is required")
	}

	// Shared state store. Memory for single-node, badger for persistence
	// across restarts.
	var st store.Store
	switch cfg.Store.Backend {
	case "badger":
		bs, err := store.OpenBadgerStore(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open badger store")
		}
		st = bs
	default:
		st = store.NewMemoryStore()
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Geolocation resolver. The circuit breaker keeps a corrupt or
	// unreadable database from stalling every request.
	var resolver geo.Resolver = geo.NoopResolver{}
	if cfg.Geo.Enabled {
		mm, err := geo.NewMaxMindResolver(cfg.Geo.DatabasePath)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Geo.DatabasePath).Msg("Failed to open geolocation database")
		}
		defer func() {
			if err := mm.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing geolocation database")
			}
		}()
		resolver = geo.NewBreakerResolver(mm)
		logging.Info().Str("database", cfg.Geo.DatabasePath).Msg("Geolocation enabled")
	} else {
		logging.Info().Msg("Geolocation disabled, locations resolve as unknown")
	}

	// Anonymizer lists. An initial best-effort load happens here; the
	// supervised updater takes over refreshing.
	anonLookup := anonymizer.NewLookup()
	updater := anonymizer.NewUpdater(anonLookup, cfg.Anonymizer.VPNListPath, cfg.Anonymizer.TorListPath, cfg.Anonymizer.RefreshInterval)
	updater.Reload()

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	security := logging.NewSecurityLogger()
	reg := registry.New(st, registry.Options{
		DeviceTTL:         cfg.Trust.DeviceTTL,
		LocationTTL:       cfg.Trust.LocationTTL,
		MaxKnownLocations: cfg.Trust.MaxKnownLocations,
		BaselineTTL:       cfg.Trust.BaselineTTL,
	})
	auditLog := audit.NewLogger(security)
	engine := trust.NewEngine(reg, auditLog, security, cfg.Trust)
	detectors := threat.New(st, cfg.Threat, security)
	extractor := evidence.NewExtractor(resolver, anonLookup, st)

	gate := enforce.NewGate(engine, detectors, extractor, reg, auditLog, security, st, cfg.Trust.QuarantineDuration)
	router := gate.Router(cfg.Server, jwtManager)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	tree.AddMaintenanceService(supervisor.NewJanitor(st, cfg.Store.SweepInterval))
	tree.AddMaintenanceService(updater)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	logging.Info().Str("addr", server.Addr).Msg("Studygate listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-errCh; err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor stopped with error")
		}
	case err := <-errCh:
		logging.Error().Err(err).Msg("Supervisor exited unexpectedly")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprintf("%v", svc.Service)).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Studygate stopped")
}
