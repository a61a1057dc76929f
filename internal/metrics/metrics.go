// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package metrics provides Prometheus instrumentation for the trust engine:
// evaluation outcomes, score distribution, rate-detector rejections, registry
// operations, and store health.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trust engine metrics

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_evaluations_total",
			Help: "Total trust evaluations by resulting action and threat tier",
		},
		[]string{"action", "tier"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "studygate_evaluation_duration_seconds",
			Help: "Duration of trust evaluations in seconds",
			// The engine sits on the request hot path; buckets resolve the
			// low tens of milliseconds budget.
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	TrustScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studygate_trust_score",
			Help:    "Distribution of computed trust scores",
			Buckets: prometheus.LinearBuckets(0.0, 0.1, 11),
		},
	)

	EvaluationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studygate_evaluation_errors_total",
			Help: "Total evaluations that degraded to the fail-closed action",
		},
	)

	// Rate-based threat detector metrics

	DetectorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_detector_checks_total",
			Help: "Total rate-detector checks by detector and outcome",
		},
		[]string{"detector", "allowed"},
	)

	// Trust registry metrics

	RegistryOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_registry_operations_total",
			Help: "Total trust registry operations by kind",
		},
		[]string{"operation"}, // register_device, register_location, quarantine, release
	)

	QuarantinedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studygate_quarantined_users",
			Help: "Number of users currently quarantined",
		},
	)

	// Shared store metrics

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_store_errors_total",
			Help: "Total backing-store failures by operation",
		},
		[]string{"operation"},
	)

	// Geolocation metrics

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_geo_lookups_total",
			Help: "Total geolocation lookups by outcome",
		},
		[]string{"outcome"}, // resolved, unresolved, breaker_open
	)
)

// ObserveEvaluation records one completed trust evaluation.
func ObserveEvaluation(action, tier string, score float64, start time.Time) {
	Evaluations.WithLabelValues(action, tier).Inc()
	TrustScores.Observe(score)
	EvaluationDuration.Observe(time.Since(start).Seconds())
}

// ObserveDetectorCheck records one rate-detector decision.
func ObserveDetectorCheck(detector string, allowed bool) {
	DetectorChecks.WithLabelValues(detector, strconv.FormatBool(allowed)).Inc()
}
