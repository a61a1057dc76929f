// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package geo

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/metrics"
)

// BreakerResolver wraps a Resolver with a circuit breaker. A corrupt or
// thrashing geo database must not add latency to every evaluation, so
// after sustained failures lookups short-circuit to ErrUnresolved until
// the breaker half-opens.
//
// ErrUnresolved itself does not count as a failure: an address genuinely
// absent from the database is a normal outcome.
type BreakerResolver struct {
	inner Resolver
	cb    *gobreaker.CircuitBreaker[Place]
}

// NewBreakerResolver wraps inner with breaker protection.
// The breaker opens after a 60% failure rate over at least 10 requests,
// and probes again after 30 seconds.
func NewBreakerResolver(inner Resolver) *BreakerResolver {
	cb := gobreaker.NewCircuitBreaker[Place](gobreaker.Settings{
		Name:        "geo-resolver",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Geo resolver breaker state change")
		},
	})

	return &BreakerResolver{inner: inner, cb: cb}
}

// Resolve runs the inner lookup through the breaker.
func (r *BreakerResolver) Resolve(ctx context.Context, ip string) (Place, error) {
	place, err := r.cb.Execute(func() (Place, error) {
		place, err := r.inner.Resolve(ctx, ip)
		if errors.Is(err, ErrUnresolved) {
			// Not a backend failure; report success with a zero place.
			return Place{}, nil
		}
		return place, err
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.GeoLookups.WithLabelValues("breaker_open").Inc()
		}
		return Place{}, ErrUnresolved
	}
	if place.IsZero() {
		return Place{}, ErrUnresolved
	}
	return place, nil
}

var _ Resolver = (*BreakerResolver)(nil)
