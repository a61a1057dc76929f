// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/tomtom215/studygate/internal/metrics"
)

// MaxMindResolver resolves places from a local MaxMind City database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the .mmdb file at path.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Resolve looks up the city record for ip. Addresses missing from the
// database (private ranges included) return ErrUnresolved.
func (r *MaxMindResolver) Resolve(ctx context.Context, ip string) (Place, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		metrics.GeoLookups.WithLabelValues("unresolved").Inc()
		return Place{}, ErrUnresolved
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		metrics.GeoLookups.WithLabelValues("unresolved").Inc()
		return Place{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	place := Place{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if place.IsZero() {
		metrics.GeoLookups.WithLabelValues("unresolved").Inc()
		return Place{}, ErrUnresolved
	}

	metrics.GeoLookups.WithLabelValues("resolved").Inc()
	return place, nil
}

// Close releases the database reader.
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

var _ Resolver = (*MaxMindResolver)(nil)
