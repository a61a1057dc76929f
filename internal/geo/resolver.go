// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package geo resolves client IP addresses to coarse places (country and
// city). Resolution is best-effort: the trust engine treats an unresolved
// place as partial evidence, never as an error, so every failure path here
// maps to ErrUnresolved.
package geo

import (
	"context"
	"errors"
)

// ErrUnresolved means no place could be determined for the address.
// Callers fail open on it.
var ErrUnresolved = errors.New("geo: address unresolved")

// Place is a coarse geographic location.
type Place struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// IsZero reports whether no component of the place is known.
func (p Place) IsZero() bool {
	return p.Country == "" && p.City == ""
}

// Resolver maps an IP address string to a Place.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (Place, error)
}

// NoopResolver is used when geolocation is disabled. Every lookup is
// unresolved.
type NoopResolver struct{}

// Resolve always returns ErrUnresolved.
func (NoopResolver) Resolve(ctx context.Context, ip string) (Place, error) {
	return Place{}, ErrUnresolved
}

var _ Resolver = NoopResolver{}
