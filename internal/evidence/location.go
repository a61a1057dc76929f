// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

package evidence

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/studygate/internal/anonymizer"
	"github.com/tomtom215/studygate/internal/geo"
	"github.com/tomtom215/studygate/internal/logging"
	"github.com/tomtom215/studygate/internal/store"
)

// anonCacheTTL bounds how long a per-IP anonymizer classification is
// reused before the sets are consulted again.
const anonCacheTTL = time.Hour

// LocationContext is where a request appears to come from.
type LocationContext struct {
	IPAddress string `json:"ip_address"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	IsVPN     bool   `json:"is_vpn"`
	IsTor     bool   `json:"is_tor"`
}

// Place returns the geo place of the context.
func (l LocationContext) Place() geo.Place {
	return geo.Place{Country: l.Country, City: l.City}
}

// Resolved reports whether geolocation produced any place information.
func (l LocationContext) Resolved() bool {
	return l.Country != "" || l.City != ""
}

// Extractor builds location contexts from requests.
type Extractor struct {
	resolver geo.Resolver
	anon     *anonymizer.Lookup
	cache    store.Store
}

// NewExtractor creates a location extractor. The cache store may be nil
// to disable anonymizer-result caching.
func NewExtractor(resolver geo.Resolver, anon *anonymizer.Lookup, cache store.Store) *Extractor {
	return &Extractor{resolver: resolver, anon: anon, cache: cache}
}

// Location extracts the location context for a request. It never fails:
// an unresolvable place leaves country and city empty, which the engine
// scores as partial evidence rather than rejecting the request.
func (e *Extractor) Location(ctx context.Context, r *http.Request) LocationContext {
	ip := ClientIP(r)
	loc := LocationContext{IPAddress: ip}

	if place, err := e.resolver.Resolve(ctx, ip); err == nil {
		loc.Country = place.Country
		loc.City = place.City
	} else if !errors.Is(err, geo.ErrUnresolved) {
		logging.Debug().Err(err).Str("ip", ip).Msg("Geo resolution failed")
	}

	result := e.checkAnonymizer(ctx, ip)
	loc.IsVPN = result.IsVPN
	loc.IsTor = result.IsTor

	return loc
}

// checkAnonymizer classifies ip against the VPN/Tor sets, reusing a
// cached classification when one is fresh. Cache failures fall through
// to a direct set lookup.
func (e *Extractor) checkAnonymizer(ctx context.Context, ip string) anonymizer.Result {
	if e.cache == nil {
		return e.anon.Check(ip)
	}

	key := "anon:" + ip
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var cached anonymizer.Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached
		}
	}

	result := e.anon.Check(ip)
	if raw, err := json.Marshal(result); err == nil {
		if err := e.cache.Set(ctx, key, raw, anonCacheTTL); err != nil {
			logging.Debug().Err(err).Str("ip", ip).Msg("Anonymizer cache write failed")
		}
	}
	return result
}

// ClientIP returns the originating client address: the first hop of a
// single X-Forwarded-For header set by the edge proxy, otherwise the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
