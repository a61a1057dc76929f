// Studygate - Continuous Trust Evaluation for Education SaaS
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studygate

// Package config loads and validates Studygate configuration via Koanf v2
// with layered sources (highest priority wins): environment variables,
// config file, built-in defaults.
//
// Validation runs once at startup. A misconfigured engine (for example,
// threat-tier thresholds out of order) refuses to start; configuration
// errors never surface per request.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the Studygate server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Store      StoreConfig      `koanf:"store"`
	Geo        GeoConfig        `koanf:"geo"`
	Anonymizer AnonymizerConfig `koanf:"anonymizer"`
	Auth       AuthConfig       `koanf:"auth"`
	Trust      TrustConfig      `koanf:"trust"`
	Threat     ThreatConfig     `koanf:"threat"`
}

// ServerConfig holds HTTP server settings for the enforcement point.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// OuterRateLimit is the coarse per-IP request budget applied by
	// go-chi/httprate in front of the engine's own detectors.
	OuterRateLimit  int           `koanf:"outer_rate_limit"`
	OuterRateWindow time.Duration `koanf:"outer_rate_window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StoreConfig selects the shared key/value store backend.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// Path is the badger database directory (badger backend only).
	Path string `koanf:"path"`

	// SweepInterval is how often the janitor reclaims expired entries.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// GeoConfig holds geolocation resolver settings.
type GeoConfig struct {
	// Enabled turns IP geolocation on. When disabled every location
	// resolves as unknown, which the engine treats as partial evidence.
	Enabled bool `koanf:"enabled"`

	// DatabasePath is the MaxMind city database (.mmdb) path.
	DatabasePath string `koanf:"database_path"`
}

// AnonymizerConfig holds VPN/Tor exit-node list settings.
type AnonymizerConfig struct {
	// VPNListPath and TorListPath point at newline-delimited IP list files.
	VPNListPath string `koanf:"vpn_list_path"`
	TorListPath string `koanf:"tor_list_path"`

	// RefreshInterval is how often the updater reloads the list files.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// AuthConfig holds identity extraction settings for the enforcement point.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. Required, 32+ chars.
	JWTSecret string `koanf:"jwt_secret"`
}

// TrustConfig holds the scoring thresholds and registry TTLs.
type TrustConfig struct {
	// Tier thresholds, applied in order with >= comparisons:
	// score >= LowThreshold is low, >= MediumThreshold medium,
	// >= HighThreshold high, below that critical.
	LowThreshold    float64 `koanf:"low_threshold"`
	MediumThreshold float64 `koanf:"medium_threshold"`
	HighThreshold   float64 `koanf:"high_threshold"`

	// MFAThreshold is the score below which a medium-tier request is
	// challenged instead of allowed.
	MFAThreshold float64 `koanf:"mfa_threshold"`

	// DeviceTTL is how long a registered device stays trusted.
	DeviceTTL time.Duration `koanf:"device_ttl"`

	// LocationTTL applies to a user's whole known-location list.
	LocationTTL time.Duration `koanf:"location_ttl"`

	// MaxKnownLocations caps the known-location list per user.
	MaxKnownLocations int `koanf:"max_known_locations"`

	// BaselineTTL bounds the per-user behavior baseline cache.
	BaselineTTL time.Duration `koanf:"baseline_ttl"`

	// BlockDuration is the advisory duration attached to BLOCK directives.
	BlockDuration time.Duration `koanf:"block_duration"`

	// QuarantineDuration is the default quarantine length.
	QuarantineDuration time.Duration `koanf:"quarantine_duration"`
}

// DetectorConfig holds one rate detector's window and threshold.
type DetectorConfig struct {
	Window    time.Duration `koanf:"window"`
	Threshold int64         `koanf:"threshold"`
}

// ThreatConfig holds the three rate-based threat detectors.
type ThreatConfig struct {
	BruteForce  DetectorConfig `koanf:"brute_force"`
	Enumeration DetectorConfig `koanf:"enumeration"`
	Flood       DetectorConfig `koanf:"flood"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8460,
			Timeout:         30 * time.Second,
			OuterRateLimit:  300,
			OuterRateWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:       "memory",
			Path:          "/data/studygate",
			SweepInterval: 5 * time.Minute,
		},
		Geo: GeoConfig{
			Enabled:      false,
			DatabasePath: "",
		},
		Anonymizer: AnonymizerConfig{
			VPNListPath:     "",
			TorListPath:     "",
			RefreshInterval: time.Hour,
		},
		Auth: AuthConfig{
			JWTSecret: "",
		},
		Trust: TrustConfig{
			LowThreshold:       0.8,
			MediumThreshold:    0.6,
			HighThreshold:      0.4,
			MFAThreshold:       0.5,
			DeviceTTL:          30 * 24 * time.Hour,
			LocationTTL:        7 * 24 * time.Hour,
			MaxKnownLocations:  10,
			BaselineTTL:        time.Hour,
			BlockDuration:      time.Hour,
			QuarantineDuration: 24 * time.Hour,
		},
		Threat: ThreatConfig{
			BruteForce:  DetectorConfig{Window: 300 * time.Second, Threshold: 10},
			Enumeration: DetectorConfig{Window: 60 * time.Second, Threshold: 20},
			Flood:       DetectorConfig{Window: 60 * time.Second, Threshold: 100},
		},
	}
}

// Validate checks the configuration for internal consistency.
// It must be called once at startup; the server refuses to boot on error.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: badger backend requires store.path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if err := c.Trust.validate(); err != nil {
		return err
	}
	if err := c.Threat.validate(); err != nil {
		return err
	}

	if c.Geo.Enabled && c.Geo.DatabasePath == "" {
		return fmt.Errorf("%w: geo enabled without database_path", ErrInvalidConfig)
	}

	if len(c.Auth.JWTSecret) > 0 && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%w: jwt_secret must be at least 32 characters", ErrInvalidConfig)
	}

	return nil
}

func (t *TrustConfig) validate() error {
	for name, v := range map[string]float64{
		"low_threshold":    t.LowThreshold,
		"medium_threshold": t.MediumThreshold,
		"high_threshold":   t.HighThreshold,
		"mfa_threshold":    t.MFAThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%w: trust.%s %.2f outside [0,1]", ErrInvalidConfig, name, v)
		}
	}

	// Tiers are mapped with ordered >= comparisons; equal or inverted
	// thresholds would make some tier unreachable.
	if !(t.LowThreshold > t.MediumThreshold && t.MediumThreshold > t.HighThreshold) {
		return fmt.Errorf("%w: trust thresholds must be strictly ordered low > medium > high (got %.2f, %.2f, %.2f)",
			ErrInvalidConfig, t.LowThreshold, t.MediumThreshold, t.HighThreshold)
	}

	if t.MaxKnownLocations < 1 {
		return fmt.Errorf("%w: trust.max_known_locations must be positive", ErrInvalidConfig)
	}
	if t.DeviceTTL <= 0 || t.LocationTTL <= 0 {
		return fmt.Errorf("%w: trust registry TTLs must be positive", ErrInvalidConfig)
	}

	return nil
}

func (t *ThreatConfig) validate() error {
	for name, d := range map[string]DetectorConfig{
		"brute_force": t.BruteForce,
		"enumeration": t.Enumeration,
		"flood":       t.Flood,
	} {
		if d.Window <= 0 {
			return fmt.Errorf("%w: threat.%s.window must be positive", ErrInvalidConfig, name)
		}
		if d.Threshold < 1 {
			return fmt.Errorf("%w: threat.%s.threshold must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}
