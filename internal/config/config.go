// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package config holds application configuration loaded via Koanf v2 with
// layered sources (highest priority wins): environment variables, then an
// optional YAML config file, then built-in defaults.
//
// Config is immutable after Load() and safe for concurrent reads. The two
// poll intervals are additionally runtime-mutable through the scheduler's
// setter; the values here are only their initial state.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Jellyfin JellyfinConfig `koanf:"jellyfin"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Poller   PollerConfig   `koanf:"poller"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	Notify   NotifyConfig   `koanf:"notify"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// JellyfinConfig holds the media server connection settings. When URL or
// APIKey is empty the poller reports "not active" instead of failing.
type JellyfinConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
}

// IsConfigured reports whether the connection settings are present.
func (c *JellyfinConfig) IsConfigured() bool {
	return c.URL != "" && c.APIKey != ""
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// CacheConfig holds the BadgerDB ephemeral cache settings.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// PollerConfig holds the adaptive scheduler's initial intervals. Both are
// clamped to safe floors at read time and mutable at runtime without a
// restart.
type PollerConfig struct {
	ActiveInterval time.Duration `koanf:"active_interval"`
	IdleInterval   time.Duration `koanf:"idle_interval"`
}

// GeoIPConfig holds geolocation lookup settings.
type GeoIPConfig struct {
	Enabled bool `koanf:"enabled"`
}

// NotifyConfig holds the start-notification policy.
// Policy: "all", "transcode-only" or "new-ip-only". An empty WebhookURL
// routes notifications to the structured log instead of an HTTP endpoint.
type NotifyConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Policy     string `koanf:"policy"`
	WebhookURL string `koanf:"webhook_url"`
}

// ServerConfig holds the ops HTTP endpoint settings (/metrics, /healthz).
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
