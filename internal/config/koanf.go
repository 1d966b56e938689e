// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamledger/config.yaml",
	"/etc/streamledger/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefixes are the top-level config sections recognized in environment
// variable names (JELLYFIN_URL -> jellyfin.url). Unrecognized variables
// are ignored so the process environment cannot pollute the config tree.
var envPrefixes = map[string]bool{
	"jellyfin": true,
	"database": true,
	"cache":    true,
	"poller":   true,
	"geoip":    true,
	"notify":   true,
	"server":   true,
	"logging":  true,
}

// defaultConfig returns a Config with all sensible default values.
func defaultConfig() *Config {
	return &Config{
		Jellyfin: JellyfinConfig{
			URL:    "",
			APIKey: "",
		},
		Database: DatabaseConfig{
			Path:      "/data/streamledger.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Cache: CacheConfig{
			Path: "/data/streamcache",
		},
		Poller: PollerConfig{
			ActiveInterval: 10 * time.Second,
			IdleInterval:   60 * time.Second,
		},
		GeoIP: GeoIPConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Enabled:    false,
			Policy:     "all",
			WebhookURL: "",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3858,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if found)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// JELLYFIN_API_KEY -> jellyfin.api_key, POLLER_ACTIVE_INTERVAL ->
	// poller.active_interval, and so on.
	envProvider := env.Provider("", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps an environment variable name to a koanf path, or ""
// for variables that do not belong to a known config section.
func envTransform(name string) string {
	parts := strings.SplitN(strings.ToLower(name), "_", 2)
	if len(parts) != 2 || !envPrefixes[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// findConfigFile returns the first config file path that exists, checking
// the CONFIG_PATH override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
