// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that configuration is coherent. Connection settings may
// be absent; the poller reports "not active" in that case instead of the
// process refusing to start.
func (c *Config) Validate() error {
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateJellyfin() error {
	if c.Jellyfin.URL == "" {
		return nil // not configured is valid; the cycle short-circuits
	}

	parsed, err := url.Parse(c.Jellyfin.URL)
	if err != nil {
		return fmt.Errorf("JELLYFIN_URL is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("JELLYFIN_URL must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("JELLYFIN_URL has no host: %q", c.Jellyfin.URL)
	}
	return nil
}

func (c *Config) validatePoller() error {
	if c.Poller.ActiveInterval <= 0 {
		return fmt.Errorf("POLLER_ACTIVE_INTERVAL must be positive, got %v", c.Poller.ActiveInterval)
	}
	if c.Poller.IdleInterval <= 0 {
		return fmt.Errorf("POLLER_IDLE_INTERVAL must be positive, got %v", c.Poller.IdleInterval)
	}
	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Policy {
	case "all", "transcode-only", "new-ip-only":
	default:
		return fmt.Errorf("NOTIFY_POLICY must be one of all, transcode-only, new-ip-only; got %q", c.Notify.Policy)
	}

	if c.Notify.WebhookURL != "" {
		parsed, err := url.Parse(c.Notify.WebhookURL)
		if err != nil {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is not a valid URL: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL must use http or https, got %q", parsed.Scheme)
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be 1-65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled", "":
	default:
		return fmt.Errorf("LOGGING_LEVEL %q is not a valid log level", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console", "":
		return nil
	default:
		return fmt.Errorf("LOGGING_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
