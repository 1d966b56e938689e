// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package geoip resolves client IP addresses to coarse geolocation
// (country, city) for history enrichment. Lookups are cached durably so
// each distinct address hits the external service at most once. A failed
// or disabled lookup never blocks session recording; the history entry is
// simply written without location fields.
package geoip

import (
	"context"
	"net"

	"github.com/tomtom215/streamledger/internal/models"
)

// Provider defines a geolocation lookup service.
type Provider interface {
	// Lookup returns geolocation data for the given IP address.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}

// IsPrivateIP reports whether the IP address is in a private or local
// range. Private IPs cannot be geolocated and get a fixed placeholder.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	// RFC 1918 ranges plus loopback, link-local and IPv6 local scopes.
	for _, cidr := range privateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic("geoip: bad CIDR literal " + c)
		}
		nets = append(nets, network)
	}
	return nets
}
