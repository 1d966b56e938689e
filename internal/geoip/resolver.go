// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package geoip

import (
	"context"
	"time"

	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/metrics"
	"github.com/tomtom215/streamledger/internal/models"
)

// Store is the durable cache of completed lookups.
type Store interface {
	GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error)
	UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error
}

// Resolver answers geolocation queries from the durable cache first and
// falls back to the configured provider on a miss. All failure modes
// degrade to "no location" instead of propagating an error.
type Resolver struct {
	store    Store
	provider Provider
	enabled  bool
}

// NewResolver creates a resolver. A nil provider or enabled=false makes
// every Resolve call return nil without touching the network.
func NewResolver(store Store, provider Provider, enabled bool) *Resolver {
	return &Resolver{
		store:    store,
		provider: provider,
		enabled:  enabled,
	}
}

// localPlaceholder is returned for addresses on private networks, which
// no external service can geolocate.
func localPlaceholder(ipAddress string) *models.Geolocation {
	return &models.Geolocation{
		IPAddress:   ipAddress,
		Country:     "Local Network",
		City:        "",
		LastUpdated: time.Now().UTC(),
	}
}

// Resolve returns the geolocation for an IP address, or nil when lookup
// is disabled, the address is empty, or the lookup fails. Resolve never
// returns an error: location data is best-effort enrichment.
func (r *Resolver) Resolve(ctx context.Context, ipAddress string) *models.Geolocation {
	if !r.enabled || r.provider == nil || ipAddress == "" {
		return nil
	}

	if IsPrivateIP(ipAddress) {
		metrics.GeoIPLookupsTotal.WithLabelValues("private").Inc()
		return localPlaceholder(ipAddress)
	}

	if cached, err := r.store.GetGeolocation(ctx, ipAddress); err != nil {
		logging.Warn().Err(err).Str("ip", ipAddress).Msg("GeoIP cache read failed")
	} else if cached != nil {
		metrics.GeoIPLookupsTotal.WithLabelValues("cached").Inc()
		return cached
	}

	geo, err := r.provider.Lookup(ctx, ipAddress)
	if err != nil {
		metrics.GeoIPLookupsTotal.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).
			Str("ip", ipAddress).
			Str("provider", r.provider.Name()).
			Msg("GeoIP lookup failed")
		return nil
	}
	metrics.GeoIPLookupsTotal.WithLabelValues("resolved").Inc()

	if err := r.store.UpsertGeolocation(ctx, geo); err != nil {
		logging.Warn().Err(err).Str("ip", ipAddress).Msg("GeoIP cache write failed")
	}
	return geo
}
