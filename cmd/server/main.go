// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package main is the entry point for the Streamledger server.
//
// Streamledger polls a Jellyfin server for active playback sessions and
// reconciles them into a durable playback ledger: an append-mostly history
// table in DuckDB plus a live mirror of in-flight streams and an ephemeral
// BadgerDB working set for diffing between polls.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables over an optional YAML file over
//     built-in defaults (Koanf v2)
//  2. Database: DuckDB ledger (history, live mirror, dimensions)
//  3. Cache: BadgerDB working set (session snapshots, telemetry debounce)
//  4. GeoIP: ip-api.com resolver with durable caching (optional)
//  5. Notifications: playback-start dispatch to log or webhook (optional)
//  6. Poller: circuit-broken Jellyfin client, adaptive scheduler, reconciler
//  7. Supervisor: suture tree running the poller and the ops HTTP server
//
// # Configuration
//
//	export JELLYFIN_URL=http://localhost:8096
//	export JELLYFIN_API_KEY=your-api-key
//	./streamledger
//
// Without JELLYFIN_URL the server still starts, serves /healthz and
// /metrics, and logs that polling is inactive.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the supervisor drains its
// services, in-flight HTTP requests get 10 seconds to finish, and durable
// state is left to be recovered by the next start's crash recovery pass.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/streamledger/internal/api"
	"github.com/tomtom215/streamledger/internal/cache"
	"github.com/tomtom215/streamledger/internal/config"
	"github.com/tomtom215/streamledger/internal/database"
	"github.com/tomtom215/streamledger/internal/geoip"
	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/notify"
	"github.com/tomtom215/streamledger/internal/supervisor"
	"github.com/tomtom215/streamledger/internal/supervisor/services"
	"github.com/tomtom215/streamledger/internal/sync"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Bool("jellyfin_configured", cfg.Jellyfin.IsConfigured()).
		Str("db_path", cfg.Database.Path).
		Str("cache_path", cfg.Cache.Path).
		Msg("Starting Streamledger")

	// Durable ledger
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Ephemeral working set
	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open session cache")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session cache")
		}
	}()

	// Geolocation with durable caching
	resolver := geoip.NewResolver(db, geoip.NewIPAPIProvider(), cfg.GeoIP.Enabled)
	if cfg.GeoIP.Enabled {
		logging.Info().Str("provider", "ip-api").Msg("GeoIP lookups enabled")
	}

	// Playback-start notifications
	policy, err := notify.ParsePolicy(cfg.Notify.Policy)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid notification policy")
	}
	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}
	dispatcher := notify.NewDispatcher(notifier, policy, cfg.Notify.Enabled)
	if cfg.Notify.Enabled {
		logging.Info().
			Str("channel", notifier.Name()).
			Str("policy", string(policy)).
			Msg("Playback notifications enabled")
	}

	// Session source behind a circuit breaker. A nil client leaves the
	// poller dormant but keeps the ops endpoints serving.
	var client sync.JellyfinClientInterface
	if cfg.Jellyfin.IsConfigured() {
		client = sync.NewJellyfinCircuitBreakerClient(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey)
		if err := client.Ping(context.Background()); err != nil {
			logging.Warn().Err(err).Msg("Failed to connect to Jellyfin (will retry)")
		} else {
			logging.Info().Str("url", cfg.Jellyfin.URL).Msg("Connected to Jellyfin")
		}
	}

	scheduler := sync.NewScheduler(cfg.Poller.ActiveInterval, cfg.Poller.IdleInterval)
	reconciler := sync.NewReconciler(db, store, resolver, dispatcher, scheduler.ActiveInterval)
	poller := sync.NewPoller(client, reconciler, scheduler)

	// Ops HTTP server
	router := api.NewRouter(db, client, scheduler)
	server := &http.Server{
		Addr:           cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:        router.Handler(),
		ReadTimeout:    cfg.Server.Timeout,
		WriteTimeout:   cfg.Server.Timeout,
		MaxHeaderBytes: 1 << 20,
	}

	// Supervisor tree bridging zerolog to slog for sutureslog
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddPollerService(services.NewPollerService(poller))
	tree.AddOpsService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Ops HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
