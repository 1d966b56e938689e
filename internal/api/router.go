// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package api provides the HTTP operations surface using Chi router.
// It exposes /healthz and /metrics only; there is no browser-facing UI.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/streamledger/internal/logging"
)

// Pinger reports upstream reachability. Satisfied by *database.DB and the
// Jellyfin client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegimeSource reports the poll scheduler's current regime.
// Satisfied by *sync.Scheduler.
type RegimeSource interface {
	Regime() string
}

// Router assembles the operations endpoints.
type Router struct {
	db        Pinger
	jellyfin  Pinger
	scheduler RegimeSource
	startTime time.Time
}

// NewRouter creates an operations router. jellyfin and scheduler may be nil
// when the session source is not configured.
func NewRouter(db Pinger, jellyfin Pinger, scheduler RegimeSource) *Router {
	return &Router{
		db:        db,
		jellyfin:  jellyfin,
		scheduler: scheduler,
		startTime: time.Now(),
	}
}

// Handler builds the chi handler for the operations server.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", rt.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// healthStatus is the /healthz response body.
type healthStatus struct {
	Status            string    `json:"status"`
	DatabaseConnected bool      `json:"database_connected"`
	JellyfinConnected bool      `json:"jellyfin_connected"`
	PollRegime        string    `json:"poll_regime,omitempty"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	dbConnected := rt.db != nil && rt.db.Ping(r.Context()) == nil
	jellyfinConnected := rt.jellyfin != nil && rt.jellyfin.Ping(r.Context()) == nil

	// The ledger stays useful without a reachable session source, so only a
	// broken database degrades the status.
	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	regime := ""
	if rt.scheduler != nil {
		regime = rt.scheduler.Regime()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, &healthStatus{
		Status:            status,
		DatabaseConnected: dbConnected,
		JellyfinConnected: jellyfinConnected,
		PollRegime:        regime,
		UptimeSeconds:     time.Since(rt.startTime).Seconds(),
		Timestamp:         time.Now().UTC(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
