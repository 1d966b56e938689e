// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll cycle metrics.
var (
	// PollCyclesTotal counts completed poll cycles by outcome.
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of completed poll cycles",
		},
		[]string{"outcome"}, // outcome: success, failure
	)

	// PollCycleDuration observes the duration of a full poll cycle,
	// including reconciliation and the ghost pass.
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// ActiveSessions tracks the number of live sessions seen in the
	// most recent successful poll.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of live sessions in the latest poll",
		},
	)

	// ConsecutivePollErrors tracks the current error streak.
	ConsecutivePollErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_consecutive_errors",
			Help: "Number of consecutive failed poll cycles",
		},
	)
)

// Session lifecycle metrics.
var (
	// SessionsStartedTotal counts detected playback starts by kind.
	SessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_started_total",
			Help: "Total playback starts detected",
		},
		[]string{"kind"}, // kind: new, item_change
	)

	// SessionsStoppedTotal counts detected playback stops by cause.
	SessionsStoppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_stopped_total",
			Help: "Total playback stops detected",
		},
		[]string{"cause"}, // cause: disappeared, item_change, ghost, orphan
	)

	// SessionsSkippedTotal counts polled sessions skipped for missing
	// user or item identifiers.
	SessionsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_skipped_total",
			Help: "Total sessions skipped due to missing identifiers",
		},
	)

	// TelemetryTransitionsTotal counts debounced telemetry transitions.
	TelemetryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_transitions_total",
			Help: "Total telemetry state transitions recorded",
		},
		[]string{"kind"}, // kind: pause, audio, subtitle
	)
)

// Notifier metrics.
var (
	// NotificationsTotal counts notifier invocations by outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total start notifications by outcome",
		},
		[]string{"outcome"}, // outcome: sent, suppressed, failure
	)
)

// Circuit breaker metrics.
var (
	// CircuitBreakerState tracks the current breaker state.
	// Values: 0=closed, 1=open, 2=half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// CircuitBreakerRequests counts requests through the breaker by result.
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)
)

// Store metrics.
var (
	// CacheOperationsTotal counts ephemeral cache operations by result.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_cache_operations_total",
			Help: "Total ephemeral stream cache operations",
		},
		[]string{"operation", "result"}, // operation: get, set, delete, scan; result: hit, miss, ok, error
	)

	// DBQueryErrorsTotal counts failed durable store queries.
	DBQueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total failed durable store queries",
		},
		[]string{"operation"},
	)

	// GeoIPLookupsTotal counts geolocation lookups by outcome.
	GeoIPLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookups_total",
			Help: "Total GeoIP lookups by outcome",
		},
		[]string{"outcome"}, // outcome: cached, resolved, private, failure
	)
)
