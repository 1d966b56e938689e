// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

/*
Package metrics provides Prometheus metrics collection for observability.

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:3858/metrics

# Available Metrics

Poll cycle:
  - poll_cycles_total: Completed poll cycles (counter)
    Labels: outcome (success, failure)
  - poll_cycle_duration_seconds: Cycle latency (histogram)
  - active_sessions: Live sessions in the latest poll (gauge)
  - poll_consecutive_errors: Current failure streak (gauge)

Session lifecycle:
  - sessions_started_total: Playback starts (counter)
    Labels: kind (new, item_change)
  - sessions_stopped_total: Playback stops (counter)
    Labels: cause (disappeared, item_change, ghost, orphan)
  - sessions_skipped_total: Sessions skipped for missing identifiers (counter)
  - telemetry_transitions_total: Debounced telemetry transitions (counter)
    Labels: kind (pause, audio, subtitle)

Collaborators:
  - notifications_total: Start notifications (counter)
    Labels: outcome (sent, suppressed, failure)
  - circuit_breaker_state / _transitions_total / _requests_total
  - stream_cache_operations_total, db_query_errors_total, geoip_lookups_total

All collectors are registered via promauto at package load; importing this
package is sufficient to register them on the default registry.
*/
package metrics
