// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package sync implements the session polling and reconciliation engine.
//
// Each cycle fetches the live session list from the media server, diffs it
// against the ephemeral snapshot cache, and reconciles the durable stores:
// new sessions open ledger entries, continuing sessions refresh progress
// and debounced telemetry, disappeared sessions finalize their entries.
// A ghost pass sweeps durable rows whose sessions stopped being observed,
// and a startup orphan pass closes ledger entries left open by a crash.
//
// The adaptive scheduler drives the cycle with three regimes: a short
// interval while sessions are active, a long interval when idle, and a
// fixed backoff while the server is unreachable. All server traffic runs
// through a circuit breaker so a flapping server cannot amplify load.
package sync
