// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

/*
Package services provides suture.Service wrappers for Streamledger components.

This package adapts application components to the suture v4 supervision model,
translating their lifecycle patterns (Run, ListenAndServe) into suture's
context-aware Serve pattern.

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle graceful shutdown via context cancellation, error
propagation for supervisor restart decisions, and service identification
via fmt.Stringer.
*/
package services
