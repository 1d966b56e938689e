// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

/*
Package supervisor provides process supervision for Streamledger using suture v4.

This package implements a hierarchical supervisor tree that manages the lifecycle
of all long-running services in the application. It provides Erlang/OTP-style
supervision with automatic restart, failure isolation, and graceful shutdown.

# Overview

The supervisor tree organizes services into two layers for failure isolation:

	RootSupervisor ("streamledger")
	├── PollerSupervisor ("poller-layer")
	│   └── PollerService
	└── OpsSupervisor ("ops-layer")
	    └── HTTPServerService

This hierarchy ensures that a crash in the polling loop does not take down
the operations endpoints (metrics, health), and vice versa.

# Restart Behavior

Each supervisor uses suture's failure accounting: FailureThreshold failures
within the FailureDecay window trigger a FailureBackoff pause before the
supervisor resumes restarting its children. Defaults match suture's own
(5 failures, 30s decay, 15s backoff, 10s shutdown timeout) and can be
overridden via TreeConfig.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddPollerService(services.NewPollerService(poller))
	tree.AddOpsService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)
*/
package supervisor
