// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package services

import (
	"context"
	"errors"
	"fmt"
)

// Runner is the lifecycle contract for components that block in Run until
// their context is canceled. Satisfied by *sync.Poller.
type Runner interface {
	Run(ctx context.Context) error
}

// PollerService wraps the session poller as a supervised service.
//
// The poller's Run method already follows the context-aware blocking
// pattern suture expects, so this wrapper only normalizes the return
// value: context cancellation is a clean stop, anything else is a
// failure that triggers a supervised restart.
type PollerService struct {
	runner Runner
	name   string
}

// NewPollerService creates a new poller service wrapper.
//
// Example usage:
//
//	poller := sync.NewPoller(client, reconciler, scheduler)
//	svc := services.NewPollerService(poller)
//	tree.AddPollerService(svc)
func NewPollerService(runner Runner) *PollerService {
	return &PollerService{
		runner: runner,
		name:   "session-poller",
	}
}

// Serve implements suture.Service.
func (s *PollerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("session poller failed: %w", err)
	}
	return err
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *PollerService) String() string {
	return s.name
}
