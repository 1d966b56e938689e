// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"context"

	"github.com/tomtom215/streamledger/internal/logging"
)

// Poller ties the session source, the reconciler, and the scheduler into
// the long-running poll loop.
type Poller struct {
	client     JellyfinClientInterface
	reconciler *Reconciler
	scheduler  *Scheduler
}

// NewPoller creates the poll loop. A nil client means the media server
// connection is not configured; Run then reports "not active" and idles
// until cancelled instead of failing.
func NewPoller(client JellyfinClientInterface, reconciler *Reconciler, scheduler *Scheduler) *Poller {
	return &Poller{
		client:     client,
		reconciler: reconciler,
		scheduler:  scheduler,
	}
}

// Run performs startup recovery and then polls until the context is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if p.client == nil {
		logging.Warn().Msg("Media server connection not configured, session poller not active")
		<-ctx.Done()
		return ctx.Err()
	}

	if err := p.reconciler.RecoverAtStartup(ctx); err != nil {
		// The ghost pass at the end of the first cycle covers whatever
		// recovery could not finish.
		logging.Error().Err(err).Msg("Startup recovery incomplete")
	}

	logging.Info().
		Dur("active_interval", p.scheduler.ActiveInterval()).
		Dur("idle_interval", p.scheduler.IdleInterval()).
		Msg("Starting session poller")

	return p.scheduler.Run(ctx, p.cycle)
}

// cycle is one scheduler wake: fetch the live list, reconcile.
func (p *Poller) cycle(ctx context.Context) (int, error) {
	sessions, err := p.client.GetActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	return p.reconciler.Reconcile(ctx, sessions)
}
