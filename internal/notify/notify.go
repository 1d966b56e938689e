// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package notify delivers playback-start notifications. A policy decides
// which starts are announced; delivery failures are logged and swallowed
// so a dead notification endpoint can never stall the poll cycle.
package notify

import (
	"context"
	"fmt"

	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/metrics"
	"github.com/tomtom215/streamledger/internal/models"
)

// Notifier delivers a single playback-start event.
type Notifier interface {
	// Notify delivers the event. Implementations return an error on
	// delivery failure; the dispatcher decides what to do with it.
	Notify(ctx context.Context, event *models.StartEvent) error

	// Name returns the notifier name for logging.
	Name() string
}

// Policy selects which playback starts produce a notification.
type Policy string

const (
	// PolicyAll announces every start.
	PolicyAll Policy = "all"

	// PolicyTranscodeOnly announces only transcoded playback.
	PolicyTranscodeOnly Policy = "transcode-only"

	// PolicyNewIPOnly announces only starts from an address the user has
	// never played from before.
	PolicyNewIPOnly Policy = "new-ip-only"
)

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAll, PolicyTranscodeOnly, PolicyNewIPOnly:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown notification policy: %q", s)
	}
}

// Matches reports whether the event passes the policy gate.
func (p Policy) Matches(event *models.StartEvent) bool {
	switch p {
	case PolicyTranscodeOnly:
		return event.PlayMethod == models.PlayMethodTranscode
	case PolicyNewIPOnly:
		return event.NewIP
	default:
		return true
	}
}

// Dispatcher applies the policy gate and hands matching events to the
// underlying notifier. It is the only thing the reconciler talks to.
type Dispatcher struct {
	notifier Notifier
	policy   Policy
	enabled  bool
}

// NewDispatcher creates a dispatcher. With enabled=false or a nil
// notifier every PlaybackStarted call is a no-op.
func NewDispatcher(notifier Notifier, policy Policy, enabled bool) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		policy:   policy,
		enabled:  enabled,
	}
}

// PlaybackStarted announces a playback start if the policy matches.
// Delivery failures are logged at Warn and never propagated.
func (d *Dispatcher) PlaybackStarted(ctx context.Context, event *models.StartEvent) {
	if !d.enabled || d.notifier == nil || event == nil {
		return
	}

	if !d.policy.Matches(event) {
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	if err := d.notifier.Notify(ctx, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).
			Str("notifier", d.notifier.Name()).
			Str("session_id", event.SessionID).
			Str("user", event.UserName).
			Msg("Playback notification failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
