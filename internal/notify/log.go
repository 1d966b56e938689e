// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package notify

import (
	"context"

	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/models"
)

// LogNotifier writes playback starts to the structured log. It is the
// default sink when no webhook URL is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Name returns the notifier name.
func (n *LogNotifier) Name() string {
	return "log"
}

// Notify emits one Info line per announced start. Never fails.
func (n *LogNotifier) Notify(_ context.Context, event *models.StartEvent) error {
	logging.Info().
		Str("session_id", event.SessionID).
		Str("user", event.UserName).
		Str("item", event.ItemName).
		Str("client", event.Client).
		Str("device", event.DeviceName).
		Str("ip", event.IPAddress).
		Str("play_method", string(event.PlayMethod)).
		Bool("new_ip", event.NewIP).
		Msg("Playback started")
	return nil
}
