// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/streamledger/internal/cache"
	"github.com/tomtom215/streamledger/internal/database"
	"github.com/tomtom215/streamledger/internal/metrics"
	"github.com/tomtom215/streamledger/internal/models"
)

// telemetryKeyPrefix scopes debounce state in the shared badger store,
// separate from the session snapshot keys.
const telemetryKeyPrefix = "telemetry:"

// telemetryState is the last-counted playback state for one open ledger
// entry. Counters increment only when the observed state differs from
// this record, never on steady-state repetition.
type telemetryState struct {
	IsPaused            bool `json:"is_paused"`
	AudioStreamIndex    int  `json:"audio_stream_index"`
	SubtitleStreamIndex int  `json:"subtitle_stream_index"`
}

// TelemetryDebouncer tracks per-entry playback state across polls and
// reports which transitions occurred.
type TelemetryDebouncer struct {
	store *cache.Store
	ttl   func() time.Duration
}

// NewTelemetryDebouncer creates a debouncer backed by the given store.
// ttl is read per write so runtime interval changes take effect without a
// restart; state expiring early only costs one uncounted transition.
func NewTelemetryDebouncer(store *cache.Store, ttl func() time.Duration) *TelemetryDebouncer {
	return &TelemetryDebouncer{store: store, ttl: ttl}
}

func telemetryKey(historyID uuid.UUID) string {
	return telemetryKeyPrefix + historyID.String()
}

// Observe compares the snapshot's playback state against the last counted
// state for the entry and returns the counters to increment. The stored
// state is always refreshed. The first observation of an entry seeds the
// state and reports no transitions.
func (d *TelemetryDebouncer) Observe(historyID uuid.UUID, snap *models.SessionSnapshot) ([]database.TelemetryCounter, error) {
	key := telemetryKey(historyID)

	current := telemetryState{
		IsPaused:            snap.IsPaused,
		AudioStreamIndex:    snap.AudioStreamIndex,
		SubtitleStreamIndex: snap.SubtitleStreamIndex,
	}

	var prev telemetryState
	found, err := d.store.Get(key, &prev)
	if err != nil {
		return nil, fmt.Errorf("telemetry state read: %w", err)
	}

	var transitions []database.TelemetryCounter
	if found {
		// Pause counts only on entering the paused state; resuming is
		// not a pause event.
		if current.IsPaused && !prev.IsPaused {
			transitions = append(transitions, database.CounterPause)
			metrics.TelemetryTransitionsTotal.WithLabelValues("pause").Inc()
		}
		if current.AudioStreamIndex != prev.AudioStreamIndex {
			transitions = append(transitions, database.CounterAudioChange)
			metrics.TelemetryTransitionsTotal.WithLabelValues("audio").Inc()
		}
		if current.SubtitleStreamIndex != prev.SubtitleStreamIndex {
			transitions = append(transitions, database.CounterSubtitleChange)
			metrics.TelemetryTransitionsTotal.WithLabelValues("subtitle").Inc()
		}
	}

	if err := d.store.Set(key, &current, d.ttl()); err != nil {
		return nil, fmt.Errorf("telemetry state write: %w", err)
	}
	return transitions, nil
}

// Forget drops the debounce state for a closed entry.
func (d *TelemetryDebouncer) Forget(historyID uuid.UUID) error {
	return d.store.Delete(telemetryKey(historyID))
}
