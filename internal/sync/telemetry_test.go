// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/streamledger/internal/cache"
	"github.com/tomtom215/streamledger/internal/database"
	"github.com/tomtom215/streamledger/internal/models"
)

func newTestDebouncer(t *testing.T) *TelemetryDebouncer {
	t.Helper()

	store, err := cache.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewTelemetryDebouncer(store, func() time.Duration { return time.Minute })
}

func countTransitions(transitions []database.TelemetryCounter, counter database.TelemetryCounter) int {
	n := 0
	for _, tr := range transitions {
		if tr == counter {
			n++
		}
	}
	return n
}

func TestDebouncerAudioSequence(t *testing.T) {
	t.Parallel()

	d := newTestDebouncer(t)
	id := uuid.New()

	// Audio index per poll: 2, 2, 2, 5, 5, 2 — exactly two transitions.
	audioChanges := 0
	for _, idx := range []int{2, 2, 2, 5, 5, 2} {
		snap := &models.SessionSnapshot{AudioStreamIndex: idx, SubtitleStreamIndex: -1}
		transitions, err := d.Observe(id, snap)
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		audioChanges += countTransitions(transitions, database.CounterAudioChange)
	}

	if audioChanges != 2 {
		t.Errorf("audio changes = %d, want 2", audioChanges)
	}
}

func TestDebouncerFirstObservationSeeds(t *testing.T) {
	t.Parallel()

	d := newTestDebouncer(t)
	id := uuid.New()

	snap := &models.SessionSnapshot{IsPaused: true, AudioStreamIndex: 3, SubtitleStreamIndex: 1}
	transitions, err := d.Observe(id, snap)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if len(transitions) != 0 {
		t.Errorf("transitions = %v on first observation, want none", transitions)
	}
}

func TestDebouncerPauseOnlyOnEntering(t *testing.T) {
	t.Parallel()

	d := newTestDebouncer(t)
	id := uuid.New()

	pauses := 0
	// playing, paused, paused, playing, paused
	for _, paused := range []bool{false, true, true, false, true} {
		snap := &models.SessionSnapshot{IsPaused: paused, SubtitleStreamIndex: -1}
		transitions, err := d.Observe(id, snap)
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		pauses += countTransitions(transitions, database.CounterPause)
	}

	// Two pause events: false→true twice. The resume is not counted.
	if pauses != 2 {
		t.Errorf("pause transitions = %d, want 2", pauses)
	}
}

func TestDebouncerSubtitleToggle(t *testing.T) {
	t.Parallel()

	d := newTestDebouncer(t)
	id := uuid.New()

	subs := 0
	// off, on(4), on(4), off
	for _, idx := range []int{-1, 4, 4, -1} {
		snap := &models.SessionSnapshot{SubtitleStreamIndex: idx}
		transitions, err := d.Observe(id, snap)
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		subs += countTransitions(transitions, database.CounterSubtitleChange)
	}

	if subs != 2 {
		t.Errorf("subtitle transitions = %d, want 2", subs)
	}
}

func TestDebouncerForget(t *testing.T) {
	t.Parallel()

	d := newTestDebouncer(t)
	id := uuid.New()

	if _, err := d.Observe(id, &models.SessionSnapshot{AudioStreamIndex: 2}); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if err := d.Forget(id); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}

	// After Forget, the next observation seeds again: no transition even
	// though the index differs.
	transitions, err := d.Observe(id, &models.SessionSnapshot{AudioStreamIndex: 9})
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if len(transitions) != 0 {
		t.Errorf("transitions = %v after Forget, want none", transitions)
	}
}
