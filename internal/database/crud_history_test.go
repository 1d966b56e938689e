// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/streamledger/internal/models"
)

func newOpenEntry(userID, itemID string, startedAt time.Time) *models.PlaybackHistoryEntry {
	return &models.PlaybackHistoryEntry{
		UserID:     userID,
		ItemID:     itemID,
		StartedAt:  startedAt,
		PlayMethod: models.PlayMethodDirectPlay,
		Client:     "WebPlayer",
		DeviceName: "Chrome",
		IPAddress:  "203.0.113.7",
	}
}

func TestInsertAndGetOpenEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Now().Truncate(time.Millisecond)

	entry := newOpenEntry("u1", "i1", start)
	if err := db.InsertHistoryEntry(ctx, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := db.GetOpenHistoryEntry(ctx, "u1", "i1")
	if err != nil {
		t.Fatalf("get open failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected open entry, got nil")
	}
	if got.ID != entry.ID {
		t.Errorf("id = %v, want %v", got.ID, entry.ID)
	}
	if !got.IsOpen() {
		t.Error("entry should be open")
	}

	// Different pair has no open entry
	none, err := db.GetOpenHistoryEntry(ctx, "u1", "other")
	if err != nil {
		t.Fatalf("get open for other item failed: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for (u1, other), got %+v", none)
	}
}

func TestCloseHistoryEntryIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Now().Add(-10 * time.Minute).Truncate(time.Millisecond)

	entry := newOpenEntry("u1", "i1", start)
	if err := db.InsertHistoryEntry(ctx, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	end := start.Add(9 * time.Minute)
	if err := db.CloseHistoryEntry(ctx, entry.ID, end, 540); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	got, _ := db.GetOpenHistoryEntry(ctx, "u1", "i1")
	if got != nil {
		t.Error("entry should no longer be open after close")
	}

	// Closing again with a different duration must not overwrite
	if err := db.CloseHistoryEntry(ctx, entry.ID, end.Add(time.Hour), 9999); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	entries, err := db.ListOpenHistoryEntries(ctx)
	if err != nil {
		t.Fatalf("list open failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no open entries, got %d", len(entries))
	}
}

func TestTelemetryCounterIncrements(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := newOpenEntry("u1", "i1", time.Now())
	if err := db.InsertHistoryEntry(ctx, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := db.IncrementTelemetryCounter(ctx, entry.ID, CounterPause); err != nil {
			t.Fatalf("pause increment failed: %v", err)
		}
	}
	if err := db.IncrementTelemetryCounter(ctx, entry.ID, CounterAudioChange); err != nil {
		t.Fatalf("audio increment failed: %v", err)
	}

	got, err := db.GetOpenHistoryEntry(ctx, "u1", "i1")
	if err != nil {
		t.Fatalf("get open failed: %v", err)
	}
	if got.PauseCount != 2 {
		t.Errorf("pause count = %d, want 2", got.PauseCount)
	}
	if got.AudioChangeCount != 1 {
		t.Errorf("audio change count = %d, want 1", got.AudioChangeCount)
	}
	if got.SubtitleChangeCount != 0 {
		t.Errorf("subtitle change count = %d, want 0", got.SubtitleChangeCount)
	}

	if err := db.IncrementTelemetryCounter(ctx, entry.ID, TelemetryCounter("bogus")); err == nil {
		t.Error("unknown counter should error")
	}
}

func TestUpdateHistoryStreamInfo(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := newOpenEntry("u1", "i1", time.Now())
	if err := db.InsertHistoryEntry(ctx, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := db.UpdateHistoryStreamInfo(ctx, entry.ID, "eng", "aac", "ger", "srt"); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	got, _ := db.GetOpenHistoryEntry(ctx, "u1", "i1")
	if got.AudioLanguage != "eng" || got.AudioCodec != "aac" {
		t.Errorf("audio = %s/%s, want eng/aac", got.AudioLanguage, got.AudioCodec)
	}
	if got.SubtitleLanguage != "ger" || got.SubtitleCodec != "srt" {
		t.Errorf("subtitle = %s/%s, want ger/srt", got.SubtitleLanguage, got.SubtitleCodec)
	}
}

func TestCountHistoryByUserIP(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	count, err := db.CountHistoryByUserIP(ctx, "u1", "203.0.113.7")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for unseen IP", count)
	}

	for _, item := range []string{"i1", "i2"} {
		if err := db.InsertHistoryEntry(ctx, newOpenEntry("u1", item, time.Now())); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	count, err = db.CountHistoryByUserIP(ctx, "u1", "203.0.113.7")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Another user's rows do not leak into the count
	count, _ = db.CountHistoryByUserIP(ctx, "u2", "203.0.113.7")
	if count != 0 {
		t.Errorf("count = %d, want 0 for other user", count)
	}
}

func TestListOpenHistoryEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	open := newOpenEntry("u1", "i1", start)
	closed := newOpenEntry("u2", "i2", start)
	if err := db.InsertHistoryEntry(ctx, open); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.InsertHistoryEntry(ctx, closed); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.CloseHistoryEntry(ctx, closed.ID, start.Add(time.Minute), 60); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	entries, err := db.ListOpenHistoryEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 open entry, got %d", len(entries))
	}
	if entries[0].ID != open.ID {
		t.Errorf("open entry id = %v, want %v", entries[0].ID, open.ID)
	}
}
