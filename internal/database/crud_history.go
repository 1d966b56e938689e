// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/streamledger/internal/models"
)

const historyColumns = `id, user_id, item_id, started_at, ended_at,
	duration_seconds, play_method, client, device_name, ip_address,
	country, city, audio_language, audio_codec, subtitle_language,
	subtitle_codec, pause_count, audio_change_count, subtitle_change_count,
	created_at`

// InsertHistoryEntry appends a new open ledger entry.
//
// Callers must check GetOpenHistoryEntry first; the open-entry invariant is
// preserved by construction, not by a database constraint.
func (db *DB) InsertHistoryEntry(ctx context.Context, entry *models.PlaybackHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `INSERT INTO playback_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := db.conn.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.ItemID, entry.StartedAt, entry.EndedAt,
		entry.DurationSeconds, string(entry.PlayMethod), entry.Client,
		entry.DeviceName, entry.IPAddress, entry.Country, entry.City,
		entry.AudioLanguage, entry.AudioCodec, entry.SubtitleLanguage,
		entry.SubtitleCodec, entry.PauseCount, entry.AudioChangeCount,
		entry.SubtitleChangeCount, entry.CreatedAt); err != nil {
		return recordQueryError("insert history entry", err)
	}
	return nil
}

// GetOpenHistoryEntry returns the open ledger entry for a (user, item)
// pair, or nil when none exists.
func (db *DB) GetOpenHistoryEntry(ctx context.Context, userID, itemID string) (*models.PlaybackHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM playback_history
		WHERE user_id = ? AND item_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1`

	entry, err := scanHistoryEntry(db.conn.QueryRowContext(ctx, query, userID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, recordQueryError("get open history entry", err)
	}
	return entry, nil
}

// ListOpenHistoryEntries returns every open ledger entry, used by the
// startup orphan pass.
func (db *DB) ListOpenHistoryEntries(ctx context.Context) ([]*models.PlaybackHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM playback_history
		WHERE ended_at IS NULL ORDER BY started_at`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, recordQueryError("list open history entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.PlaybackHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, recordQueryError("scan history entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, recordQueryError("iterate history entries", err)
	}
	return entries, nil
}

// ListHistoryByUserItem returns the full ledger for a (user, item) pair,
// open and closed, oldest first.
func (db *DB) ListHistoryByUserItem(ctx context.Context, userID, itemID string) ([]*models.PlaybackHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM playback_history
		WHERE user_id = ? AND item_id = ? ORDER BY started_at`

	rows, err := db.conn.QueryContext(ctx, query, userID, itemID)
	if err != nil {
		return nil, recordQueryError("list history by user item", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.PlaybackHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, recordQueryError("scan history entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, recordQueryError("iterate history entries", err)
	}
	return entries, nil
}

// CloseHistoryEntry finalizes an open entry with its end timestamp and
// total watched duration. Closing an already-closed entry is a no-op,
// keeping the operation idempotent under replayed cycles.
func (db *DB) CloseHistoryEntry(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int64) error {
	query := `UPDATE playback_history
		SET ended_at = ?, duration_seconds = ?
		WHERE id = ? AND ended_at IS NULL`

	if _, err := db.conn.ExecContext(ctx, query, endedAt, durationSeconds, id); err != nil {
		return recordQueryError("close history entry", err)
	}
	return nil
}

// TelemetryCounter identifies one of the debounced ledger counters.
type TelemetryCounter string

// Telemetry counters tracked per ledger entry.
const (
	CounterPause          TelemetryCounter = "pause_count"
	CounterAudioChange    TelemetryCounter = "audio_change_count"
	CounterSubtitleChange TelemetryCounter = "subtitle_change_count"
)

// IncrementTelemetryCounter adds one to the given counter on an open entry.
func (db *DB) IncrementTelemetryCounter(ctx context.Context, id uuid.UUID, counter TelemetryCounter) error {
	var query string
	switch counter {
	case CounterPause:
		query = `UPDATE playback_history SET pause_count = pause_count + 1 WHERE id = ?`
	case CounterAudioChange:
		query = `UPDATE playback_history SET audio_change_count = audio_change_count + 1 WHERE id = ?`
	case CounterSubtitleChange:
		query = `UPDATE playback_history SET subtitle_change_count = subtitle_change_count + 1 WHERE id = ?`
	default:
		return errors.New("unknown telemetry counter")
	}

	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return recordQueryError("increment telemetry counter", err)
	}
	return nil
}

// UpdateHistoryStreamInfo backfills audio/subtitle language and codec onto
// an open entry. The first poll of a session may lack stream metadata, so
// these fields are patched whenever a newer value is observed.
func (db *DB) UpdateHistoryStreamInfo(ctx context.Context, id uuid.UUID, audioLang, audioCodec, subLang, subCodec string) error {
	query := `UPDATE playback_history
		SET audio_language = ?, audio_codec = ?,
			subtitle_language = ?, subtitle_codec = ?
		WHERE id = ?`

	if _, err := db.conn.ExecContext(ctx, query, audioLang, audioCodec, subLang, subCodec, id); err != nil {
		return recordQueryError("update history stream info", err)
	}
	return nil
}

// CountHistoryByUserIP counts ledger rows for a (user, ip) pair. A zero
// count means the IP has never been seen for that user.
func (db *DB) CountHistoryByUserIP(ctx context.Context, userID, ipAddress string) (int, error) {
	query := `SELECT COUNT(*) FROM playback_history
		WHERE user_id = ? AND ip_address = ?`

	var count int
	if err := db.conn.QueryRowContext(ctx, query, userID, ipAddress).Scan(&count); err != nil {
		return 0, recordQueryError("count history by user ip", err)
	}
	return count, nil
}

func scanHistoryEntry(row rowScanner) (*models.PlaybackHistoryEntry, error) {
	var entry models.PlaybackHistoryEntry
	var endedAt sql.NullTime
	var playMethod string

	err := row.Scan(&entry.ID, &entry.UserID, &entry.ItemID, &entry.StartedAt,
		&endedAt, &entry.DurationSeconds, &playMethod, &entry.Client,
		&entry.DeviceName, &entry.IPAddress, &entry.Country, &entry.City,
		&entry.AudioLanguage, &entry.AudioCodec, &entry.SubtitleLanguage,
		&entry.SubtitleCodec, &entry.PauseCount, &entry.AudioChangeCount,
		&entry.SubtitleChangeCount, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		entry.EndedAt = &t
	}
	entry.PlayMethod = models.PlayMethod(playMethod)
	return &entry, nil
}
