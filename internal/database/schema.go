// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package database

import (
	"context"
	"fmt"
)

// initSchema creates all tables and indexes if they do not exist.
//
// All columns are defined in the initial CREATE TABLE statements; schema
// changes are additive and go through new CREATE statements here rather
// than ad hoc ALTERs at call sites.
func (db *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         VARCHAR PRIMARY KEY,
			name       VARCHAR NOT NULL,
			last_seen  TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS media_items (
			id            VARCHAR PRIMARY KEY,
			name          VARCHAR NOT NULL,
			type          VARCHAR,
			series_id     VARCHAR,
			series_name   VARCHAR,
			season_id     VARCHAR,
			season_name   VARCHAR,
			album_id      VARCHAR,
			album_name    VARCHAR,
			album_artist  VARCHAR
		)`,

		// Durable mirror of live sessions, one row per session identifier.
		// position_ticks carries the last reported playback position so a
		// ledger entry can be closed accurately after a crash.
		`CREATE TABLE IF NOT EXISTS active_streams (
			session_id     VARCHAR PRIMARY KEY,
			user_id        VARCHAR NOT NULL,
			item_id        VARCHAR NOT NULL,
			client         VARCHAR,
			device_name    VARCHAR,
			ip_address     VARCHAR,
			play_method    VARCHAR,
			position_ticks BIGINT DEFAULT 0,
			runtime_ticks  BIGINT DEFAULT 0,
			started_at     TIMESTAMP NOT NULL,
			last_ping_at   TIMESTAMP NOT NULL
		)`,

		// Append-only playback ledger. ended_at is null while the entry is
		// open; at most one open entry may exist per (user_id, item_id).
		`CREATE TABLE IF NOT EXISTS playback_history (
			id                    UUID PRIMARY KEY,
			user_id               VARCHAR NOT NULL,
			item_id               VARCHAR NOT NULL,
			started_at            TIMESTAMP NOT NULL,
			ended_at              TIMESTAMP,
			duration_seconds      BIGINT DEFAULT 0,
			play_method           VARCHAR,
			client                VARCHAR,
			device_name           VARCHAR,
			ip_address            VARCHAR,
			country               VARCHAR,
			city                  VARCHAR,
			audio_language        VARCHAR,
			audio_codec           VARCHAR,
			subtitle_language     VARCHAR,
			subtitle_codec        VARCHAR,
			pause_count           INTEGER DEFAULT 0,
			audio_change_count    INTEGER DEFAULT 0,
			subtitle_change_count INTEGER DEFAULT 0,
			created_at            TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS geolocations (
			ip_address   VARCHAR PRIMARY KEY,
			country      VARCHAR,
			city         VARCHAR,
			last_updated TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_history_open
			ON playback_history (user_id, item_id) `,
		`CREATE INDEX IF NOT EXISTS idx_history_user_ip
			ON playback_history (user_id, ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_history_started
			ON playback_history (started_at)`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
