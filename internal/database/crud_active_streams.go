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

	"github.com/tomtom215/streamledger/internal/models"
)

// UpsertActiveStream writes or refreshes the durable mirror of a live
// session. Called every poll for every live session, so it must be
// idempotent under repeated observation.
func (db *DB) UpsertActiveStream(ctx context.Context, rec *models.ActiveStreamRecord) error {
	query := `INSERT INTO active_streams (
			session_id, user_id, item_id, client, device_name, ip_address,
			play_method, position_ticks, runtime_ticks, started_at, last_ping_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = excluded.user_id,
			item_id = excluded.item_id,
			client = excluded.client,
			device_name = excluded.device_name,
			ip_address = excluded.ip_address,
			play_method = excluded.play_method,
			position_ticks = excluded.position_ticks,
			runtime_ticks = excluded.runtime_ticks,
			last_ping_at = excluded.last_ping_at`

	if rec.LastPingAt.IsZero() {
		rec.LastPingAt = time.Now()
	}

	if _, err := db.conn.ExecContext(ctx, query,
		rec.SessionID, rec.UserID, rec.ItemID, rec.Client, rec.DeviceName,
		rec.IPAddress, string(rec.PlayMethod), rec.PositionTicks,
		rec.RunTimeTicks, rec.StartedAt, rec.LastPingAt); err != nil {
		return recordQueryError("upsert active stream", err)
	}
	return nil
}

// GetActiveStream returns the durable record for a session id, or nil when
// absent.
func (db *DB) GetActiveStream(ctx context.Context, sessionID string) (*models.ActiveStreamRecord, error) {
	query := `SELECT session_id, user_id, item_id, client, device_name,
			ip_address, play_method, position_ticks, runtime_ticks,
			started_at, last_ping_at
		FROM active_streams WHERE session_id = ?`

	rec, err := scanActiveStream(db.conn.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, recordQueryError("get active stream", err)
	}
	return rec, nil
}

// ListActiveStreams returns every durable active-stream record. Used by the
// ghost reconciler to cross-check the durable table against the live set.
func (db *DB) ListActiveStreams(ctx context.Context) ([]*models.ActiveStreamRecord, error) {
	query := `SELECT session_id, user_id, item_id, client, device_name,
			ip_address, play_method, position_ticks, runtime_ticks,
			started_at, last_ping_at
		FROM active_streams ORDER BY started_at`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, recordQueryError("list active streams", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.ActiveStreamRecord
	for rows.Next() {
		rec, err := scanActiveStream(rows)
		if err != nil {
			return nil, recordQueryError("scan active stream", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, recordQueryError("iterate active streams", err)
	}
	return records, nil
}

// DeleteActiveStream removes the durable record for a session id. Deleting
// an absent row is not an error.
func (db *DB) DeleteActiveStream(ctx context.Context, sessionID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM active_streams WHERE session_id = ?`, sessionID); err != nil {
		return recordQueryError("delete active stream", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActiveStream(row rowScanner) (*models.ActiveStreamRecord, error) {
	var rec models.ActiveStreamRecord
	var playMethod string
	err := row.Scan(&rec.SessionID, &rec.UserID, &rec.ItemID, &rec.Client,
		&rec.DeviceName, &rec.IPAddress, &playMethod, &rec.PositionTicks,
		&rec.RunTimeTicks, &rec.StartedAt, &rec.LastPingAt)
	if err != nil {
		return nil, err
	}
	rec.PlayMethod = models.PlayMethod(playMethod)
	return &rec, nil
}
