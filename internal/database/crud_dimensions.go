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

// UpsertUser creates the user row on first sight or patches its display
// fields and last-seen timestamp on later sightings.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, name, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			last_seen = excluded.last_seen`

	if user.LastSeen.IsZero() {
		user.LastSeen = time.Now()
	}

	if _, err := db.conn.ExecContext(ctx, query, user.ID, user.Name, user.LastSeen); err != nil {
		return recordQueryError("upsert user", err)
	}
	return nil
}

// UpsertMediaItem creates or patches the media dimension row, including the
// series/season/album parent chain used for display enrichment.
func (db *DB) UpsertMediaItem(ctx context.Context, item *models.MediaItem) error {
	query := `INSERT INTO media_items (
			id, name, type, series_id, series_name, season_id, season_name,
			album_id, album_name, album_artist
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			series_id = excluded.series_id,
			series_name = excluded.series_name,
			season_id = excluded.season_id,
			season_name = excluded.season_name,
			album_id = excluded.album_id,
			album_name = excluded.album_name,
			album_artist = excluded.album_artist`

	if _, err := db.conn.ExecContext(ctx, query,
		item.ID, item.Name, item.Type,
		item.SeriesID, item.SeriesName, item.SeasonID, item.SeasonName,
		item.AlbumID, item.AlbumName, item.AlbumArtist); err != nil {
		return recordQueryError("upsert media item", err)
	}
	return nil
}

// GetUser returns the user row, or nil when absent.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, last_seen FROM users WHERE id = ?`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, recordQueryError("get user", err)
	}
	return &user, nil
}

// UpsertGeolocation caches a GeoIP lookup result keyed by IP address.
func (db *DB) UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error {
	query := `INSERT INTO geolocations (ip_address, country, city, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ip_address) DO UPDATE SET
			country = excluded.country,
			city = excluded.city,
			last_updated = excluded.last_updated`

	if geo.LastUpdated.IsZero() {
		geo.LastUpdated = time.Now()
	}

	if _, err := db.conn.ExecContext(ctx, query,
		geo.IPAddress, geo.Country, geo.City, geo.LastUpdated); err != nil {
		return recordQueryError("upsert geolocation", err)
	}
	return nil
}

// GetGeolocation returns the cached lookup for an IP, or nil when absent.
func (db *DB) GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	query := `SELECT ip_address, country, city, last_updated
		FROM geolocations WHERE ip_address = ?`

	var geo models.Geolocation
	err := db.conn.QueryRowContext(ctx, query, ipAddress).Scan(
		&geo.IPAddress, &geo.Country, &geo.City, &geo.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, recordQueryError("get geolocation", err)
	}
	return &geo, nil
}
