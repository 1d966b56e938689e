// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a lazily-upserted dimension row. Created the first time a user is
// seen in a session; display fields are patched on later sightings.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// MediaItem is a lazily-upserted dimension row for the played item,
// including its parent chain for display enrichment.
type MediaItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	SeriesID    string `json:"series_id,omitempty"`
	SeriesName  string `json:"series_name,omitempty"`
	SeasonID    string `json:"season_id,omitempty"`
	SeasonName  string `json:"season_name,omitempty"`
	AlbumID     string `json:"album_id,omitempty"`
	AlbumName   string `json:"album_name,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
}

// ActiveStreamRecord is the durable mirror of a live session, one row per
// session identifier. A row exists iff a live session with that identifier
// was seen within the last two poll intervals, or a ghost pass has not yet
// run. PositionTicks is carried so the ledger entry can be closed with the
// last known position after a crash.
type ActiveStreamRecord struct {
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	ItemID        string     `json:"item_id"`
	Client        string     `json:"client"`
	DeviceName    string     `json:"device_name"`
	IPAddress     string     `json:"ip_address"`
	PlayMethod    PlayMethod `json:"play_method"`
	PositionTicks int64      `json:"position_ticks"`
	RunTimeTicks  int64      `json:"runtime_ticks"`
	StartedAt     time.Time  `json:"started_at"`
	LastPingAt    time.Time  `json:"last_ping_at"`
}

// PlaybackHistoryEntry is one row of the append-only ledger: a user watching
// one media item, bounded by start and end timestamps.
//
// Invariant: at most one entry per (user, item) pair has a null EndedAt at
// any time. The reconciliation engine preserves this by re-checking for an
// open entry before every insert.
type PlaybackHistoryEntry struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
	ItemID string    `json:"item_id"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// DurationSeconds is finalized only on close.
	DurationSeconds int64 `json:"duration_seconds"`

	PlayMethod PlayMethod `json:"play_method"`
	Client     string     `json:"client"`
	DeviceName string     `json:"device_name"`
	IPAddress  string     `json:"ip_address"`
	Country    string     `json:"country,omitempty"`
	City       string     `json:"city,omitempty"`

	AudioLanguage    string `json:"audio_language,omitempty"`
	AudioCodec       string `json:"audio_codec,omitempty"`
	SubtitleLanguage string `json:"subtitle_language,omitempty"`
	SubtitleCodec    string `json:"subtitle_codec,omitempty"`

	// Telemetry counters, incremented only on debounced transitions
	PauseCount          int `json:"pause_count"`
	AudioChangeCount    int `json:"audio_change_count"`
	SubtitleChangeCount int `json:"subtitle_change_count"`

	CreatedAt time.Time `json:"created_at"`
}

// IsOpen reports whether the entry has not yet been finalized.
func (e *PlaybackHistoryEntry) IsOpen() bool {
	return e.EndedAt == nil
}

// Geolocation is a cached GeoIP lookup result keyed by IP address.
type Geolocation struct {
	IPAddress   string    `json:"ip_address"`
	Country     string    `json:"country"`
	City        string    `json:"city"`
	LastUpdated time.Time `json:"last_updated"`
}

// StartEvent is the structured payload handed to the notifier when a
// playback start is observed.
type StartEvent struct {
	SessionID  string     `json:"session_id"`
	UserName   string     `json:"user_name"`
	ItemName   string     `json:"item_name"`
	SeriesName string     `json:"series_name,omitempty"`
	Client     string     `json:"client"`
	DeviceName string     `json:"device_name"`
	IPAddress  string     `json:"ip_address"`
	Country    string     `json:"country,omitempty"`
	City       string     `json:"city,omitempty"`
	PlayMethod PlayMethod `json:"play_method"`
	NewIP      bool       `json:"new_ip"`
	StartedAt  time.Time  `json:"started_at"`
}
