// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package models

import (
	"strings"
	"time"
)

// PlayMethod classifies how the media reaches the client.
type PlayMethod string

// Play methods reported by the server.
const (
	PlayMethodDirectPlay   PlayMethod = "direct-play"
	PlayMethodDirectStream PlayMethod = "direct-stream"
	PlayMethodTranscode    PlayMethod = "transcode"
	PlayMethodUnknown      PlayMethod = "unknown"
)

// ParsePlayMethod maps the server's PlayMethod string to the internal enum.
func ParsePlayMethod(raw string) PlayMethod {
	switch strings.ToLower(raw) {
	case "directplay":
		return PlayMethodDirectPlay
	case "directstream":
		return PlayMethodDirectStream
	case "transcode":
		return PlayMethodTranscode
	default:
		return PlayMethodUnknown
	}
}

// SessionSnapshot is the strongly-typed internal view of one live session,
// produced by the tolerant parser from the raw JellyfinSession payload.
// It is the unit stored in the ephemeral cache.
type SessionSnapshot struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`

	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	ItemType string `json:"item_type"`

	// Parent chain for display enrichment
	SeriesID    string `json:"series_id,omitempty"`
	SeriesName  string `json:"series_name,omitempty"`
	SeasonID    string `json:"season_id,omitempty"`
	SeasonName  string `json:"season_name,omitempty"`
	AlbumID     string `json:"album_id,omitempty"`
	AlbumName   string `json:"album_name,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`

	Client     string     `json:"client"`
	DeviceName string     `json:"device_name"`
	IPAddress  string     `json:"ip_address"`
	PlayMethod PlayMethod `json:"play_method"`

	PositionTicks int64 `json:"position_ticks"`
	RunTimeTicks  int64 `json:"runtime_ticks"`
	IsPaused      bool  `json:"is_paused"`

	AudioStreamIndex    int `json:"audio_stream_index"`
	SubtitleStreamIndex int `json:"subtitle_stream_index"`

	// Stream metadata, possibly empty on the first poll of a session
	AudioLanguage    string `json:"audio_language,omitempty"`
	AudioCodec       string `json:"audio_codec,omitempty"`
	SubtitleLanguage string `json:"subtitle_language,omitempty"`
	SubtitleCodec    string `json:"subtitle_codec,omitempty"`

	VideoCodec string  `json:"video_codec,omitempty"`
	VideoWidth int     `json:"video_width,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Bitrate    int     `json:"bitrate,omitempty"`
	Framerate  float64 `json:"framerate,omitempty"`

	// Derived geo
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// HasIdentity reports whether the snapshot carries the identifiers required
// for durable and ledger writes. Sessions without identity are skipped.
func (s *SessionSnapshot) HasIdentity() bool {
	return s.SessionID != "" && s.UserID != "" && s.ItemID != ""
}
