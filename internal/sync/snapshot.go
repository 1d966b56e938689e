// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"time"

	"github.com/tomtom215/streamledger/internal/models"
)

// Ticks per second in the server's position and runtime fields (100ns
// units).
const ticksPerSecond = 10_000_000

// maxPlaybackDuration caps computed durations. Live TV and buggy clients
// can report runtimes far beyond anything a human watched in one sitting.
const maxPlaybackDuration = 24 * time.Hour

// BuildSnapshot converts one raw session payload into the typed snapshot
// stored in the ephemeral cache. The parser is tolerant: any optional
// block may be absent and the snapshot is still produced, as long as the
// session carries its identity triple. Returns nil for sessions that are
// not live or have no identity.
func BuildSnapshot(session *models.JellyfinSession, observedAt time.Time) *models.SessionSnapshot {
	if session == nil || !session.IsLive() {
		return nil
	}

	item := session.NowPlayingItem
	state := session.PlayState

	snap := &models.SessionSnapshot{
		SessionID: session.ID,
		UserID:    session.UserID,
		UserName:  session.UserName,

		ItemID:   item.ID,
		ItemName: item.Name,
		ItemType: item.Type,

		SeriesID:    item.SeriesID,
		SeriesName:  item.SeriesName,
		SeasonID:    item.SeasonID,
		SeasonName:  item.SeasonName,
		AlbumID:     item.AlbumID,
		AlbumName:   item.Album,
		AlbumArtist: item.AlbumArtist,

		Client:     session.Client,
		DeviceName: session.DeviceName,
		IPAddress:  session.IPAddress(),
		PlayMethod: models.ParsePlayMethod(state.PlayMethod),

		PositionTicks: state.PositionTicks,
		RunTimeTicks:  item.RunTimeTicks,
		IsPaused:      state.IsPaused,

		AudioStreamIndex:    state.AudioStreamIndex,
		SubtitleStreamIndex: state.SubtitleStreamIndex,

		ObservedAt: observedAt,
	}

	if !snap.HasIdentity() {
		return nil
	}

	fillStreamInfo(snap, session)
	return snap
}

// fillStreamInfo resolves the selected audio and subtitle streams plus
// video characteristics from the media-stream list. Everything here is
// optional; missing streams leave the fields empty.
func fillStreamInfo(snap *models.SessionSnapshot, session *models.JellyfinSession) {
	item := session.NowPlayingItem
	state := session.PlayState

	audio := item.StreamByIndex("Audio", state.AudioStreamIndex)
	if audio == nil {
		audio = item.DefaultStream("Audio")
	}
	if audio != nil {
		snap.AudioLanguage = audio.Language
		snap.AudioCodec = audio.Codec
	}

	// A negative subtitle index means subtitles are off; do not fall back
	// to the default stream in that case.
	if state.SubtitleStreamIndex >= 0 {
		if sub := item.StreamByIndex("Subtitle", state.SubtitleStreamIndex); sub != nil {
			snap.SubtitleLanguage = sub.Language
			snap.SubtitleCodec = sub.Codec
		}
	}

	if video := item.DefaultStream("Video"); video != nil {
		snap.VideoCodec = video.Codec
		snap.Bitrate = video.BitRate
	}
	snap.VideoWidth = item.VideoWidth()
	snap.Resolution = classifyResolution(snap.VideoWidth)

	if ti := session.TranscodingInfo; ti != nil {
		snap.Framerate = ti.Framerate
		if ti.Bitrate > 0 {
			snap.Bitrate = ti.Bitrate
		}
	}
}

// classifyResolution buckets a video width into a display label. Widths
// are used instead of heights because anamorphic content reports short
// frames at full width.
func classifyResolution(width int) string {
	switch {
	case width <= 0:
		return ""
	case width >= 3800:
		return "4K"
	case width >= 1900:
		return "1080p"
	case width >= 1200:
		return "720p"
	default:
		return "SD"
	}
}

// playbackDuration computes the final duration for a closing ledger
// entry. The last observed position is authoritative when present;
// otherwise wall-clock elapsed time between start and end is used. The
// result is clamped to [0, maxPlaybackDuration].
func playbackDuration(positionTicks int64, startedAt, endedAt time.Time) int64 {
	var d time.Duration
	if positionTicks > 0 {
		d = time.Duration(positionTicks/ticksPerSecond) * time.Second
	} else {
		d = endedAt.Sub(startedAt)
	}

	if d < 0 {
		d = 0
	}
	if d > maxPlaybackDuration {
		d = maxPlaybackDuration
	}
	return int64(d / time.Second)
}
