// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package models defines the wire payloads consumed from the media server
// and the internal records written to the durable and ephemeral stores.
package models

import (
	"net"
	"strings"
)

// JellyfinSession represents one entry from GET /Sessions.
//
// Only the fields this system consumes are mapped; the server sends many
// more. Optional blocks are pointers so their absence is observable.
type JellyfinSession struct {
	ID                 string `json:"Id"`
	Client             string `json:"Client"`
	DeviceID           string `json:"DeviceId"`
	DeviceName         string `json:"DeviceName"`
	ApplicationVersion string `json:"ApplicationVersion"`

	UserID   string `json:"UserId"`
	UserName string `json:"UserName"`

	// RemoteEndPoint is the client address, possibly with a port suffix.
	RemoteEndPoint   string `json:"RemoteEndPoint"`
	LastActivityDate string `json:"LastActivityDate"`

	NowPlayingItem  *JellyfinNowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState       *JellyfinPlayState       `json:"PlayState,omitempty"`
	TranscodingInfo *JellyfinTranscodingInfo `json:"TranscodingInfo,omitempty"`
}

// JellyfinNowPlayingItem represents the currently playing content.
type JellyfinNowPlayingItem struct {
	ID        string `json:"Id"`
	Name      string `json:"Name"`
	Type      string `json:"Type"` // "Movie", "Episode", "Audio", ...
	MediaType string `json:"MediaType"`

	// Episode parent chain
	SeriesID          string `json:"SeriesId,omitempty"`
	SeriesName        string `json:"SeriesName,omitempty"`
	SeasonID          string `json:"SeasonId,omitempty"`
	SeasonName        string `json:"SeasonName,omitempty"`
	IndexNumber       int    `json:"IndexNumber,omitempty"`
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"`

	// Music parent chain
	AlbumID     string `json:"AlbumId,omitempty"`
	Album       string `json:"Album,omitempty"`
	AlbumArtist string `json:"AlbumArtist,omitempty"`

	// RunTimeTicks is the total duration in 100ns ticks.
	RunTimeTicks   int64  `json:"RunTimeTicks"`
	ProductionYear int    `json:"ProductionYear,omitempty"`
	Container      string `json:"Container,omitempty"`

	MediaStreams []JellyfinMediaStream `json:"MediaStreams,omitempty"`
}

// JellyfinPlayState represents the playback state block. A session without
// this block is not considered live.
type JellyfinPlayState struct {
	// PositionTicks is the current position in 100ns ticks.
	PositionTicks       int64  `json:"PositionTicks"`
	IsPaused            bool   `json:"IsPaused"`
	AudioStreamIndex    int    `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex int    `json:"SubtitleStreamIndex,omitempty"`
	MediaSourceID       string `json:"MediaSourceId,omitempty"`
	PlayMethod          string `json:"PlayMethod,omitempty"` // "DirectPlay", "DirectStream", "Transcode"
}

// JellyfinTranscodingInfo represents active transcode details.
type JellyfinTranscodingInfo struct {
	AudioCodec    string  `json:"AudioCodec,omitempty"`
	VideoCodec    string  `json:"VideoCodec,omitempty"`
	Container     string  `json:"Container,omitempty"`
	Bitrate       int     `json:"Bitrate,omitempty"`
	Framerate     float64 `json:"Framerate,omitempty"`
	Width         int     `json:"Width,omitempty"`
	Height        int     `json:"Height,omitempty"`
	AudioChannels int     `json:"AudioChannels,omitempty"`
}

// JellyfinMediaStream represents one entry of the media-stream list.
type JellyfinMediaStream struct {
	Codec        string `json:"Codec"`
	Language     string `json:"Language,omitempty"`
	DisplayTitle string `json:"DisplayTitle,omitempty"`
	Type         string `json:"Type"` // "Video", "Audio", "Subtitle"
	Index        int    `json:"Index"`
	IsDefault    bool   `json:"IsDefault"`
	Height       int    `json:"Height,omitempty"`
	Width        int    `json:"Width,omitempty"`
	BitRate      int    `json:"BitRate,omitempty"`
	Channels     int    `json:"Channels,omitempty"`
}

// IsLive reports whether the session has both a now-playing item and a
// play-state block, the definition of "live" for reconciliation.
func (s *JellyfinSession) IsLive() bool {
	return s.NowPlayingItem != nil && s.PlayState != nil
}

// IPAddress returns the client IP with any port suffix stripped.
func (s *JellyfinSession) IPAddress() string {
	endpoint := s.RemoteEndPoint
	if endpoint == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return host
	}
	// IPv6 without port arrives bracketed from some server versions
	return strings.Trim(endpoint, "[]")
}

// StreamByIndex returns the media stream with the given index and type,
// or nil when the stream list does not contain it.
func (i *JellyfinNowPlayingItem) StreamByIndex(streamType string, index int) *JellyfinMediaStream {
	for n := range i.MediaStreams {
		stream := &i.MediaStreams[n]
		if stream.Type == streamType && stream.Index == index {
			return stream
		}
	}
	return nil
}

// DefaultStream returns the default or first stream of the given type.
func (i *JellyfinNowPlayingItem) DefaultStream(streamType string) *JellyfinMediaStream {
	var first *JellyfinMediaStream
	for n := range i.MediaStreams {
		stream := &i.MediaStreams[n]
		if stream.Type != streamType {
			continue
		}
		if stream.IsDefault {
			return stream
		}
		if first == nil {
			first = stream
		}
	}
	return first
}

// VideoWidth returns the pixel width of the first video stream, or 0.
func (i *JellyfinNowPlayingItem) VideoWidth() int {
	for n := range i.MediaStreams {
		stream := &i.MediaStreams[n]
		if stream.Type == "Video" && stream.Width > 0 {
			return stream.Width
		}
	}
	return 0
}
