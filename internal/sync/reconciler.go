// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/streamledger/internal/cache"
	"github.com/tomtom215/streamledger/internal/database"
	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/metrics"
	"github.com/tomtom215/streamledger/internal/models"
)

// streamKeyPrefix scopes session snapshots in the badger store.
const streamKeyPrefix = "stream:"

// snapshotTTLFactor sizes the snapshot TTL relative to the active poll
// interval, tolerating a missed poll or two without flapping.
const snapshotTTLFactor = 12

// GeoResolver resolves a client IP to a location, best-effort.
type GeoResolver interface {
	Resolve(ctx context.Context, ipAddress string) *models.Geolocation
}

// StartNotifier receives playback-start events. Implementations must not
// let delivery failures escape.
type StartNotifier interface {
	PlaybackStarted(ctx context.Context, event *models.StartEvent)
}

// Reconciler diffs each poll against the previous cache state and keeps
// the durable mirror and the ledger consistent with what the media server
// reports. All handlers are idempotent: replaying the same poll is a
// no-op beyond timestamp refreshes.
type Reconciler struct {
	db        *database.DB
	cache     *cache.Store
	geo       GeoResolver
	notifier  StartNotifier
	debouncer *TelemetryDebouncer

	activeInterval func() time.Duration

	// clock is swapped in tests for deterministic durations.
	clock func() time.Time
}

// NewReconciler wires the reconciliation engine. geo and notifier may be
// nil; the corresponding steps are skipped.
func NewReconciler(db *database.DB, store *cache.Store, geo GeoResolver, notifier StartNotifier, activeInterval func() time.Duration) *Reconciler {
	r := &Reconciler{
		db:             db,
		cache:          store,
		geo:            geo,
		notifier:       notifier,
		activeInterval: activeInterval,
		clock:          time.Now,
	}
	r.debouncer = NewTelemetryDebouncer(store, func() time.Duration {
		return 4 * activeInterval()
	})
	return r
}

func streamKey(sessionID string) string {
	return streamKeyPrefix + sessionID
}

func (r *Reconciler) snapshotTTL() time.Duration {
	return snapshotTTLFactor * r.activeInterval()
}

// Reconcile processes one poll result. Per-session failures are logged
// and skipped so one bad session cannot abort the cycle; only a failure
// to read the previous state set is a cycle error.
//
// Ordering within the cycle is fixed: starts and continues first, then
// disappearances, then the ghost pass. A session that changed item is
// closed and restarted in the first phase and can therefore never be
// double-closed by the later passes.
func (r *Reconciler) Reconcile(ctx context.Context, sessions []models.JellyfinSession) (int, error) {
	now := r.clock().UTC()

	current := r.buildSnapshots(sessions, now)

	previousKeys, err := r.cache.KeysWithPrefix(streamKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("previous state scan: %w", err)
	}
	previous := make(map[string]bool, len(previousKeys))
	for _, key := range previousKeys {
		previous[key[len(streamKeyPrefix):]] = true
	}

	// Phase 1: starts, continues, item changes, in poll-list order.
	for _, snap := range current {
		if err := r.reconcileSession(ctx, snap, previous[snap.SessionID], now); err != nil {
			logging.Error().Err(err).
				Str("session_id", snap.SessionID).
				Msg("Session reconciliation failed")
		}
	}

	liveSet := make(map[string]bool, len(current))
	for _, snap := range current {
		liveSet[snap.SessionID] = true
	}

	// Phase 2: disappeared sessions.
	for _, id := range sortedKeys(previous) {
		if liveSet[id] {
			continue
		}
		if err := r.handleStop(ctx, id, now, "disappeared"); err != nil {
			logging.Error().Err(err).
				Str("session_id", id).
				Msg("Stop handling failed")
		}
	}

	// Phase 3: ghost pass over the durable table.
	if err := r.ghostPass(ctx, liveSet, now, "ghost"); err != nil {
		logging.Error().Err(err).Msg("Ghost pass failed")
	}

	return len(current), nil
}

// buildSnapshots converts the raw poll list into typed snapshots,
// skipping sessions without the identity triple.
func (r *Reconciler) buildSnapshots(sessions []models.JellyfinSession, now time.Time) []*models.SessionSnapshot {
	snapshots := make([]*models.SessionSnapshot, 0, len(sessions))
	for i := range sessions {
		snap := BuildSnapshot(&sessions[i], now)
		if snap == nil {
			metrics.SessionsSkippedTotal.Inc()
			logging.Debug().
				Str("session_id", sessions[i].ID).
				Str("user_id", sessions[i].UserID).
				Msg("Skipping session without identity")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// reconcileSession routes one live session to start, continue, or
// item-change handling.
func (r *Reconciler) reconcileSession(ctx context.Context, snap *models.SessionSnapshot, known bool, now time.Time) error {
	if !known {
		return r.handleStart(ctx, snap, now, "new")
	}

	var cached models.SessionSnapshot
	found, err := r.cache.Get(streamKey(snap.SessionID), &cached)
	if err != nil {
		return fmt.Errorf("cached snapshot read: %w", err)
	}
	if !found {
		// Key expired between the prefix scan and the read.
		return r.handleStart(ctx, snap, now, "new")
	}

	if cached.ItemID != snap.ItemID {
		// Autoplay advanced under the same session. The position counter
		// now belongs to the new item, so the old entry closes on wall
		// clock.
		if err := r.closeOpenEntry(ctx, cached.UserID, cached.ItemID, 0, now, "item_change"); err != nil {
			return fmt.Errorf("item-change close: %w", err)
		}
		return r.handleStart(ctx, snap, now, "item_change")
	}

	return r.handleContinue(ctx, snap, now)
}

// handleStart processes a newly observed session: dimension upserts, geo
// enrichment, durable mirror, snapshot cache, and the ledger entry when
// no open one exists for the (user, item) pair.
func (r *Reconciler) handleStart(ctx context.Context, snap *models.SessionSnapshot, now time.Time, kind string) error {
	if err := r.db.UpsertUser(ctx, &models.User{
		ID:       snap.UserID,
		Name:     snap.UserName,
		LastSeen: now,
	}); err != nil {
		return err
	}

	if err := r.db.UpsertMediaItem(ctx, &models.MediaItem{
		ID:          snap.ItemID,
		Name:        snap.ItemName,
		Type:        snap.ItemType,
		SeriesID:    snap.SeriesID,
		SeriesName:  snap.SeriesName,
		SeasonID:    snap.SeasonID,
		SeasonName:  snap.SeasonName,
		AlbumID:     snap.AlbumID,
		AlbumName:   snap.AlbumName,
		AlbumArtist: snap.AlbumArtist,
	}); err != nil {
		return err
	}

	if r.geo != nil {
		if geo := r.geo.Resolve(ctx, snap.IPAddress); geo != nil {
			snap.Country = geo.Country
			snap.City = geo.City
		}
	}

	if err := r.db.UpsertActiveStream(ctx, &models.ActiveStreamRecord{
		SessionID:     snap.SessionID,
		UserID:        snap.UserID,
		ItemID:        snap.ItemID,
		Client:        snap.Client,
		DeviceName:    snap.DeviceName,
		IPAddress:     snap.IPAddress,
		PlayMethod:    snap.PlayMethod,
		PositionTicks: snap.PositionTicks,
		RunTimeTicks:  snap.RunTimeTicks,
		StartedAt:     now,
		LastPingAt:    now,
	}); err != nil {
		return err
	}

	if err := r.cache.Set(streamKey(snap.SessionID), snap, r.snapshotTTL()); err != nil {
		return fmt.Errorf("snapshot cache write: %w", err)
	}

	// Open-entry invariant: never create a second open entry for the
	// same (user, item) pair.
	open, err := r.db.GetOpenHistoryEntry(ctx, snap.UserID, snap.ItemID)
	if err != nil {
		return err
	}
	if open != nil {
		if _, err := r.debouncer.Observe(open.ID, snap); err != nil {
			logging.Warn().Err(err).Str("session_id", snap.SessionID).Msg("Telemetry seed failed")
		}
		return nil
	}

	newIP, err := r.isNewIP(ctx, snap.UserID, snap.IPAddress)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", snap.SessionID).Msg("New-IP check failed")
	}

	entry := &models.PlaybackHistoryEntry{
		UserID:           snap.UserID,
		ItemID:           snap.ItemID,
		StartedAt:        now,
		PlayMethod:       snap.PlayMethod,
		Client:           snap.Client,
		DeviceName:       snap.DeviceName,
		IPAddress:        snap.IPAddress,
		Country:          snap.Country,
		City:             snap.City,
		AudioLanguage:    snap.AudioLanguage,
		AudioCodec:       snap.AudioCodec,
		SubtitleLanguage: snap.SubtitleLanguage,
		SubtitleCodec:    snap.SubtitleCodec,
	}
	if err := r.db.InsertHistoryEntry(ctx, entry); err != nil {
		return err
	}
	metrics.SessionsStartedTotal.WithLabelValues(kind).Inc()

	if _, err := r.debouncer.Observe(entry.ID, snap); err != nil {
		logging.Warn().Err(err).Str("session_id", snap.SessionID).Msg("Telemetry seed failed")
	}

	if r.notifier != nil {
		r.notifier.PlaybackStarted(ctx, &models.StartEvent{
			SessionID:  snap.SessionID,
			UserName:   snap.UserName,
			ItemName:   snap.ItemName,
			SeriesName: snap.SeriesName,
			Client:     snap.Client,
			DeviceName: snap.DeviceName,
			IPAddress:  snap.IPAddress,
			Country:    snap.Country,
			City:       snap.City,
			PlayMethod: snap.PlayMethod,
			NewIP:      newIP,
			StartedAt:  now,
		})
	}

	return nil
}

// handleContinue refreshes the durable mirror and snapshot, applies
// debounced telemetry, and backfills stream metadata onto the open entry.
func (r *Reconciler) handleContinue(ctx context.Context, snap *models.SessionSnapshot, now time.Time) error {
	rec, err := r.db.GetActiveStream(ctx, snap.SessionID)
	if err != nil {
		return err
	}
	startedAt := now
	if rec != nil {
		startedAt = rec.StartedAt
	}

	// Carry geo forward from the cached snapshot so continuing polls do
	// not re-resolve.
	var cached models.SessionSnapshot
	if found, err := r.cache.Get(streamKey(snap.SessionID), &cached); err == nil && found {
		snap.Country = cached.Country
		snap.City = cached.City
	}

	if err := r.db.UpsertActiveStream(ctx, &models.ActiveStreamRecord{
		SessionID:     snap.SessionID,
		UserID:        snap.UserID,
		ItemID:        snap.ItemID,
		Client:        snap.Client,
		DeviceName:    snap.DeviceName,
		IPAddress:     snap.IPAddress,
		PlayMethod:    snap.PlayMethod,
		PositionTicks: snap.PositionTicks,
		RunTimeTicks:  snap.RunTimeTicks,
		StartedAt:     startedAt,
		LastPingAt:    now,
	}); err != nil {
		return err
	}

	if err := r.cache.Set(streamKey(snap.SessionID), snap, r.snapshotTTL()); err != nil {
		return fmt.Errorf("snapshot cache write: %w", err)
	}

	open, err := r.db.GetOpenHistoryEntry(ctx, snap.UserID, snap.ItemID)
	if err != nil {
		return err
	}
	if open == nil {
		// The entry was closed out from under us (external finalizer or
		// manual cleanup). Reopen through the start path.
		return r.handleStart(ctx, snap, now, "new")
	}

	transitions, err := r.debouncer.Observe(open.ID, snap)
	if err != nil {
		return fmt.Errorf("telemetry observe: %w", err)
	}
	for _, counter := range transitions {
		if err := r.db.IncrementTelemetryCounter(ctx, open.ID, counter); err != nil {
			return err
		}
	}

	return r.backfillStreamInfo(ctx, open, snap)
}

// backfillStreamInfo writes audio/subtitle language and codec onto the
// open entry when a value is newly available or changed. The first poll
// of a session often lacks stream metadata.
func (r *Reconciler) backfillStreamInfo(ctx context.Context, entry *models.PlaybackHistoryEntry, snap *models.SessionSnapshot) error {
	pick := func(fresh, stored string) string {
		if fresh != "" {
			return fresh
		}
		return stored
	}

	audioLang := pick(snap.AudioLanguage, entry.AudioLanguage)
	audioCodec := pick(snap.AudioCodec, entry.AudioCodec)
	subLang := pick(snap.SubtitleLanguage, entry.SubtitleLanguage)
	subCodec := pick(snap.SubtitleCodec, entry.SubtitleCodec)

	if audioLang == entry.AudioLanguage && audioCodec == entry.AudioCodec &&
		subLang == entry.SubtitleLanguage && subCodec == entry.SubtitleCodec {
		return nil
	}

	return r.db.UpdateHistoryStreamInfo(ctx, entry.ID, audioLang, audioCodec, subLang, subCodec)
}

// handleStop processes a session absent from the current poll: the
// snapshot is dropped, the durable mirror removed, and the open ledger
// entry finalized preferring the last known position counter.
func (r *Reconciler) handleStop(ctx context.Context, sessionID string, now time.Time, cause string) error {
	if err := r.cache.Delete(streamKey(sessionID)); err != nil {
		logging.Warn().Err(err).Str("session_id", sessionID).Msg("Snapshot cache delete failed")
	}

	rec, err := r.db.GetActiveStream(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if err := r.closeOpenEntry(ctx, rec.UserID, rec.ItemID, rec.PositionTicks, now, cause); err != nil {
		return err
	}

	return r.db.DeleteActiveStream(ctx, sessionID)
}

// closeOpenEntry finalizes the open ledger entry for a (user, item) pair,
// if one exists. positionTicks==0 forces wall-clock duration.
func (r *Reconciler) closeOpenEntry(ctx context.Context, userID, itemID string, positionTicks int64, now time.Time, cause string) error {
	open, err := r.db.GetOpenHistoryEntry(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if open == nil {
		return nil
	}

	duration := playbackDuration(positionTicks, open.StartedAt, now)
	if err := r.db.CloseHistoryEntry(ctx, open.ID, now, duration); err != nil {
		return err
	}
	metrics.SessionsStoppedTotal.WithLabelValues(cause).Inc()

	if err := r.debouncer.Forget(open.ID); err != nil {
		logging.Warn().Err(err).Str("entry_id", open.ID.String()).Msg("Telemetry state delete failed")
	}

	logging.Info().
		Str("user_id", userID).
		Str("item_id", itemID).
		Int64("duration_seconds", duration).
		Str("cause", cause).
		Msg("Playback stopped")
	return nil
}

// ghostPass sweeps durable records whose sessions are absent from the
// live set. This is the primary defense against sessions lost while the
// ephemeral cache was cleared but the durable mirror survived.
func (r *Reconciler) ghostPass(ctx context.Context, liveSet map[string]bool, now time.Time, cause string) error {
	records, err := r.db.ListActiveStreams(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if liveSet[rec.SessionID] {
			continue
		}
		if err := r.handleStop(ctx, rec.SessionID, now, cause); err != nil {
			logging.Error().Err(err).
				Str("session_id", rec.SessionID).
				Msg("Ghost stop failed")
		}
	}
	return nil
}

// RecoverAtStartup restores consistency after a restart: leftover
// snapshots are cleared (their TTL validity cannot be trusted across a
// process boundary), surviving durable records are finalized from their
// last known position, and any still-open ledger entries with no durable
// record are closed on capped wall clock.
func (r *Reconciler) RecoverAtStartup(ctx context.Context) error {
	now := r.clock().UTC()

	if err := r.cache.DropPrefix(streamKeyPrefix); err != nil {
		return fmt.Errorf("snapshot cache clear: %w", err)
	}
	if err := r.cache.DropPrefix(telemetryKeyPrefix); err != nil {
		return fmt.Errorf("telemetry cache clear: %w", err)
	}

	if err := r.ghostPass(ctx, map[string]bool{}, now, "orphan"); err != nil {
		return err
	}

	// Orphan-ledger pass: entries left open by a crash with no durable
	// record at all.
	orphans, err := r.db.ListOpenHistoryEntries(ctx)
	if err != nil {
		return err
	}
	for _, entry := range orphans {
		duration := playbackDuration(0, entry.StartedAt, now)
		if err := r.db.CloseHistoryEntry(ctx, entry.ID, now, duration); err != nil {
			logging.Error().Err(err).
				Str("entry_id", entry.ID.String()).
				Msg("Orphan close failed")
			continue
		}
		metrics.SessionsStoppedTotal.WithLabelValues("orphan").Inc()
	}

	if len(orphans) > 0 {
		logging.Info().Int("entries", len(orphans)).Msg("Closed orphaned ledger entries at startup")
	}
	return nil
}

// isNewIP reports whether the user has no prior ledger rows from this
// address. Counted before the new entry is inserted.
func (r *Reconciler) isNewIP(ctx context.Context, userID, ipAddress string) (bool, error) {
	if ipAddress == "" {
		return false, nil
	}
	count, err := r.db.CountHistoryByUserIP(ctx, userID, ipAddress)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// sortedKeys returns map keys in lexical order for deterministic
// processing of disappeared sessions.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
