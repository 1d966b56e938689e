// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/streamledger/internal/cache"
	"github.com/tomtom215/streamledger/internal/config"
	"github.com/tomtom215/streamledger/internal/database"
	"github.com/tomtom215/streamledger/internal/models"
)

// fakeClock makes wall-clock durations deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureNotifier records start events.
type captureNotifier struct {
	mu     sync.Mutex
	events []*models.StartEvent
}

func (n *captureNotifier) PlaybackStarted(_ context.Context, event *models.StartEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *captureNotifier) all() []*models.StartEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*models.StartEvent(nil), n.events...)
}

type testEngine struct {
	rec      *Reconciler
	db       *database.DB
	store    *cache.Store
	clock    *fakeClock
	notifier *captureNotifier
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := cache.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := newFakeClock()
	notifier := &captureNotifier{}

	rec := NewReconciler(db, store, nil, notifier, func() time.Duration { return 10 * time.Second })
	rec.clock = clock.Now

	return &testEngine{rec: rec, db: db, store: store, clock: clock, notifier: notifier}
}

func (e *testEngine) poll(t *testing.T, sessions ...models.JellyfinSession) int {
	t.Helper()
	live, err := e.rec.Reconcile(context.Background(), sessions)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return live
}

func (e *testEngine) history(t *testing.T, userID, itemID string) []*models.PlaybackHistoryEntry {
	t.Helper()
	entries, err := e.db.ListHistoryByUserItem(context.Background(), userID, itemID)
	if err != nil {
		t.Fatalf("ListHistoryByUserItem() error = %v", err)
	}
	return entries
}

func TestStartCreatesLedgerAndMirror(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	live := e.poll(t, liveSession("s1", "u1", "i1"))
	if live != 1 {
		t.Errorf("live = %d, want 1", live)
	}

	rec, err := e.db.GetActiveStream(ctx, "s1")
	if err != nil || rec == nil {
		t.Fatalf("GetActiveStream = %v, %v", rec, err)
	}

	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 || !entries[0].IsOpen() {
		t.Fatalf("history = %d entries, want 1 open", len(entries))
	}

	var snap models.SessionSnapshot
	found, err := e.store.Get(streamKey("s1"), &snap)
	if err != nil || !found {
		t.Fatalf("snapshot cache miss: found=%v err=%v", found, err)
	}

	user, err := e.db.GetUser(ctx, "u1")
	if err != nil || user == nil {
		t.Fatalf("user dimension not upserted: %v %v", user, err)
	}
}

func TestStartStopScenario(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	e.poll(t, liveSession("s1", "u1", "i1"))
	e.clock.Advance(90 * time.Second)
	e.poll(t) // session disappeared

	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 {
		t.Fatalf("history = %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.IsOpen() {
		t.Fatal("entry still open after disappearance")
	}
	// Position was zero, so the close used wall-clock elapsed time.
	if entry.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %d, want 90", entry.DurationSeconds)
	}

	if rec, _ := e.db.GetActiveStream(context.Background(), "s1"); rec != nil {
		t.Error("durable mirror not removed on stop")
	}
	if found, _ := e.store.Get(streamKey("s1"), &models.SessionSnapshot{}); found {
		t.Error("snapshot not removed on stop")
	}
}

func TestStopPrefersPositionCounter(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	session := liveSession("s1", "u1", "i1")
	session.PlayState.PositionTicks = 300 * ticksPerSecond
	e.poll(t, session)

	e.clock.Advance(5 * time.Second)
	e.poll(t)

	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 || entries[0].IsOpen() {
		t.Fatalf("history = %+v", entries)
	}
	// 300s of reported position beats the 5s of wall clock.
	if entries[0].DurationSeconds != 300 {
		t.Errorf("DurationSeconds = %d, want 300", entries[0].DurationSeconds)
	}
}

func TestItemChangeScenario(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	e.poll(t, liveSession("s1", "u1", "i1"))
	e.clock.Advance(60 * time.Second)

	next := liveSession("s1", "u1", "i2")
	e.poll(t, next)

	closed := e.history(t, "u1", "i1")
	if len(closed) != 1 || closed[0].IsOpen() {
		t.Fatalf("old item history = %+v, want one closed entry", closed)
	}
	// Item change closes on wall clock; the position counter belongs to
	// the new item.
	if closed[0].DurationSeconds != 60 {
		t.Errorf("DurationSeconds = %d, want 60", closed[0].DurationSeconds)
	}

	open := e.history(t, "u1", "i2")
	if len(open) != 1 || !open[0].IsOpen() {
		t.Fatalf("new item history = %+v, want one open entry", open)
	}

	// The durable mirror now points at the new item.
	rec, err := e.db.GetActiveStream(context.Background(), "s1")
	if err != nil || rec == nil || rec.ItemID != "i2" {
		t.Errorf("mirror = %+v, want item i2", rec)
	}
}

func TestIdempotentReplay(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	session := liveSession("s1", "u1", "i1")

	for i := 0; i < 5; i++ {
		e.poll(t, session)
	}

	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 {
		t.Fatalf("history = %d entries after replay, want 1", len(entries))
	}
	if !entries[0].IsOpen() {
		t.Error("entry closed by replay")
	}
	// Steady-state repetition must not inflate telemetry counters.
	if entries[0].PauseCount != 0 || entries[0].AudioChangeCount != 0 || entries[0].SubtitleChangeCount != 0 {
		t.Errorf("counters inflated: %+v", entries[0])
	}

	streams, err := e.db.ListActiveStreams(context.Background())
	if err != nil || len(streams) != 1 {
		t.Errorf("streams = %d, want 1", len(streams))
	}
}

func TestOpenEntryUniqueness(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	// Two distinct sessions playing the same item for the same user.
	e.poll(t,
		liveSession("s1", "u1", "i1"),
		liveSession("s2", "u1", "i1"),
	)

	open := 0
	for _, entry := range e.history(t, "u1", "i1") {
		if entry.IsOpen() {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open entries = %d, want exactly 1", open)
	}
}

func TestTelemetryCountersPersist(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	session := liveSession("s1", "u1", "i1")
	session.PlayState.AudioStreamIndex = 2
	e.poll(t, session)

	session.PlayState.AudioStreamIndex = 5
	session.PlayState.IsPaused = true
	e.poll(t, session)

	session.PlayState.IsPaused = false
	e.poll(t, session)

	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 {
		t.Fatalf("history = %d entries", len(entries))
	}
	if entries[0].AudioChangeCount != 1 {
		t.Errorf("AudioChangeCount = %d, want 1", entries[0].AudioChangeCount)
	}
	if entries[0].PauseCount != 1 {
		t.Errorf("PauseCount = %d, want 1", entries[0].PauseCount)
	}
}

func TestStreamInfoBackfill(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	// First poll carries no stream metadata.
	e.poll(t, liveSession("s1", "u1", "i1"))

	entries := e.history(t, "u1", "i1")
	if entries[0].AudioLanguage != "" {
		t.Fatalf("AudioLanguage = %q before backfill", entries[0].AudioLanguage)
	}

	// Metadata appears on a later poll.
	session := liveSession("s1", "u1", "i1")
	session.PlayState.AudioStreamIndex = 1
	session.NowPlayingItem.MediaStreams = []models.JellyfinMediaStream{
		{Type: "Audio", Index: 1, Codec: "flac", Language: "nor", IsDefault: true},
	}
	e.poll(t, session)

	entries = e.history(t, "u1", "i1")
	if entries[0].AudioLanguage != "nor" || entries[0].AudioCodec != "flac" {
		t.Errorf("backfill = %q/%q, want nor/flac", entries[0].AudioLanguage, entries[0].AudioCodec)
	}
}

func TestGhostConvergence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	e.poll(t, liveSession("s1", "u1", "i1"))

	// Simulate ephemeral cache loss: the durable mirror survives but the
	// previous-state set is empty, so disappearance detection misses it.
	if err := e.store.DropPrefix(streamKeyPrefix); err != nil {
		t.Fatal(err)
	}

	e.clock.Advance(30 * time.Second)
	e.poll(t) // no sessions; only the ghost pass can find s1

	if rec, _ := e.db.GetActiveStream(ctx, "s1"); rec != nil {
		t.Error("ghost mirror row not removed")
	}
	entries := e.history(t, "u1", "i1")
	if len(entries) != 1 || entries[0].IsOpen() {
		t.Fatalf("history = %+v, want one closed entry", entries)
	}
	if entries[0].DurationSeconds != 30 {
		t.Errorf("DurationSeconds = %d, want 30", entries[0].DurationSeconds)
	}
}

func TestStartupRecovery(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	startedAt := e.clock.Now().Add(-10 * time.Minute)

	// Durable state left behind by a crashed process: a mirror row with
	// 120s of reported position and its open ledger entry.
	if err := e.db.UpsertUser(ctx, &models.User{ID: "u9", Name: "user-u9", LastSeen: startedAt}); err != nil {
		t.Fatal(err)
	}
	if err := e.db.UpsertMediaItem(ctx, &models.MediaItem{ID: "i9", Name: "item-i9", Type: "Movie"}); err != nil {
		t.Fatal(err)
	}
	if err := e.db.UpsertActiveStream(ctx, &models.ActiveStreamRecord{
		SessionID:     "s9",
		UserID:        "u9",
		ItemID:        "i9",
		PlayMethod:    models.PlayMethodDirectPlay,
		PositionTicks: 120 * ticksPerSecond,
		StartedAt:     startedAt,
		LastPingAt:    startedAt,
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.db.InsertHistoryEntry(ctx, &models.PlaybackHistoryEntry{
		UserID:     "u9",
		ItemID:     "i9",
		StartedAt:  startedAt,
		PlayMethod: models.PlayMethodDirectPlay,
	}); err != nil {
		t.Fatal(err)
	}

	// Stale cache entries from the dead process.
	if err := e.store.Set(streamKey("s9"), &models.SessionSnapshot{SessionID: "s9"}, time.Hour); err != nil {
		t.Fatal(err)
	}

	if err := e.rec.RecoverAtStartup(ctx); err != nil {
		t.Fatalf("RecoverAtStartup() error = %v", err)
	}

	if rec, _ := e.db.GetActiveStream(ctx, "s9"); rec != nil {
		t.Error("mirror row survived startup recovery")
	}
	entries := e.history(t, "u9", "i9")
	if len(entries) != 1 || entries[0].IsOpen() {
		t.Fatalf("history = %+v, want one closed entry", entries)
	}
	if entries[0].DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %d, want 120 from position counter", entries[0].DurationSeconds)
	}

	keys, err := e.store.KeysWithPrefix(streamKeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("cache keys = %v, want cleared", keys)
	}
}

func TestStartupRecoveryOrphanLedger(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	// An open entry with no mirror row at all, started 30h ago: closed
	// on wall clock, capped at 24h.
	startedAt := e.clock.Now().Add(-30 * time.Hour)
	if err := e.db.InsertHistoryEntry(ctx, &models.PlaybackHistoryEntry{
		UserID:     "u5",
		ItemID:     "i5",
		StartedAt:  startedAt,
		PlayMethod: models.PlayMethodTranscode,
	}); err != nil {
		t.Fatal(err)
	}

	if err := e.rec.RecoverAtStartup(ctx); err != nil {
		t.Fatalf("RecoverAtStartup() error = %v", err)
	}

	entries := e.history(t, "u5", "i5")
	if len(entries) != 1 || entries[0].IsOpen() {
		t.Fatalf("history = %+v, want one closed entry", entries)
	}
	if entries[0].DurationSeconds != 86400 {
		t.Errorf("DurationSeconds = %d, want 24h cap", entries[0].DurationSeconds)
	}
}

func TestNotifierNewIPFlag(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	e.poll(t, liveSession("s1", "u1", "i1"))
	e.clock.Advance(time.Minute)
	e.poll(t) // stop

	e.clock.Advance(time.Minute)
	e.poll(t, liveSession("s2", "u1", "i2")) // same user, same address

	events := e.notifier.all()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].NewIP {
		t.Error("first start should report a new IP")
	}
	if events[1].NewIP {
		t.Error("second start from the same address should not report a new IP")
	}
}

func TestSkipsSessionsWithoutIdentity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	broken := liveSession("s1", "", "i1")
	ok := liveSession("s2", "u2", "i2")

	live := e.poll(t, broken, ok)
	if live != 1 {
		t.Errorf("live = %d, want 1 (identityless session skipped)", live)
	}

	streams, err := e.db.ListActiveStreams(context.Background())
	if err != nil || len(streams) != 1 || streams[0].SessionID != "s2" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestPollerNotConfigured(t *testing.T) {
	t.Parallel()

	p := NewPoller(nil, nil, NewScheduler(10*time.Second, 60*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() = nil, want context error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
