// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package sync

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/streamledger/internal/logging"
	"github.com/tomtom215/streamledger/internal/metrics"
)

// Scheduler regimes.
const (
	// RegimeActive runs the short interval while live sessions exist.
	RegimeActive = "active"

	// RegimeIdle runs the long interval when no sessions are live.
	RegimeIdle = "idle"

	// RegimeErrorBackoff runs a fixed interval after any cycle failure.
	RegimeErrorBackoff = "error-backoff"
)

// Interval floors and the fixed backoff. The floors keep a misconfigured
// or maliciously low runtime setting from hammering the media server.
const (
	minActiveInterval    = 5 * time.Second
	minIdleInterval      = 15 * time.Second
	errorBackoffInterval = 60 * time.Second

	// failureLogEvery throttles failure logging under sustained outage:
	// the first failure logs at Error, then every Nth at Warn.
	failureLogEvery = 60
)

// CycleFunc runs one poll cycle and reports how many live sessions it
// observed. A non-nil error routes the scheduler to ErrorBackoff.
type CycleFunc func(ctx context.Context) (liveSessions int, err error)

// Scheduler drives the poll loop with three regimes. Cycles never overlap:
// the next wake is computed only after the current cycle fully settles.
type Scheduler struct {
	mu             sync.RWMutex
	activeInterval time.Duration
	idleInterval   time.Duration

	consecutiveErrors int
	regime            string
}

// NewScheduler creates a scheduler with the given initial intervals,
// clamped to the floors.
func NewScheduler(activeInterval, idleInterval time.Duration) *Scheduler {
	s := &Scheduler{regime: RegimeIdle}
	s.SetIntervals(activeInterval, idleInterval)
	return s
}

// SetIntervals updates the Active and Idle intervals at runtime. Values
// below the floors are clamped. Takes effect at the next reschedule.
func (s *Scheduler) SetIntervals(active, idle time.Duration) {
	if active < minActiveInterval {
		active = minActiveInterval
	}
	if idle < minIdleInterval {
		idle = minIdleInterval
	}

	s.mu.Lock()
	s.activeInterval = active
	s.idleInterval = idle
	s.mu.Unlock()
}

// ActiveInterval returns the current Active regime interval. Cache TTLs
// are derived from it.
func (s *Scheduler) ActiveInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeInterval
}

// IdleInterval returns the current Idle regime interval.
func (s *Scheduler) IdleInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idleInterval
}

// Regime returns the regime chosen after the most recent cycle.
func (s *Scheduler) Regime() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regime
}

// Run executes cycles until the context is cancelled. The first cycle
// starts immediately. Returns the context error on cancellation.
func (s *Scheduler) Run(ctx context.Context, cycle CycleFunc) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		interval := s.runCycle(ctx, cycle)

		timer.Reset(interval)
	}
}

// runCycle executes one cycle and returns the interval until the next.
func (s *Scheduler) runCycle(ctx context.Context, cycle CycleFunc) time.Duration {
	start := time.Now()
	live, err := cycle(ctx)
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return s.onFailure(err)
	}
	return s.onSuccess(live)
}

func (s *Scheduler) onSuccess(live int) time.Duration {
	metrics.PollCyclesTotal.WithLabelValues("success").Inc()
	metrics.ActiveSessions.Set(float64(live))

	s.mu.Lock()
	recovered := s.consecutiveErrors
	s.consecutiveErrors = 0
	if live > 0 {
		s.regime = RegimeActive
	} else {
		s.regime = RegimeIdle
	}
	interval := s.activeInterval
	if s.regime == RegimeIdle {
		interval = s.idleInterval
	}
	s.mu.Unlock()

	metrics.ConsecutivePollErrors.Set(0)

	if recovered > 0 {
		logging.Info().
			Int("failed_cycles", recovered).
			Msg("Session source recovered")
	}

	return interval
}

func (s *Scheduler) onFailure(err error) time.Duration {
	metrics.PollCyclesTotal.WithLabelValues("failure").Inc()

	s.mu.Lock()
	s.consecutiveErrors++
	streak := s.consecutiveErrors
	s.regime = RegimeErrorBackoff
	s.mu.Unlock()

	metrics.ConsecutivePollErrors.Set(float64(streak))

	switch {
	case streak == 1:
		logging.Error().Err(err).Msg("Poll cycle failed")
	case streak%failureLogEvery == 0:
		logging.Warn().Err(err).
			Int("consecutive_errors", streak).
			Msg("Poll cycle still failing")
	}

	return errorBackoffInterval
}
