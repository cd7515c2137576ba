// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pomodoro

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/cache"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
)

// phaseTimer is the tick for one phase of one user's cycle. It stops once
// the phase runs out, or once the cached cycle is paused, gone or in a
// different phase.
type phaseTimer struct {
	userID     string
	phase      datatypes.PomodoroPhase
	phaseStart time.Time

	clock        timer.Clock
	cache        cache.PomodoroCache
	notifier     timer.Notifier
	observer     timer.TickObserver
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func (p *phaseTimer) tick(ctx context.Context) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	ps, ok, err := p.cache.Get(fetchCtx, p.userID)
	cancel()
	if err != nil {
		p.observe(timer.TickFetchError)
		p.logger.Warn("pomodoro tick fetch failed, stopping timer",
			"user_id", p.userID,
			"error", err)
		return false
	}
	if !ok || ps.IsPaused || ps.CurrentPhase != p.phase || !ps.PhaseStartedAt.Equal(p.phaseStart) {
		p.observe(timer.TickStale)
		return false
	}

	now := p.clock.Now()
	remaining := Remaining(ps, now)
	if remaining <= 0 {
		p.observe(timer.TickTimeout)
		p.notifier.Notify(ctx, p.userID, datatypes.EventPomodoroPhaseFinished, datatypes.Payload{
			"phase":       string(ps.CurrentPhase),
			"cycle_count": ps.CycleCount,
		})
		return false
	}

	p.observe(timer.TickProgress)
	p.notifier.Notify(ctx, p.userID, datatypes.EventPomodoroProgress, datatypes.Payload{
		"phase":             string(ps.CurrentPhase),
		"remaining_seconds": int(remaining / time.Second),
		"progress":          Progress(ps, now),
	})
	return true
}

func (p *phaseTimer) observe(r timer.TickResult) {
	if p.observer != nil {
		p.observer.ObserveTick(r)
	}
}
