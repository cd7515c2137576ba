// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package timer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// TickResult labels the outcome of one progress tick.
type TickResult string

const (
	TickProgress   TickResult = "progress"
	TickTimeout    TickResult = "timeout"
	TickFetchError TickResult = "fetch_error"
	TickStale      TickResult = "stale"
)

// ProgressSource loads the current snapshot for a running session.
type ProgressSource interface {
	LoadProgress(ctx context.Context, userID string) (datatypes.ActiveSession, datatypes.Task, bool, error)
}

// Notifier delivers events. Delivery is best-effort; Notify never fails.
type Notifier interface {
	Notify(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload)
}

// TickObserver records tick outcomes. May be nil.
type TickObserver interface {
	ObserveTick(result TickResult)
}

// ProgressTimer is the tick body for one cycle of one session. The cycle
// anchor and planned length are captured when the cycle begins; a resume
// builds a new ProgressTimer.
type ProgressTimer struct {
	UserID    string
	SessionID string
	TaskID    string

	CycleStart time.Time
	Planned    time.Duration

	Clock        Clock
	Source       ProgressSource
	Notifier     Notifier
	Observer     TickObserver
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Key is the registry key for session timers.
func Key(sessionID string) string {
	return "session:" + sessionID
}

// Tick computes elapsed and remaining time for the cycle. It emits
// session_timeout and stops once the cycle has run out. Otherwise it re-reads
// the active session and its task and emits session_progress. A failed read or
// a snapshot that no longer matches this cycle stops the timer.
func (p *ProgressTimer) Tick(ctx context.Context) bool {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := p.Clock.Now()
	elapsed := now.Sub(p.CycleStart)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := p.Planned - elapsed

	if remaining <= 0 {
		p.observe(TickTimeout)
		p.Notifier.Notify(ctx, p.UserID, datatypes.EventSessionTimeout, datatypes.Payload{
			"session_id":      p.SessionID,
			"task_id":         p.TaskID,
			"planned_minutes": int(p.Planned / time.Minute),
		})
		logger.Info("session cycle timed out",
			"user_id", p.UserID,
			"session_id", p.SessionID)
		return false
	}

	fetchCtx := ctx
	if p.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.FetchTimeout)
		defer cancel()
	}
	active, task, ok, err := p.Source.LoadProgress(fetchCtx, p.UserID)
	if err != nil {
		p.observe(TickFetchError)
		logger.Warn("progress tick fetch failed, stopping timer",
			"user_id", p.UserID,
			"session_id", p.SessionID,
			"error", err)
		return false
	}
	if !ok || !p.matches(active) {
		p.observe(TickStale)
		logger.Debug("progress tick found stale snapshot, stopping timer",
			"user_id", p.UserID,
			"session_id", p.SessionID)
		return false
	}

	cycleProgress := percent(elapsed.Minutes(), p.Planned.Minutes())
	progress := cycleProgress
	if task.HasBudget() {
		total := datatypes.ElapsedMinutes(active.StartTime, now)
		progress = percent(float64(total), float64(task.EstimatedDuration))
	}

	p.observe(TickProgress)
	p.Notifier.Notify(ctx, p.UserID, datatypes.EventSessionProgress, datatypes.Payload{
		"session_id":        p.SessionID,
		"task_id":           p.TaskID,
		"elapsed_minutes":   int(elapsed / time.Minute),
		"remaining_minutes": int(math.Ceil(remaining.Minutes())),
		"progress":          progress,
		"cycle_progress":    cycleProgress,
	})
	return true
}

func (p *ProgressTimer) matches(active datatypes.ActiveSession) bool {
	return active.SessionID == p.SessionID &&
		active.Open() &&
		!active.Paused &&
		active.CycleStartTime.Equal(p.CycleStart)
}

func (p *ProgressTimer) observe(result TickResult) {
	if p.Observer != nil {
		p.Observer.ObserveTick(result)
	}
}

// percent returns part/whole as a percentage in [0, 100], rounded to one
// decimal place.
func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	v := part / whole * 100
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*10) / 10
}
