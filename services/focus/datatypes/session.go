// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the records, snapshots and wire types shared by the
// focus engine packages.
package datatypes

import (
	"time"
)

// WorkMode is the coarse productivity tier derived from energy and focus.
type WorkMode string

const (
	WorkModePeak     WorkMode = "PEAK"
	WorkModeNormal   WorkMode = "NORMAL"
	WorkModeLow      WorkMode = "LOW"
	WorkModeCritical WorkMode = "CRITICAL"
)

// SessionType is the kind of work session chosen for a cycle.
type SessionType string

const (
	SessionTypeDeepWork SessionType = "DEEP_WORK"
	SessionTypePomodoro SessionType = "POMODORO"
	SessionTypeFocus    SessionType = "FOCUS"
)

// Session is one work attempt on a task.
//
// # Description
//
// StartTime is fixed when the session is created and never changes. Each
// resume starts a new cycle: CycleStartTime and PlannedDuration are replaced,
// StartTime is not. TotalElapsed is always derived from StartTime, see
// ElapsedMinutes.
//
// # Fields
//
//   - PlannedDuration: minutes allotted to the current cycle.
//   - TotalElapsed: minutes since StartTime, as of the last write.
//   - Interruptions: incremented on every pause, never decremented.
//   - Completed / Cancelled: terminal flags. A session with neither set is open.
type Session struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	TaskID          string      `json:"task_id"`
	SessionType     SessionType `json:"session_type"`
	WorkMode        WorkMode    `json:"work_mode"`
	StartTime       time.Time   `json:"start_time"`
	CycleStartTime  time.Time   `json:"cycle_start_time"`
	PlannedDuration int         `json:"planned_duration"`
	TotalElapsed    int         `json:"total_elapsed"`
	Cycles          int         `json:"cycles"`
	Forced          bool        `json:"forced,omitempty"`
	Paused          bool        `json:"paused"`
	PauseStartedAt  *time.Time  `json:"pause_started_at,omitempty"`
	Interruptions   int         `json:"interruptions"`
	Completed       bool        `json:"completed"`
	Cancelled       bool        `json:"cancelled,omitempty"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	FocusRating     *int        `json:"focus_rating,omitempty"`
}

// Open reports whether the session is neither completed nor cancelled.
func (s *Session) Open() bool {
	return !s.Completed && !s.Cancelled
}

// ElapsedMinutes returns whole minutes between StartTime and now.
func (s *Session) ElapsedMinutes(now time.Time) int {
	return ElapsedMinutes(s.StartTime, now)
}

// CycleElapsed returns the time spent in the current cycle.
func (s *Session) CycleElapsed(now time.Time) time.Duration {
	if now.Before(s.CycleStartTime) {
		return 0
	}
	return now.Sub(s.CycleStartTime)
}

// CycleRemaining returns the time left in the current cycle, which may be
// negative once the cycle has run out.
func (s *Session) CycleRemaining(now time.Time) time.Duration {
	return time.Duration(s.PlannedDuration)*time.Minute - s.CycleElapsed(now)
}

// ElapsedMinutes is floor((now - start) / 1m), never negative.
func ElapsedMinutes(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / time.Minute)
}

// ActiveSession is the cache value held in a user's active-session slot.
type ActiveSession struct {
	Session
	SessionID string `json:"session_id"`
}

// NewActiveSession builds the cache snapshot for s.
func NewActiveSession(s Session) ActiveSession {
	return ActiveSession{Session: s, SessionID: s.ID}
}

// SessionStatus is the read model returned for a user's active session.
type SessionStatus struct {
	Session               Session `json:"session"`
	TotalElapsedMinutes   int     `json:"total_elapsed_minutes"`
	CycleElapsedMinutes   int     `json:"cycle_elapsed_minutes"`
	CycleRemainingMinutes int     `json:"cycle_remaining_minutes"`
	TimerRunning          bool    `json:"timer_running"`
}
