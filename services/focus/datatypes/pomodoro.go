// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

type PomodoroPhase string

const (
	PhaseWork       PomodoroPhase = "WORK"
	PhaseShortBreak PomodoroPhase = "SHORT_BREAK"
	PhaseLongBreak  PomodoroPhase = "LONG_BREAK"
)

// PomodoroSession is the per-user fixed-cadence cycle state. It lives only in
// the pomodoro cache slot and is deleted on stop.
type PomodoroSession struct {
	UserID          string        `json:"user_id"`
	CurrentPhase    PomodoroPhase `json:"current_phase"`
	CycleCount      int           `json:"cycle_count"`
	PhaseStartedAt  time.Time     `json:"phase_started_at"`
	PhaseDuration   time.Duration `json:"phase_duration"`
	IsPaused        bool          `json:"is_paused"`
	PausedAt        *time.Time    `json:"paused_at,omitempty"`
	TotalPausedTime time.Duration `json:"total_paused_time"`
}

// PomodoroStatus is the read model returned by GetStatus.
type PomodoroStatus struct {
	Session   PomodoroSession `json:"session"`
	Elapsed   time.Duration   `json:"elapsed"`
	Remaining time.Duration   `json:"remaining"`
	Progress  float64         `json:"progress"`
}
