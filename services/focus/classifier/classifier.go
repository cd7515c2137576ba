// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier maps a productivity state and a task onto a work mode,
// a session type and a planned cycle length. It performs no I/O.
package classifier

import (
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// Planned cycle lengths in minutes.
const (
	PeakMaxMinutes  = 90
	NormalMinutes   = 25
	LowMinutes      = 15
	CriticalMinutes = 10
)

// Result is the classification of one cycle.
type Result struct {
	WorkMode        datatypes.WorkMode    `json:"work_mode"`
	SessionType     datatypes.SessionType `json:"session_type"`
	PlannedDuration int                   `json:"planned_duration"`
}

// Mode returns the work mode for a state.
//
//	PEAK      energy >= 8 and focus >= 80
//	NORMAL    energy >= 5 and focus >= 60
//	LOW       energy >= 3 and focus >= 40
//	CRITICAL  otherwise
func Mode(state datatypes.ProductivityState) datatypes.WorkMode {
	switch {
	case state.Energy >= 8 && state.Focus >= 80:
		return datatypes.WorkModePeak
	case state.Energy >= 5 && state.Focus >= 60:
		return datatypes.WorkModeNormal
	case state.Energy >= 3 && state.Focus >= 40:
		return datatypes.WorkModeLow
	default:
		return datatypes.WorkModeCritical
	}
}

// SessionTypeFor picks the session type for a mode and a task complexity.
func SessionTypeFor(mode datatypes.WorkMode, complexity datatypes.Complexity) datatypes.SessionType {
	switch {
	case mode == datatypes.WorkModePeak && complexity == datatypes.ComplexityHigh:
		return datatypes.SessionTypeDeepWork
	case mode == datatypes.WorkModeNormal:
		return datatypes.SessionTypePomodoro
	default:
		return datatypes.SessionTypeFocus
	}
}

// PlannedDuration returns the cycle length in minutes for a mode. PEAK is
// capped by the task estimate; a task without an estimate gets the full 90.
func PlannedDuration(mode datatypes.WorkMode, task datatypes.Task) int {
	switch mode {
	case datatypes.WorkModePeak:
		if task.HasBudget() && task.EstimatedDuration < PeakMaxMinutes {
			return task.EstimatedDuration
		}
		return PeakMaxMinutes
	case datatypes.WorkModeNormal:
		return NormalMinutes
	case datatypes.WorkModeLow:
		return LowMinutes
	default:
		return CriticalMinutes
	}
}

// Classify combines Mode, SessionTypeFor and PlannedDuration.
func Classify(state datatypes.ProductivityState, task datatypes.Task) Result {
	mode := Mode(state)
	return Result{
		WorkMode:        mode,
		SessionType:     SessionTypeFor(mode, task.Complexity),
		PlannedDuration: PlannedDuration(mode, task),
	}
}
