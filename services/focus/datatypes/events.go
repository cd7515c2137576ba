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

// EventName identifies a notification pushed to the user's front end.
type EventName string

const (
	EventSessionStarted   EventName = "session_started"
	EventSessionPaused    EventName = "session_paused"
	EventSessionResumed   EventName = "session_resumed"
	EventSessionProgress  EventName = "session_progress"
	EventSessionTimeout   EventName = "session_timeout"
	EventSessionCompleted EventName = "session_completed"
	EventSessionCancelled EventName = "session_cancelled"
	EventSessionCleared   EventName = "session_cleared"

	EventPomodoroStarted       EventName = "pomodoro_started"
	EventPomodoroPaused        EventName = "pomodoro_paused"
	EventPomodoroResumed       EventName = "pomodoro_resumed"
	EventPomodoroPhaseChanged  EventName = "pomodoro_phase_changed"
	EventPomodoroProgress      EventName = "pomodoro_progress"
	EventPomodoroPhaseFinished EventName = "pomodoro_phase_finished"
	EventPomodoroStopped       EventName = "pomodoro_stopped"
)

// Payload is the event body. Keys are snake_case.
type Payload map[string]any

// Event is the envelope written to push channels.
type Event struct {
	UserID    string    `json:"user_id"`
	Name      EventName `json:"event"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
