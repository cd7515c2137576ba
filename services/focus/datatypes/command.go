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

// CommandAction is the tag of a front-end command. The front end sends the
// tag and positional params; it never sends free-form command strings.
type CommandAction string

const (
	ActionStartSession    CommandAction = "start_session"
	ActionPauseSession    CommandAction = "pause_session"
	ActionResumeSession   CommandAction = "resume_session"
	ActionForceResume     CommandAction = "force_resume"
	ActionCompleteSession CommandAction = "complete_session"
	ActionCancelSession   CommandAction = "cancel_session"
	ActionClearSession    CommandAction = "clear_session"
	ActionRateSession     CommandAction = "rate_session"
	ActionSessionStatus   CommandAction = "session_status"

	ActionPomodoroStart    CommandAction = "pomodoro_start"
	ActionPomodoroPause    CommandAction = "pomodoro_pause"
	ActionPomodoroResume   CommandAction = "pomodoro_resume"
	ActionPomodoroComplete CommandAction = "pomodoro_complete_phase"
	ActionPomodoroStop     CommandAction = "pomodoro_stop"
	ActionPomodoroStatus   CommandAction = "pomodoro_status"
)

// Command is the tagged variant received at the conversational boundary.
type Command struct {
	Action CommandAction `json:"action" validate:"required,oneof=start_session pause_session resume_session force_resume complete_session cancel_session clear_session rate_session session_status pomodoro_start pomodoro_pause pomodoro_resume pomodoro_complete_phase pomodoro_stop pomodoro_status"`
	Params []string      `json:"params" validate:"max=4,dive,max=128"`
}

func (c *Command) Validate() error {
	return requestValidate.Struct(c)
}

// CommandResult is the response body of the command endpoint.
type CommandResult struct {
	Action CommandAction `json:"action"`
	Result any           `json:"result,omitempty"`
}
