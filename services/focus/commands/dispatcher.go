// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commands maps tagged front-end commands onto lifecycle and
// Pomodoro operations.
//
// # Description
//
// A Command is an action name plus positional string params. The
// Dispatcher's table gives each action its arity and the operation it calls:
//
//	start_session           [taskId]
//	pause_session           [taskId]
//	resume_session          [taskId]
//	force_resume            [taskId, minutes?]
//	complete_session        [taskId]
//	cancel_session          [taskId]
//	clear_session           [taskId?]
//	rate_session            [sessionId, rating]
//	session_status          []
//	pomodoro_*              []
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// ErrInvalidCommand is wrapped by every dispatch error caused by the command
// itself rather than by the operation it names.
var ErrInvalidCommand = errors.New("invalid command")

// Lifecycle is the session surface the dispatcher drives.
type Lifecycle interface {
	Start(ctx context.Context, userID, taskID string) (datatypes.Session, error)
	Pause(ctx context.Context, userID, taskID string) (datatypes.Session, error)
	Resume(ctx context.Context, userID, taskID string) (datatypes.Session, error)
	ForceResume(ctx context.Context, userID, taskID string, fixedMinutes int) (datatypes.Session, error)
	Complete(ctx context.Context, userID, taskID string) error
	Cancel(ctx context.Context, userID, taskID string) error
	ClearActiveSession(ctx context.Context, userID, taskID string)
	RateSession(ctx context.Context, sessionID string, rating int) (datatypes.Session, error)
	GetActiveSession(ctx context.Context, userID string) (datatypes.SessionStatus, error)
}

// Pomodoro is the cycle surface the dispatcher drives.
type Pomodoro interface {
	Start(ctx context.Context, userID string) (datatypes.PomodoroSession, error)
	Pause(ctx context.Context, userID string) (datatypes.PomodoroSession, error)
	Resume(ctx context.Context, userID string) (datatypes.PomodoroSession, error)
	CompletePhase(ctx context.Context, userID string) (datatypes.PomodoroSession, error)
	Stop(ctx context.Context, userID string) error
	GetStatus(ctx context.Context, userID string) (datatypes.PomodoroStatus, error)
}

type route struct {
	minParams int
	run       func(ctx context.Context, userID string, params []string) (any, error)
}

// Dispatcher executes Commands.
type Dispatcher struct {
	table map[datatypes.CommandAction]route
}

// NewDispatcher builds the action table.
func NewDispatcher(sessions Lifecycle, pomodoro Pomodoro) *Dispatcher {
	taskOp := func(op func(context.Context, string, string) (datatypes.Session, error)) route {
		return route{minParams: 1, run: func(ctx context.Context, userID string, p []string) (any, error) {
			return op(ctx, userID, p[0])
		}}
	}
	taskDone := func(op func(context.Context, string, string) error) route {
		return route{minParams: 1, run: func(ctx context.Context, userID string, p []string) (any, error) {
			return nil, op(ctx, userID, p[0])
		}}
	}
	cycleOp := func(op func(context.Context, string) (datatypes.PomodoroSession, error)) route {
		return route{run: func(ctx context.Context, userID string, _ []string) (any, error) {
			return op(ctx, userID)
		}}
	}

	return &Dispatcher{table: map[datatypes.CommandAction]route{
		datatypes.ActionStartSession:    taskOp(sessions.Start),
		datatypes.ActionPauseSession:    taskOp(sessions.Pause),
		datatypes.ActionResumeSession:   taskOp(sessions.Resume),
		datatypes.ActionCompleteSession: taskDone(sessions.Complete),
		datatypes.ActionCancelSession:   taskDone(sessions.Cancel),
		datatypes.ActionForceResume: {minParams: 1, run: func(ctx context.Context, userID string, p []string) (any, error) {
			minutes := 0
			if len(p) > 1 && p[1] != "" {
				n, err := positiveInt("minutes", p[1])
				if err != nil {
					return nil, err
				}
				minutes = n
			}
			return sessions.ForceResume(ctx, userID, p[0], minutes)
		}},
		datatypes.ActionClearSession: {run: func(ctx context.Context, userID string, p []string) (any, error) {
			taskID := ""
			if len(p) > 0 {
				taskID = p[0]
			}
			sessions.ClearActiveSession(ctx, userID, taskID)
			return nil, nil
		}},
		datatypes.ActionRateSession: {minParams: 2, run: func(ctx context.Context, _ string, p []string) (any, error) {
			rating, err := positiveInt("rating", p[1])
			if err != nil {
				return nil, err
			}
			return sessions.RateSession(ctx, p[0], rating)
		}},
		datatypes.ActionSessionStatus: {run: func(ctx context.Context, userID string, _ []string) (any, error) {
			return sessions.GetActiveSession(ctx, userID)
		}},

		datatypes.ActionPomodoroStart:    cycleOp(pomodoro.Start),
		datatypes.ActionPomodoroPause:    cycleOp(pomodoro.Pause),
		datatypes.ActionPomodoroResume:   cycleOp(pomodoro.Resume),
		datatypes.ActionPomodoroComplete: cycleOp(pomodoro.CompletePhase),
		datatypes.ActionPomodoroStop: {run: func(ctx context.Context, userID string, _ []string) (any, error) {
			return nil, pomodoro.Stop(ctx, userID)
		}},
		datatypes.ActionPomodoroStatus: {run: func(ctx context.Context, userID string, _ []string) (any, error) {
			return pomodoro.GetStatus(ctx, userID)
		}},
	}}
}

// Dispatch validates cmd and runs its operation for userID.
//
// # Outputs
//
//   - datatypes.CommandResult: The action and the operation's result, if any.
//   - error: Wraps ErrInvalidCommand for a malformed command; otherwise the
//     operation's own error, unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, cmd datatypes.Command) (datatypes.CommandResult, error) {
	if err := cmd.Validate(); err != nil {
		return datatypes.CommandResult{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	r, ok := d.table[cmd.Action]
	if !ok {
		return datatypes.CommandResult{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
	if len(cmd.Params) < r.minParams {
		return datatypes.CommandResult{}, fmt.Errorf("%w: %s needs %d params, got %d",
			ErrInvalidCommand, cmd.Action, r.minParams, len(cmd.Params))
	}

	result, err := r.run(ctx, userID, cmd.Params)
	if err != nil {
		return datatypes.CommandResult{}, err
	}
	return datatypes.CommandResult{Action: cmd.Action, Result: result}, nil
}

// Actions lists the registered actions.
func (d *Dispatcher) Actions() []datatypes.CommandAction {
	out := make([]datatypes.CommandAction, 0, len(d.table))
	for a := range d.table {
		out = append(out, a)
	}
	return out
}

func positiveInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidCommand, name, s)
	}
	return n, nil
}
