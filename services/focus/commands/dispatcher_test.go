// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOps records the last call on either surface.
type fakeOps struct {
	call   string
	args   []any
	err    error
	status datatypes.SessionStatus
}

func (f *fakeOps) rec(call string, args ...any) {
	f.call = call
	f.args = args
}

func (f *fakeOps) Start(_ context.Context, userID, taskID string) (datatypes.Session, error) {
	f.rec("Start", userID, taskID)
	return datatypes.Session{ID: "s1", TaskID: taskID}, f.err
}

func (f *fakeOps) Pause(_ context.Context, userID, taskID string) (datatypes.Session, error) {
	f.rec("Pause", userID, taskID)
	return datatypes.Session{}, f.err
}

func (f *fakeOps) Resume(_ context.Context, userID, taskID string) (datatypes.Session, error) {
	f.rec("Resume", userID, taskID)
	return datatypes.Session{}, f.err
}

func (f *fakeOps) ForceResume(_ context.Context, userID, taskID string, minutes int) (datatypes.Session, error) {
	f.rec("ForceResume", userID, taskID, minutes)
	return datatypes.Session{}, f.err
}

func (f *fakeOps) Complete(_ context.Context, userID, taskID string) error {
	f.rec("Complete", userID, taskID)
	return f.err
}

func (f *fakeOps) Cancel(_ context.Context, userID, taskID string) error {
	f.rec("Cancel", userID, taskID)
	return f.err
}

func (f *fakeOps) ClearActiveSession(_ context.Context, userID, taskID string) {
	f.rec("Clear", userID, taskID)
}

func (f *fakeOps) RateSession(_ context.Context, sessionID string, rating int) (datatypes.Session, error) {
	f.rec("Rate", sessionID, rating)
	return datatypes.Session{}, f.err
}

func (f *fakeOps) GetActiveSession(_ context.Context, userID string) (datatypes.SessionStatus, error) {
	f.rec("Status", userID)
	return f.status, f.err
}

type fakeCycle struct {
	fakeOps
}

func (f *fakeCycle) Start(_ context.Context, userID string) (datatypes.PomodoroSession, error) {
	f.rec("PomodoroStart", userID)
	return datatypes.PomodoroSession{UserID: userID}, f.err
}

func (f *fakeCycle) Pause(_ context.Context, userID string) (datatypes.PomodoroSession, error) {
	f.rec("PomodoroPause", userID)
	return datatypes.PomodoroSession{}, f.err
}

func (f *fakeCycle) Resume(_ context.Context, userID string) (datatypes.PomodoroSession, error) {
	f.rec("PomodoroResume", userID)
	return datatypes.PomodoroSession{}, f.err
}

func (f *fakeCycle) CompletePhase(_ context.Context, userID string) (datatypes.PomodoroSession, error) {
	f.rec("PomodoroComplete", userID)
	return datatypes.PomodoroSession{}, f.err
}

func (f *fakeCycle) Stop(_ context.Context, userID string) error {
	f.rec("PomodoroStop", userID)
	return f.err
}

func (f *fakeCycle) GetStatus(_ context.Context, userID string) (datatypes.PomodoroStatus, error) {
	f.rec("PomodoroStatus", userID)
	return datatypes.PomodoroStatus{}, f.err
}

func TestDispatch_RoutesEveryAction(t *testing.T) {
	tests := []struct {
		action   datatypes.CommandAction
		params   []string
		wantCall string
		wantArgs []any
	}{
		{datatypes.ActionStartSession, []string{"t1"}, "Start", []any{"u1", "t1"}},
		{datatypes.ActionPauseSession, []string{"t1"}, "Pause", []any{"u1", "t1"}},
		{datatypes.ActionResumeSession, []string{"t1"}, "Resume", []any{"u1", "t1"}},
		{datatypes.ActionForceResume, []string{"t1"}, "ForceResume", []any{"u1", "t1", 0}},
		{datatypes.ActionForceResume, []string{"t1", "20"}, "ForceResume", []any{"u1", "t1", 20}},
		{datatypes.ActionCompleteSession, []string{"t1"}, "Complete", []any{"u1", "t1"}},
		{datatypes.ActionCancelSession, []string{"t1"}, "Cancel", []any{"u1", "t1"}},
		{datatypes.ActionClearSession, nil, "Clear", []any{"u1", ""}},
		{datatypes.ActionClearSession, []string{"t1"}, "Clear", []any{"u1", "t1"}},
		{datatypes.ActionRateSession, []string{"s1", "4"}, "Rate", []any{"s1", 4}},
		{datatypes.ActionSessionStatus, nil, "Status", []any{"u1"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			ops := &fakeOps{}
			d := NewDispatcher(ops, &fakeCycle{})

			res, err := d.Dispatch(context.Background(), "u1", datatypes.Command{Action: tt.action, Params: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.action, res.Action)
			assert.Equal(t, tt.wantCall, ops.call)
			assert.Equal(t, tt.wantArgs, ops.args)
		})
	}
}

func TestDispatch_PomodoroActions(t *testing.T) {
	actions := map[datatypes.CommandAction]string{
		datatypes.ActionPomodoroStart:    "PomodoroStart",
		datatypes.ActionPomodoroPause:    "PomodoroPause",
		datatypes.ActionPomodoroResume:   "PomodoroResume",
		datatypes.ActionPomodoroComplete: "PomodoroComplete",
		datatypes.ActionPomodoroStop:     "PomodoroStop",
		datatypes.ActionPomodoroStatus:   "PomodoroStatus",
	}
	for action, want := range actions {
		cycle := &fakeCycle{}
		d := NewDispatcher(&fakeOps{}, cycle)
		_, err := d.Dispatch(context.Background(), "u1", datatypes.Command{Action: action})
		require.NoError(t, err, action)
		assert.Equal(t, want, cycle.call)
		assert.Equal(t, []any{"u1"}, cycle.args)
	}
}

func TestDispatch_InvalidCommands(t *testing.T) {
	d := NewDispatcher(&fakeOps{}, &fakeCycle{})
	tests := []struct {
		name string
		cmd  datatypes.Command
	}{
		{"unknown action", datatypes.Command{Action: "fly_away"}},
		{"empty action", datatypes.Command{}},
		{"missing task id", datatypes.Command{Action: datatypes.ActionStartSession}},
		{"missing rating", datatypes.Command{Action: datatypes.ActionRateSession, Params: []string{"s1"}}},
		{"non-numeric rating", datatypes.Command{Action: datatypes.ActionRateSession, Params: []string{"s1", "five"}}},
		{"negative minutes", datatypes.Command{Action: datatypes.ActionForceResume, Params: []string{"t1", "-5"}}},
		{"too many params", datatypes.Command{Action: datatypes.ActionStartSession, Params: []string{"a", "b", "c", "d", "e"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), "u1", tt.cmd)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestDispatch_OperationErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	d := NewDispatcher(&fakeOps{err: boom}, &fakeCycle{})

	_, err := d.Dispatch(context.Background(), "u1", datatypes.Command{
		Action: datatypes.ActionPauseSession,
		Params: []string{"t1"},
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidCommand)
}

func TestActions_CoversEveryEnumeratedAction(t *testing.T) {
	d := NewDispatcher(&fakeOps{}, &fakeCycle{})
	assert.Len(t, d.Actions(), 15)
}
