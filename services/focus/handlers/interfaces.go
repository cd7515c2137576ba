// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the focus HTTP API.
//
// Each constructor takes the narrow service interface it needs and returns a
// gin.HandlerFunc. Errors are translated by writeError.
package handlers

import (
	"context"
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/commands"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// Sessions is the lifecycle manager as seen by the HTTP layer.
type Sessions interface {
	commands.Lifecycle

	CreateTask(ctx context.Context, userID string, req datatypes.CreateTaskRequest) (datatypes.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (datatypes.Task, error)
	ListTasks(ctx context.Context, userID string, status datatypes.TaskStatus) ([]datatypes.Task, error)
}

// Pomodoro is the cycle engine as seen by the HTTP layer.
type Pomodoro = commands.Pomodoro

// States reads and stores productivity states.
type States interface {
	GetCurrentState(ctx context.Context, userID string) (datatypes.ProductivityState, error)
	Report(ctx context.Context, userID string, s datatypes.ProductivityState) (datatypes.ProductivityState, error)
}

// EventStream upgrades a request to a per-user event subscription.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

// Dispatcher runs tagged commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, cmd datatypes.Command) (datatypes.CommandResult, error)
}
