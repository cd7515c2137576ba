// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/commands"
	"github.com/AleutianAI/AleutianFocus/services/focus/lifecycle"
	"github.com/AleutianAI/AleutianFocus/services/focus/pomodoro"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	ActiveTaskID    string `json:"active_task_id,omitempty"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
	TotalElapsed    int    `json:"total_elapsed_minutes,omitempty"`
	Budget          int    `json:"budget_minutes,omitempty"`
}

// writeError maps an operation error onto a status code:
//
//	400  validation, malformed command, rating out of range
//	404  unknown task or session, nothing active
//	409  conflict, ownership mismatch, budget exhausted, already active/completed
//	503  record store or cache unavailable
func writeError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.FullPath(),
			"user_id", c.Param("userId"),
			"error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var conflict *lifecycle.SessionConflictError
	var mismatch *lifecycle.OwnershipMismatchError
	var budget *lifecycle.BudgetExhaustedError
	var upstream *lifecycle.UpstreamUnavailableError
	var invalid validator.ValidationErrors

	switch {
	case errors.As(err, &conflict):
		body.Code = "session_conflict"
		body.ActiveTaskID = conflict.ActiveTaskID
		body.ActiveSessionID = conflict.ActiveSessionID
		return http.StatusConflict, body
	case errors.As(err, &mismatch):
		body.Code = "ownership_mismatch"
		body.ActiveTaskID = mismatch.ActiveTaskID
		return http.StatusConflict, body
	case errors.As(err, &budget):
		body.Code = "budget_exhausted"
		body.TotalElapsed = budget.TotalElapsed
		body.Budget = budget.Budget
		return http.StatusConflict, body
	case errors.Is(err, lifecycle.ErrTaskAlreadyCompleted):
		body.Code = "task_already_completed"
		return http.StatusConflict, body
	case errors.Is(err, pomodoro.ErrAlreadyActive):
		body.Code = "pomodoro_already_active"
		return http.StatusConflict, body

	case errors.Is(err, lifecycle.ErrTaskNotFound):
		body.Code = "task_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, lifecycle.ErrSessionNotFound):
		body.Code = "session_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, lifecycle.ErrNoActiveSession):
		body.Code = "no_active_session"
		return http.StatusNotFound, body
	case errors.Is(err, pomodoro.ErrNotActive):
		body.Code = "no_active_pomodoro"
		return http.StatusNotFound, body

	case errors.As(err, &invalid),
		errors.Is(err, lifecycle.ErrInvalidRating),
		errors.Is(err, commands.ErrInvalidCommand):
		body.Code = "invalid_request"
		return http.StatusBadRequest, body

	case errors.As(err, &upstream), errors.Is(err, pomodoro.ErrUnavailable):
		body.Code = "upstream_unavailable"
		return http.StatusServiceUnavailable, body
	}

	body.Code = "internal"
	return http.StatusInternalServerError, body
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_request"})
}
