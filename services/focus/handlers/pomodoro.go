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
	"context"
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gin-gonic/gin"
)

type cycleOp func(ctx context.Context, userID string) (datatypes.PomodoroSession, error)

func handleCycleOp(op cycleOp, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := op(c.Request.Context(), c.Param("userId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(status, gin.H{"pomodoro": ps})
	}
}

// StartPomodoro handles POST /v1/users/:userId/pomodoro.
func StartPomodoro(p Pomodoro) gin.HandlerFunc {
	return handleCycleOp(p.Start, http.StatusCreated)
}

// PausePomodoro handles POST /v1/users/:userId/pomodoro/pause.
func PausePomodoro(p Pomodoro) gin.HandlerFunc {
	return handleCycleOp(p.Pause, http.StatusOK)
}

// ResumePomodoro handles POST /v1/users/:userId/pomodoro/resume.
func ResumePomodoro(p Pomodoro) gin.HandlerFunc {
	return handleCycleOp(p.Resume, http.StatusOK)
}

// CompletePomodoroPhase handles POST /v1/users/:userId/pomodoro/complete-phase.
func CompletePomodoroPhase(p Pomodoro) gin.HandlerFunc {
	return handleCycleOp(p.CompletePhase, http.StatusOK)
}

// GetPomodoro handles GET /v1/users/:userId/pomodoro.
func GetPomodoro(p Pomodoro) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := p.GetStatus(c.Request.Context(), c.Param("userId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pomodoro":          status.Session,
			"elapsed_seconds":   int(status.Elapsed.Seconds()),
			"remaining_seconds": int(status.Remaining.Seconds()),
			"progress":          status.Progress,
		})
	}
}

// StopPomodoro handles DELETE /v1/users/:userId/pomodoro.
func StopPomodoro(p Pomodoro) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Stop(c.Request.Context(), c.Param("userId")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
