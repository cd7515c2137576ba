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
	"errors"
	"io"
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gin-gonic/gin"
)

type sessionOp func(ctx context.Context, userID, taskID string) (datatypes.Session, error)

func handleSessionOp(op sessionOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := op(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

// StartSession handles POST /v1/users/:userId/tasks/:taskId/start.
func StartSession(s Sessions) gin.HandlerFunc {
	return handleSessionOp(s.Start)
}

// PauseSession handles POST /v1/users/:userId/tasks/:taskId/pause.
func PauseSession(s Sessions) gin.HandlerFunc {
	return handleSessionOp(s.Pause)
}

// ResumeSession handles POST /v1/users/:userId/tasks/:taskId/resume.
func ResumeSession(s Sessions) gin.HandlerFunc {
	return handleSessionOp(s.Resume)
}

// ForceResumeSession handles POST /v1/users/:userId/tasks/:taskId/force-resume.
// The body is optional; without fixed_minutes the default continuation
// length applies.
func ForceResumeSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ForceResumeRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}

		sess, err := s.ForceResume(c.Request.Context(), c.Param("userId"), c.Param("taskId"), req.FixedMinutes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

// CompleteSession handles POST /v1/users/:userId/tasks/:taskId/complete.
func CompleteSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Complete(c.Request.Context(), c.Param("userId"), c.Param("taskId")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "completed"})
	}
}

// CancelSession handles POST /v1/users/:userId/tasks/:taskId/cancel.
func CancelSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Cancel(c.Request.Context(), c.Param("userId"), c.Param("taskId")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}

// ClearSession handles POST /v1/users/:userId/tasks/:taskId/clear. It always
// succeeds.
func ClearSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.ClearActiveSession(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}

// GetActiveSession handles GET /v1/users/:userId/session.
func GetActiveSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := s.GetActiveSession(c.Request.Context(), c.Param("userId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// RateSession handles POST /v1/sessions/:sessionId/rating.
func RateSession(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}

		sess, err := s.RateSession(c.Request.Context(), c.Param("sessionId"), req.Rating)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}
