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
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// CreateTask handles POST /v1/users/:userId/tasks.
func CreateTask(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}

		task, err := s.CreateTask(c.Request.Context(), c.Param("userId"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"task": task})
	}
}

// ListTasks handles GET /v1/users/:userId/tasks with an optional ?status=.
func ListTasks(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := datatypes.TaskStatus(c.Query("status"))
		switch status {
		case "", datatypes.TaskPending, datatypes.TaskInProgress, datatypes.TaskCompleted, datatypes.TaskCancelled:
		default:
			badRequest(c, "unknown status filter")
			return
		}

		tasks, err := s.ListTasks(c.Request.Context(), c.Param("userId"), status)
		if err != nil {
			writeError(c, err)
			return
		}
		if tasks == nil {
			tasks = []datatypes.Task{}
		}
		c.JSON(http.StatusOK, gin.H{"tasks": tasks})
	}
}

// GetTask handles GET /v1/users/:userId/tasks/:taskId.
func GetTask(s Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := s.GetTask(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"task": task})
	}
}

// ReportState handles PUT /v1/users/:userId/state.
func ReportState(st States) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ReportStateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}

		saved, err := st.Report(c.Request.Context(), c.Param("userId"), req.State())
		if err != nil {
			var invalid validator.ValidationErrors
			if errors.As(err, &invalid) {
				writeError(c, err)
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{
				Error: err.Error(),
				Code:  "upstream_unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": saved})
	}
}

// GetState handles GET /v1/users/:userId/state. A user who never reported
// gets the default state.
func GetState(st States) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := st.GetCurrentState(c.Request.Context(), c.Param("userId"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{
				Error: err.Error(),
				Code:  "upstream_unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": s})
	}
}
