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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gin-gonic/gin"
)

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubscribeEvents handles GET /v1/users/:userId/events. The connection is
// upgraded to a websocket and receives every event emitted for the user
// until either side closes it.
func SubscribeEvents(stream EventStream) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if err := stream.ServeWS(c.Writer, c.Request, userID); err != nil {
			slog.Warn("event subscription ended with error",
				"user_id", userID,
				"error", err)
		}
	}
}

// DispatchCommand handles POST /v1/users/:userId/commands.
func DispatchCommand(d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd datatypes.Command
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, "Invalid request body")
			return
		}

		res, err := d.Dispatch(c.Request.Context(), c.Param("userId"), cmd)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
