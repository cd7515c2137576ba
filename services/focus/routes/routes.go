// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/AleutianFocus/services/focus/handlers"
	"github.com/AleutianAI/AleutianFocus/services/focus/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds everything the routes are wired to. Limiters and Gatherer are
// optional: nil Limiters disables rate limiting, nil Gatherer serves the
// default registry on /metrics.
type Deps struct {
	Sessions   handlers.Sessions
	Pomodoro   handlers.Pomodoro
	States     handlers.States
	Events     handlers.EventStream
	Dispatcher handlers.Dispatcher

	Limiters     *middleware.Limiters
	RateObserver middleware.RejectObserver
	Gatherer     prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, d Deps) {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API version 1 group
	v1 := router.Group("/v1")
	if d.Limiters != nil {
		v1.Use(middleware.RateLimit(d.Limiters, d.RateObserver))
	}
	{
		v1.POST("/sessions/:sessionId/rating", handlers.RateSession(d.Sessions))

		users := v1.Group("/users/:userId")
		{
			users.GET("/events", handlers.SubscribeEvents(d.Events))
			users.PUT("/state", handlers.ReportState(d.States))
			users.GET("/state", handlers.GetState(d.States))
			users.GET("/session", handlers.GetActiveSession(d.Sessions))
			users.POST("/commands", handlers.DispatchCommand(d.Dispatcher))

			tasks := users.Group("/tasks")
			{
				tasks.POST("", handlers.CreateTask(d.Sessions))
				tasks.GET("", handlers.ListTasks(d.Sessions))
				tasks.GET("/:taskId", handlers.GetTask(d.Sessions))
				tasks.POST("/:taskId/start", handlers.StartSession(d.Sessions))
				tasks.POST("/:taskId/pause", handlers.PauseSession(d.Sessions))
				tasks.POST("/:taskId/resume", handlers.ResumeSession(d.Sessions))
				tasks.POST("/:taskId/force-resume", handlers.ForceResumeSession(d.Sessions))
				tasks.POST("/:taskId/complete", handlers.CompleteSession(d.Sessions))
				tasks.POST("/:taskId/cancel", handlers.CancelSession(d.Sessions))
				tasks.POST("/:taskId/clear", handlers.ClearSession(d.Sessions))
			}

			pomodoro := users.Group("/pomodoro")
			{
				pomodoro.POST("", handlers.StartPomodoro(d.Pomodoro))
				pomodoro.GET("", handlers.GetPomodoro(d.Pomodoro))
				pomodoro.DELETE("", handlers.StopPomodoro(d.Pomodoro))
				pomodoro.POST("/pause", handlers.PausePomodoro(d.Pomodoro))
				pomodoro.POST("/resume", handlers.ResumePomodoro(d.Pomodoro))
				pomodoro.POST("/complete-phase", handlers.CompletePomodoroPhase(d.Pomodoro))
			}
		}
	}
}
