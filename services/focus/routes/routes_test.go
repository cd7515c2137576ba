// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type staticStates struct{}

func (staticStates) GetCurrentState(context.Context, string) (datatypes.ProductivityState, error) {
	return datatypes.ProductivityState{Energy: 5, Focus: 60, Motivation: 5, Stress: 5}, nil
}

func (staticStates) Report(_ context.Context, _ string, s datatypes.ProductivityState) (datatypes.ProductivityState, error) {
	return s, nil
}

type countingObserver struct{ n int }

func (o *countingObserver) RecordRateLimited() { o.n++ }

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersAPI(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{})

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/sessions/:sessionId/rating"},
		{"GET", "/v1/users/:userId/events"},
		{"PUT", "/v1/users/:userId/state"},
		{"GET", "/v1/users/:userId/state"},
		{"GET", "/v1/users/:userId/session"},
		{"POST", "/v1/users/:userId/commands"},
		{"POST", "/v1/users/:userId/tasks"},
		{"GET", "/v1/users/:userId/tasks"},
		{"GET", "/v1/users/:userId/tasks/:taskId"},
		{"POST", "/v1/users/:userId/tasks/:taskId/start"},
		{"POST", "/v1/users/:userId/tasks/:taskId/pause"},
		{"POST", "/v1/users/:userId/tasks/:taskId/resume"},
		{"POST", "/v1/users/:userId/tasks/:taskId/force-resume"},
		{"POST", "/v1/users/:userId/tasks/:taskId/complete"},
		{"POST", "/v1/users/:userId/tasks/:taskId/cancel"},
		{"POST", "/v1/users/:userId/tasks/:taskId/clear"},
		{"POST", "/v1/users/:userId/pomodoro"},
		{"GET", "/v1/users/:userId/pomodoro"},
		{"DELETE", "/v1/users/:userId/pomodoro"},
		{"POST", "/v1/users/:userId/pomodoro/pause"},
		{"POST", "/v1/users/:userId/pomodoro/resume"},
		{"POST", "/v1/users/:userId/pomodoro/complete-phase"},
	}

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, e := range expected {
		assert.True(t, registered[e.method+" "+e.path], "expected route %s %s", e.method, e.path)
	}
	assert.Len(t, router.Routes(), len(expected))
}

func TestSetupRoutes_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "routes_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	router := gin.New()
	SetupRoutes(router, Deps{Gatherer: reg})

	w := serve(router, "GET", "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(router, "GET", "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "routes_test_total 1"))
}

func TestSetupRoutes_RateLimitPerUser(t *testing.T) {
	obs := &countingObserver{}
	router := gin.New()
	SetupRoutes(router, Deps{
		States:       staticStates{},
		Limiters:     middleware.NewLimiters(middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}),
		RateObserver: obs,
	})

	require.Equal(t, http.StatusOK, serve(router, "GET", "/v1/users/u1/state").Code)

	w := serve(router, "GET", "/v1/users/u1/state")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, 1, obs.n)

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/v1/users/u2/state").Code)

	// health is outside the limited group
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "GET", "/health").Code)
	}
}

func TestSetupRoutes_NoLimitersMeansUnlimited(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{States: staticStates{}})

	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, serve(router, "GET", "/v1/users/u1/state").Code)
	}
}
