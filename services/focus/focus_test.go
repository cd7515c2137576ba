// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFocus/pkg/extensions"
	"github.com/AleutianAI/AleutianFocus/services/focus/config"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type hookEvent struct {
	userID  string
	name    string
	payload map[string]any
}

type recordingHook struct {
	mu     sync.Mutex
	events []hookEvent
	fail   bool
}

func (h *recordingHook) OnEvent(_ context.Context, userID, event string, payload map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hookEvent{userID, event, payload})
	if h.fail {
		return errors.New("push service down")
	}
	return nil
}

func (h *recordingHook) count(userID, name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.userID == userID && e.name == name {
			n++
		}
	}
	return n
}

// peakForU1 knows only user u1.
type peakForU1 struct{}

func (peakForU1) CurrentState(_ context.Context, userID string) (extensions.StateReport, bool, error) {
	if userID != "u1" {
		return extensions.StateReport{}, false, nil
	}
	return extensions.StateReport{Energy: 9, Focus: 90, Motivation: 8, Stress: 2}, true, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.GinMode = gin.TestMode
	cfg.RateLimit.RequestsPerSecond = 0
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func createTask(t *testing.T, router *gin.Engine, userID string, estimate int, complexity string) string {
	t.Helper()
	code, body := do(t, router, "POST", "/v1/users/"+userID+"/tasks", map[string]any{
		"title":              "draft chapter",
		"estimated_duration": estimate,
		"complexity":         complexity,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["task"].(map[string]any)["id"].(string)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Session.TickInterval = 0

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestService_HostExtensionsDriveSessions(t *testing.T) {
	clock := timer.NewFakeClock(t0)
	hook := &recordingHook{}
	opts := extensions.DefaultOptions().
		WithStateSource(peakForU1{}).
		WithEventHook(hook)

	svc, err := New(testConfig(), &opts, WithClock(clock), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	router := svc.Router()

	// u1 is at peak according to the host
	t1 := createTask(t, router, "u1", 60, "high")
	code, body := do(t, router, "POST", "/v1/users/u1/tasks/"+t1+"/start", nil)
	require.Equal(t, http.StatusOK, code, body)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "DEEP_WORK", sess["session_type"])
	assert.Equal(t, float64(60), sess["planned_duration"])

	// u2 is unknown to the host and falls back to the built-in default
	t2 := createTask(t, router, "u2", 60, "high")
	code, body = do(t, router, "POST", "/v1/users/u2/tasks/"+t2+"/start", nil)
	require.Equal(t, http.StatusOK, code, body)
	sess = body["session"].(map[string]any)
	assert.Equal(t, "NORMAL", sess["work_mode"])
	assert.Equal(t, float64(25), sess["planned_duration"])

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, hook.count("u1", "session_started"))
	assert.Equal(t, 3, hook.count("u1", "session_progress"))
	assert.Equal(t, 3, hook.count("u2", "session_progress"))

	code, body = do(t, router, "GET", "/v1/users/u1/session", nil)
	require.Equal(t, http.StatusOK, code, body)

	code, _ = do(t, router, "POST", "/v1/users/u1/tasks/"+t1+"/complete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, hook.count("u1", "session_completed"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 3, hook.count("u1", "session_progress"), "no ticks after completion")
	assert.Equal(t, 5, hook.count("u2", "session_progress"))
}

func TestService_EventHookFailureDoesNotFailOperation(t *testing.T) {
	clock := timer.NewFakeClock(t0)
	hook := &recordingHook{fail: true}
	opts := extensions.DefaultOptions().WithEventHook(hook)

	svc, err := New(testConfig(), &opts, WithClock(clock), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	id := createTask(t, svc.Router(), "u1", 30, "low")
	code, body := do(t, svc.Router(), "POST", "/v1/users/u1/tasks/"+id+"/start", nil)
	assert.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 1, hook.count("u1", "session_started"))
}

func TestService_StateReportsOverrideDefault(t *testing.T) {
	svc, err := New(testConfig(), nil, WithClock(timer.NewFakeClock(t0)), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	router := svc.Router()

	code, _ := do(t, router, "PUT", "/v1/users/u1/state", map[string]any{
		"energy": 3, "focus": 40, "motivation": 3, "stress": 6,
	})
	require.Equal(t, http.StatusOK, code)

	id := createTask(t, router, "u1", 120, "medium")
	code, body := do(t, router, "POST", "/v1/users/u1/tasks/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, code, body)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "LOW", sess["work_mode"])
	assert.Equal(t, float64(15), sess["planned_duration"])
}

func TestService_MetricsEndpoint(t *testing.T) {
	svc, err := New(testConfig(), nil, WithClock(timer.NewFakeClock(t0)), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	id := createTask(t, svc.Router(), "u1", 30, "low")
	code, _ := do(t, svc.Router(), "POST", "/v1/users/u1/tasks/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, code)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_focus_live_timers 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestService_RunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := testConfig()
	cfg.Server.Port = port
	cfg.Server.ShutdownTimeout = 2 * time.Second
	svc, err := New(cfg, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.NoError(t, svc.Close(), "Close after Run is a no-op")
}

func TestHostStates_RejectsOutOfRangeReport(t *testing.T) {
	src := stateSourceFunc(func(context.Context, string) (extensions.StateReport, bool, error) {
		return extensions.StateReport{Energy: 42, Focus: 50}, true, nil
	})
	h := hostStates{source: src}

	_, err := h.GetCurrentState(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-range")
}

type stateSourceFunc func(ctx context.Context, userID string) (extensions.StateReport, bool, error)

func (f stateSourceFunc) CurrentState(ctx context.Context, userID string) (extensions.StateReport, bool, error) {
	return f(ctx, userID)
}
