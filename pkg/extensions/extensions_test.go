// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.AuditLogger == nil {
		t.Fatal("DefaultOptions().AuditLogger should not be nil")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
	if opts.StateSource != nil {
		t.Error("DefaultOptions().StateSource should be nil")
	}
	if opts.EventHook != nil {
		t.Error("DefaultOptions().EventHook should be nil")
	}
}

type stubStateSource struct{}

func (stubStateSource) CurrentState(context.Context, string) (StateReport, bool, error) {
	return StateReport{Energy: 9, Focus: 90}, true, nil
}

func TestServiceOptions_FluentChaining(t *testing.T) {
	audit := NewMemoryAuditLogger(10)
	var hookCalls int
	hook := EventHookFunc(func(context.Context, string, string, map[string]any) error {
		hookCalls++
		return nil
	})

	opts := DefaultOptions().
		WithAudit(audit).
		WithEventHook(hook).
		WithStateSource(stubStateSource{})

	if opts.AuditLogger != audit {
		t.Error("WithAudit did not set the audit logger")
	}
	if opts.StateSource == nil {
		t.Error("WithStateSource did not set the state source")
	}
	if err := opts.EventHook.OnEvent(context.Background(), "u1", "session_started", nil); err != nil {
		t.Errorf("OnEvent returned %v", err)
	}
	if hookCalls != 1 {
		t.Errorf("hook called %d times, want 1", hookCalls)
	}
}

func TestServiceOptions_AuditDefaultsToNop(t *testing.T) {
	var opts ServiceOptions
	if _, ok := opts.Audit().(*NopAuditLogger); !ok {
		t.Error("zero ServiceOptions.Audit() should be *NopAuditLogger")
	}
}

// ============================================================================
// AuditLogger Tests
// ============================================================================

func TestNopAuditLogger(t *testing.T) {
	l := &NopAuditLogger{}
	ctx := context.Background()

	if err := l.Log(ctx, AuditEvent{EventType: "session.start"}); err != nil {
		t.Errorf("Log returned %v", err)
	}
	events, err := l.Query(ctx, AuditFilter{})
	if err != nil {
		t.Errorf("Query returned %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("Query should return an empty non-nil slice, got %v", events)
	}
	if err := l.Flush(ctx); err != nil {
		t.Errorf("Flush returned %v", err)
	}
}

func TestSlogAuditLogger_WritesRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	l := NewSlogAuditLogger(logger)

	err := l.Log(context.Background(), AuditEvent{
		EventType:  "session.complete",
		UserID:     "u1",
		ResourceID: "s1",
		Outcome:    "success",
	})
	if err != nil {
		t.Fatalf("Log returned %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"event_type":"session.complete"`, `"user_id":"u1"`, `"resource_id":"s1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}

func TestMemoryAuditLogger_QueryNewestFirst(t *testing.T) {
	l := NewMemoryAuditLogger(10)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_ = l.Log(ctx, AuditEvent{EventType: "session.start", UserID: "u1", Timestamp: base})
	_ = l.Log(ctx, AuditEvent{EventType: "session.pause", UserID: "u1", Timestamp: base.Add(time.Minute)})
	_ = l.Log(ctx, AuditEvent{EventType: "session.start", UserID: "u2", Timestamp: base.Add(2 * time.Minute)})

	events, _ := l.Query(ctx, AuditFilter{UserID: "u1"})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != "session.pause" {
		t.Errorf("newest event should come first, got %s", events[0].EventType)
	}

	starts, _ := l.Query(ctx, AuditFilter{EventTypes: []string{"session.start"}, Limit: 1})
	if len(starts) != 1 || starts[0].UserID != "u2" {
		t.Errorf("limit/type filter returned %v", starts)
	}

	windowed, _ := l.Query(ctx, AuditFilter{StartTime: base.Add(30 * time.Second), EndTime: base.Add(2 * time.Minute)})
	if len(windowed) != 1 || windowed[0].EventType != "session.pause" {
		t.Errorf("time window returned %v", windowed)
	}
}

func TestMemoryAuditLogger_Capacity(t *testing.T) {
	l := NewMemoryAuditLogger(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = l.Log(ctx, AuditEvent{ResourceID: id})
	}

	events, _ := l.Query(ctx, AuditFilter{})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ResourceID != "c" || events[1].ResourceID != "b" {
		t.Errorf("oldest event should be evicted, got %v", events)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Log should fill a zero Timestamp")
	}
}

func TestMemoryAuditLogger_ConcurrentSafety(t *testing.T) {
	l := NewMemoryAuditLogger(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log(ctx, AuditEvent{EventType: "session.start"})
			_, _ = l.Query(ctx, AuditFilter{})
		}()
	}
	wg.Wait()

	events, _ := l.Query(ctx, AuditFilter{})
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}
