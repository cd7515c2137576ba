// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditEvent records one session lifecycle transition.
//
// # Event Categories
//
//   - Session: "session.start", "session.pause", "session.resume",
//     "session.force_resume", "session.complete", "session.cancel",
//     "session.clear", "session.rate"
//   - Pomodoro: "pomodoro.start", "pomodoro.phase", "pomodoro.stop"
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "session.start",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       "u1",
//	    Action:       "start",
//	    ResourceType: "session",
//	    ResourceID:   sessionID,
//	    Outcome:      "success",
//	    Metadata: map[string]any{
//	        "task_id":   "t1",
//	        "work_mode": "PEAK",
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the transition happened (UTC). If zero,
	// implementations set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies whose session changed.
	UserID string

	// Action is the lifecycle operation name.
	Action string

	// ResourceType is "session" or "pomodoro".
	ResourceType string

	// ResourceID is the session id, when there is one.
	ResourceID string

	// Outcome is "success", "conflict", "rejected" or "error".
	Outcome string

	// Metadata holds operation-specific details such as task_id, work_mode,
	// planned_minutes or the error message.
	Metadata map[string]any
}

// AuditFilter selects audit events. Zero fields match everything; set
// fields are combined with AND.
type AuditFilter struct {
	EventTypes []string
	UserID     string
	ResourceID string
	Outcome    string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

func (f AuditFilter) match(e AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.ResourceID != "" && f.ResourceID != e.ResourceID {
		return false
	}
	if f.Outcome != "" && f.Outcome != e.Outcome {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	return true
}

// AuditLogger records lifecycle transitions.
//
// Implementations must be safe for concurrent use. Log should return quickly;
// the service calls it after every transition and only logs its error.
type AuditLogger interface {
	// Log records an event.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists buffered events. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger. It discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// SlogAuditLogger writes each event as an INFO record with an "audit" group.
// Query always returns an empty slice.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger over logger. nil means
// slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.Group("audit",
			slog.String("event_type", event.EventType),
			slog.String("user_id", event.UserID),
			slog.String("action", event.Action),
			slog.String("resource_type", event.ResourceType),
			slog.String("resource_id", event.ResourceID),
			slog.String("outcome", event.Outcome),
			slog.Time("timestamp", event.Timestamp),
			slog.Any("metadata", event.Metadata),
		))
	return nil
}

func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps the most recent events in memory.
type MemoryAuditLogger struct {
	mu       sync.Mutex
	events   []AuditEvent
	capacity int
}

// NewMemoryAuditLogger keeps up to capacity events. capacity <= 0 means 1000.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLogger{capacity: capacity}
}

func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append([]AuditEvent(nil), l.events[over:]...)
	}
	return nil
}

func (l *MemoryAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []AuditEvent{}
	for i := len(l.events) - 1; i >= 0; i-- {
		if filter.match(l.events[i]) {
			out = append(out, l.events[i])
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	}
	return out, nil
}

func (l *MemoryAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
