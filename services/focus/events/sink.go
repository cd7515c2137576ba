// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events delivers session and Pomodoro notifications.
//
// # Description
//
// A Sink is one delivery channel (websocket subscribers, InfluxDB, the log).
// The Notifier wraps a Sink with a timeout and swallows its errors: delivery
// failures are logged and counted, never returned to the operation that
// triggered the event.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// Sink is a notification channel.
type Sink interface {
	Emit(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error

func (f SinkFunc) Emit(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
	return f(ctx, userID, name, payload)
}

// MultiSink fans an event out to every sink. All sinks are tried; their
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, userID, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every event to a logger at DEBUG.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Emit(_ context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("event", "user_id", userID, "event", string(name), "payload", map[string]any(payload))
	return nil
}

// EmitObserver counts delivery failures. May be nil.
type EmitObserver interface {
	ObserveEmitFailure(name datatypes.EventName)
}

// Notifier is the best-effort front of a Sink.
type Notifier struct {
	sink     Sink
	timeout  time.Duration
	logger   *slog.Logger
	observer EmitObserver
}

// NewNotifier wraps sink. A non-positive timeout disables the deadline.
func NewNotifier(sink Sink, timeout time.Duration, logger *slog.Logger, observer EmitObserver) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sink: sink, timeout: timeout, logger: logger, observer: observer}
}

// Notify emits the event. The caller's cancellation does not abort delivery;
// only the notifier's own timeout does.
func (n *Notifier) Notify(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) {
	if n == nil || n.sink == nil {
		return
	}
	emitCtx := context.WithoutCancel(ctx)
	if n.timeout > 0 {
		var cancel context.CancelFunc
		emitCtx, cancel = context.WithTimeout(emitCtx, n.timeout)
		defer cancel()
	}
	if err := n.sink.Emit(emitCtx, userID, name, payload); err != nil {
		n.logger.Warn("event delivery failed",
			"user_id", userID,
			"event", string(name),
			"error", err)
		if n.observer != nil {
			n.observer.ObserveEmitFailure(name)
		}
	}
}
