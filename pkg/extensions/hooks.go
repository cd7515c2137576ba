// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "context"

// StateReport is a productivity reading from an external source. Ranges:
// Energy, Motivation and Stress 0-10, Focus 0-100.
type StateReport struct {
	Energy     int
	Focus      int
	Motivation int
	Stress     int
}

// StateSource supplies a user's current productivity state, for hosts that
// compute it themselves (questionnaires, wearables).
type StateSource interface {
	// CurrentState returns the latest reading for userID. ok is false when
	// nothing is known, in which case the service uses its default state.
	CurrentState(ctx context.Context, userID string) (report StateReport, ok bool, err error)
}

// EventHook receives every session and Pomodoro event. Errors are logged
// by the service and never affect the operation that raised the event.
type EventHook interface {
	OnEvent(ctx context.Context, userID, event string, payload map[string]any) error
}

// EventHookFunc adapts a function to EventHook.
type EventHookFunc func(ctx context.Context, userID, event string, payload map[string]any) error

// OnEvent calls f.
func (f EventHookFunc) OnEvent(ctx context.Context, userID, event string, payload map[string]any) error {
	return f(ctx, userID, event, payload)
}
