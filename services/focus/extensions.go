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
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianFocus/pkg/extensions"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/events"
	"github.com/AleutianAI/AleutianFocus/services/focus/state"
)

// hostStates reads from the host's StateSource and falls back to the
// self-reported store when the host knows nothing about the user. Reports
// always land in the store.
type hostStates struct {
	source extensions.StateSource
	stored *state.StoredProvider
}

func (h hostStates) GetCurrentState(ctx context.Context, userID string) (datatypes.ProductivityState, error) {
	report, ok, err := h.source.CurrentState(ctx, userID)
	if err != nil {
		return datatypes.ProductivityState{}, fmt.Errorf("host state source: %w", err)
	}
	if !ok {
		return h.stored.GetCurrentState(ctx, userID)
	}
	s := datatypes.ProductivityState{
		Energy:     report.Energy,
		Focus:      report.Focus,
		Motivation: report.Motivation,
		Stress:     report.Stress,
	}
	if err := datatypes.Validator().Struct(s); err != nil {
		return datatypes.ProductivityState{}, fmt.Errorf("host state source returned out-of-range state: %w", err)
	}
	return s, nil
}

func (h hostStates) Report(ctx context.Context, userID string, s datatypes.ProductivityState) (datatypes.ProductivityState, error) {
	return h.stored.Report(ctx, userID, s)
}

// hookSink delivers events to the host's EventHook.
func hookSink(hook extensions.EventHook) events.Sink {
	return events.SinkFunc(func(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
		if err := hook.OnEvent(ctx, userID, string(name), payload); err != nil {
			return fmt.Errorf("event hook %s: %w", name, err)
		}
		return nil
	})
}

var _ state.Provider = hostStates{}
