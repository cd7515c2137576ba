// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"fmt"
)

// RecoverTimers re-arms a ProgressTimer for every running session found in
// the cache. Call it once at startup, after the cache has been opened. A
// session whose cycle ran out while the process was down times out on the
// first tick.
//
// # Outputs
//
//   - int: Number of timers armed.
//   - error: Non-nil if the cache could not be listed.
func (m *Manager) RecoverTimers(ctx context.Context) (int, error) {
	actives, err := m.cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover timers: %w", err)
	}

	armed := 0
	for _, active := range actives {
		if active.Paused || !active.Open() {
			continue
		}
		unlock := m.locks.lock(active.UserID)
		m.armTimer(active.Session)
		unlock()
		armed++
	}
	m.logger.Info("recovered progress timers", "armed", armed, "cached_sessions", len(actives))
	return armed, nil
}
