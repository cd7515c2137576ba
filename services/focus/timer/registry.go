// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timer owns the recurring in-process timers that drive session and
// Pomodoro progress notifications.
//
// # Description
//
// A Registry maps a key (a session id, or "pomodoro:<user>") to exactly one
// live handle. Each handle is a self-re-arming one-shot: the next tick is
// scheduled only after the current tick returns, so ticks for one key never
// overlap. Cancel is synchronous. When it returns, no tick for that handle is
// running and none will run.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. A TickFunc must not call
// Cancel or Start for its own key; it stops itself by returning false.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickFunc runs once per interval. Returning false stops the timer.
type TickFunc func(ctx context.Context) bool

// Registry is the set of live timers owned by one process.
type Registry struct {
	clock   Clock
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	handles map[string]*handle
}

type handle struct {
	registry *Registry
	key      string
	interval time.Duration
	tick     TickFunc

	mu      sync.Mutex
	stopped bool
	pending Stopper
}

// NewRegistry creates an empty registry. A nil clock means RealClock and a nil
// logger means slog.Default().
func NewRegistry(clock Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		clock:   clock,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[string]*handle),
	}
}

// Clock returns the registry's time source.
func (r *Registry) Clock() Clock {
	return r.clock
}

// Start arms a recurring timer for key, first cancelling any handle already
// registered under it.
//
// # Inputs
//
//   - key: Timer identity. At most one handle exists per key.
//   - interval: Delay between ticks. Must be positive.
//   - tick: Called once per interval.
//
// # Outputs
//
//   - error: Non-nil if interval is not positive or the registry is stopped.
func (r *Registry) Start(key string, interval time.Duration, tick TickFunc) error {
	if interval <= 0 {
		return fmt.Errorf("timer %s: interval must be positive, got %v", key, interval)
	}
	if r.ctx.Err() != nil {
		return fmt.Errorf("timer %s: registry stopped", key)
	}

	h := &handle{registry: r, key: key, interval: interval, tick: tick}

	r.mu.Lock()
	old := r.handles[key]
	r.handles[key] = h
	r.mu.Unlock()

	if old != nil {
		old.stop()
		r.logger.Debug("replaced existing timer", "timer_key", key)
	}
	h.arm()
	return nil
}

// Cancel stops the timer registered under key. It blocks until an in-flight
// tick for that key has returned. Reports whether a timer was registered.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.stop()
	return true
}

// Active reports whether a timer is registered under key.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[key]
	return ok
}

// Len returns the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// StopAll cancels every timer and refuses further Starts.
func (r *Registry) StopAll() {
	r.cancel()

	r.mu.Lock()
	handles := make([]*handle, 0, len(r.handles))
	for key, h := range r.handles {
		handles = append(handles, h)
		delete(r.handles, key)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
	r.logger.Info("stopped all timers", "count", len(handles))
}

// release removes h if it is still the handle registered under its key.
func (r *Registry) release(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[h.key] == h {
		delete(r.handles, h.key)
	}
}

func (h *handle) arm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.pending = h.registry.clock.AfterFunc(h.interval, h.fire)
}

// fire runs one tick while holding h.mu, so stop waits for it to finish.
func (h *handle) fire() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}

	cont := h.runTick()
	if !cont {
		h.stopped = true
		h.pending = nil
		h.mu.Unlock()
		h.registry.release(h)
		return
	}
	h.pending = h.registry.clock.AfterFunc(h.interval, h.fire)
	h.mu.Unlock()
}

func (h *handle) runTick() (cont bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.registry.logger.Error("timer tick panicked, stopping timer",
				"timer_key", h.key,
				"panic", fmt.Sprint(rec))
			cont = false
		}
	}()
	return h.tick(h.registry.ctx)
}

func (h *handle) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
}
