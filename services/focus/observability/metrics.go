// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the focus engine.
//
// # Description
//
// Metrics include:
//   - Lifecycle operation counters (by operation and outcome)
//   - Sessions started (by session type and work mode)
//   - Progress timer ticks (by result) and a live-timer gauge
//   - Event delivery failures (by event)
//   - Pomodoro phase transitions
//   - Completed-session length histogram
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is safe to call on a nil *Metrics, which records nothing.
package observability

import (
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const focusSubsystem = "focus"

// Operation names a lifecycle or Pomodoro operation for labeling.
type Operation string

const (
	OpStart          Operation = "start"
	OpPause          Operation = "pause"
	OpResume         Operation = "resume"
	OpForceResume    Operation = "force_resume"
	OpComplete       Operation = "complete"
	OpCancel         Operation = "cancel"
	OpClear          Operation = "clear"
	OpRate           Operation = "rate"
	OpPomodoroStart  Operation = "pomodoro_start"
	OpPomodoroPause  Operation = "pomodoro_pause"
	OpPomodoroResume Operation = "pomodoro_resume"
	OpPomodoroPhase  Operation = "pomodoro_complete_phase"
	OpPomodoroStop   Operation = "pomodoro_stop"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeConflict  = "conflict"
	OutcomeMismatch  = "mismatch"
	OutcomeBudget    = "budget_exhausted"
	OutcomeNotFound  = "not_found"
	OutcomeUpstream  = "upstream"
	OutcomeInvalid   = "invalid"
	OutcomeNoSession = "no_active_session"
)

// Metrics holds all Prometheus metrics for the focus engine.
//
// # Fields
//
//   - OperationsTotal: Lifecycle calls by operation and outcome
//   - SessionsStartedTotal: New sessions by session_type and work_mode
//   - TimerTicksTotal: Progress ticks by result
//   - EmitFailuresTotal: Undelivered events by event name
//   - PomodoroTransitionsTotal: Phase changes by from and to phase
//   - SessionMinutes: Total minutes of completed sessions
//   - RateLimitedTotal: Requests rejected by the per-user limiter
type Metrics struct {
	OperationsTotal          *prometheus.CounterVec
	SessionsStartedTotal     *prometheus.CounterVec
	TimerTicksTotal          *prometheus.CounterVec
	EmitFailuresTotal        *prometheus.CounterVec
	PomodoroTransitionsTotal *prometheus.CounterVec
	SessionMinutes           prometheus.Histogram
	RateLimitedTotal         prometheus.Counter

	registerer prometheus.Registerer
}

// NewMetrics creates and registers every metric with reg.
//
// # Inputs
//
//   - reg: Target registry. Use prometheus.DefaultRegisterer in production
//     and prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if called twice against the same registry (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registerer: reg,

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "operations_total",
				Help:      "Lifecycle and Pomodoro operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		SessionsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "sessions_started_total",
				Help:      "Sessions started by session type and work mode",
			},
			[]string{"session_type", "work_mode"},
		),

		TimerTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "timer_ticks_total",
				Help:      "Progress timer ticks by result",
			},
			[]string{"result"},
		),

		EmitFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "emit_failures_total",
				Help:      "Events that could not be delivered, by event",
			},
			[]string{"event"},
		),

		PomodoroTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "pomodoro_transitions_total",
				Help:      "Pomodoro phase transitions by from and to phase",
			},
			[]string{"from", "to"},
		),

		SessionMinutes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "session_minutes",
				Help:      "Total elapsed minutes of completed sessions",
				Buckets:   []float64{5, 10, 15, 25, 45, 60, 90, 120, 240},
			},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: focusSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-user rate limiter",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordOperation counts one call of op with the given outcome.
func (m *Metrics) RecordOperation(op Operation, outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(string(op), outcome).Inc()
}

// RecordSessionStarted counts a new session.
func (m *Metrics) RecordSessionStarted(sessionType datatypes.SessionType, mode datatypes.WorkMode) {
	if m == nil {
		return
	}
	m.SessionsStartedTotal.WithLabelValues(string(sessionType), string(mode)).Inc()
}

// ObserveTick implements timer.TickObserver.
func (m *Metrics) ObserveTick(result timer.TickResult) {
	if m == nil {
		return
	}
	m.TimerTicksTotal.WithLabelValues(string(result)).Inc()
}

// ObserveEmitFailure implements events.EmitObserver.
func (m *Metrics) ObserveEmitFailure(name datatypes.EventName) {
	if m == nil {
		return
	}
	m.EmitFailuresTotal.WithLabelValues(string(name)).Inc()
}

// RecordPomodoroTransition counts a phase change.
func (m *Metrics) RecordPomodoroTransition(from, to datatypes.PomodoroPhase) {
	if m == nil {
		return
	}
	m.PomodoroTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveSessionMinutes records the length of a completed session.
func (m *Metrics) ObserveSessionMinutes(minutes int) {
	if m == nil {
		return
	}
	m.SessionMinutes.Observe(float64(minutes))
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RegisterLiveTimers exposes count as the live timer gauge. count is read at
// scrape time.
func (m *Metrics) RegisterLiveTimers(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registerer).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: focusSubsystem,
			Name:      "live_timers",
			Help:      "Recurring timers currently armed in this process",
		},
		func() float64 { return float64(count()) },
	)
}
