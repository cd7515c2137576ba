// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pomodoro runs the fixed-cadence work/break cycle.
//
// # Description
//
// Each user has at most one PomodoroSession, held in the pomodoro cache
// slot. Phases are WORK (25m), SHORT_BREAK (5m) and LONG_BREAK (15m); every
// fourth completed WORK phase is followed by a long break. Phases never
// advance on their own: the phase timer announces that a phase ran out and
// the user calls CompletePhase.
//
// Pause time is accumulated in TotalPausedTime and excluded from progress,
// so PhaseStartedAt stays fixed for the whole phase.
//
// # Thread Safety
//
// Engine methods are serialized by one mutex. Every operation is a single
// local cache read and write.
package pomodoro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFocus/pkg/extensions"
	"github.com/AleutianAI/AleutianFocus/services/focus/cache"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/observability"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var pomodoroTracer = otel.Tracer("aleutian.focus.pomodoro")

var (
	// ErrAlreadyActive is returned by Start when the user has a cycle running.
	ErrAlreadyActive = errors.New("pomodoro already active")

	// ErrNotActive is returned when the user has no cycle.
	ErrNotActive = errors.New("no active pomodoro")

	// ErrUnavailable wraps cache failures.
	ErrUnavailable = errors.New("pomodoro cache unavailable")
)

// Config holds the cycle cadence.
type Config struct {
	WorkDuration       time.Duration
	ShortBreakDuration time.Duration
	LongBreakDuration  time.Duration

	// LongBreakEvery is the number of WORK phases between long breaks.
	LongBreakEvery int

	TickInterval    time.Duration
	UpstreamTimeout time.Duration
}

// DefaultConfig returns 25/5/15 with a long break every 4 cycles.
func DefaultConfig() Config {
	return Config{
		WorkDuration:       25 * time.Minute,
		ShortBreakDuration: 5 * time.Minute,
		LongBreakDuration:  15 * time.Minute,
		LongBreakEvery:     4,
		TickInterval:       time.Minute,
		UpstreamTimeout:    3 * time.Second,
	}
}

// Deps are the Engine's collaborators. Cache and Timers are required.
type Deps struct {
	Cache    cache.PomodoroCache
	Timers   *timer.Registry
	Notifier timer.Notifier
	Audit    extensions.AuditLogger
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Engine is the Pomodoro cycle automaton.
type Engine struct {
	cache    cache.PomodoroCache
	timers   *timer.Registry
	clock    timer.Clock
	notifier timer.Notifier
	audit    extensions.AuditLogger
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      Config

	mu sync.Mutex
}

// NewEngine validates deps and fills defaults.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if deps.Cache == nil {
		return nil, errors.New("pomodoro: cache is required")
	}
	if deps.Timers == nil {
		return nil, errors.New("pomodoro: timer registry is required")
	}

	def := DefaultConfig()
	if cfg.WorkDuration <= 0 {
		cfg.WorkDuration = def.WorkDuration
	}
	if cfg.ShortBreakDuration <= 0 {
		cfg.ShortBreakDuration = def.ShortBreakDuration
	}
	if cfg.LongBreakDuration <= 0 {
		cfg.LongBreakDuration = def.LongBreakDuration
	}
	if cfg.LongBreakEvery <= 0 {
		cfg.LongBreakEvery = def.LongBreakEvery
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = def.UpstreamTimeout
	}

	e := &Engine{
		cache:    deps.Cache,
		timers:   deps.Timers,
		clock:    deps.Timers.Clock(),
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.audit == nil {
		e.audit = &extensions.NopAuditLogger{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Key returns the Registry key of a user's phase timer.
func Key(userID string) string {
	return "pomodoro:" + userID
}

// Start begins a new cycle in the WORK phase.
//
// # Outputs
//
//   - datatypes.PomodoroSession: The new cycle.
//   - error: ErrAlreadyActive or ErrUnavailable.
func (e *Engine) Start(ctx context.Context, userID string) (ps datatypes.PomodoroSession, err error) {
	ctx, span := e.startSpan(ctx, "Engine.Start", userID)
	defer func() { e.finish(span, observability.OpPomodoroStart, err) }()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok, err := e.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.PomodoroSession{}, unavailable("read", err)
	}
	if ok {
		return datatypes.PomodoroSession{}, ErrAlreadyActive
	}

	ps = datatypes.PomodoroSession{
		UserID:         userID,
		CurrentPhase:   datatypes.PhaseWork,
		PhaseStartedAt: e.clock.Now(),
		PhaseDuration:  e.cfg.WorkDuration,
	}
	if err := e.cache.Set(ctx, userID, ps); err != nil {
		return datatypes.PomodoroSession{}, unavailable("write", err)
	}

	e.armTimer(ps)
	e.notifier.Notify(ctx, userID, datatypes.EventPomodoroStarted, phasePayload(ps))
	e.recordAudit(ctx, "start", ps)
	e.logger.Info("pomodoro started", "user_id", userID)
	return ps, nil
}

// Pause freezes the current phase. Pausing a paused cycle is a no-op.
func (e *Engine) Pause(ctx context.Context, userID string) (ps datatypes.PomodoroSession, err error) {
	ctx, span := e.startSpan(ctx, "Engine.Pause", userID)
	defer func() { e.finish(span, observability.OpPomodoroPause, err) }()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, err = e.load(ctx, userID)
	if err != nil {
		return datatypes.PomodoroSession{}, err
	}
	if ps.IsPaused {
		return ps, nil
	}

	e.timers.Cancel(Key(userID))

	now := e.clock.Now()
	ps.IsPaused = true
	ps.PausedAt = &now
	if err := e.cache.Set(ctx, userID, ps); err != nil {
		return datatypes.PomodoroSession{}, unavailable("write", err)
	}

	e.notifier.Notify(ctx, userID, datatypes.EventPomodoroPaused, phasePayload(ps))
	e.recordAudit(ctx, "pause", ps)
	return ps, nil
}

// Resume adds the pause to TotalPausedTime and restarts the phase timer.
// Resuming a running cycle is a no-op.
func (e *Engine) Resume(ctx context.Context, userID string) (ps datatypes.PomodoroSession, err error) {
	ctx, span := e.startSpan(ctx, "Engine.Resume", userID)
	defer func() { e.finish(span, observability.OpPomodoroResume, err) }()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, err = e.load(ctx, userID)
	if err != nil {
		return datatypes.PomodoroSession{}, err
	}
	if !ps.IsPaused {
		return ps, nil
	}

	now := e.clock.Now()
	if ps.PausedAt != nil && now.After(*ps.PausedAt) {
		ps.TotalPausedTime += now.Sub(*ps.PausedAt)
	}
	ps.IsPaused = false
	ps.PausedAt = nil
	if err := e.cache.Set(ctx, userID, ps); err != nil {
		return datatypes.PomodoroSession{}, unavailable("write", err)
	}

	e.armTimer(ps)
	e.notifier.Notify(ctx, userID, datatypes.EventPomodoroResumed, phasePayload(ps))
	e.recordAudit(ctx, "resume", ps)
	return ps, nil
}

// CompletePhase moves to the next phase.
//
// # Description
//
// From WORK, CycleCount is incremented and the next phase is LONG_BREAK when
// CycleCount is a multiple of LongBreakEvery, otherwise SHORT_BREAK. From
// either break the next phase is WORK. The new phase starts now, running,
// with no paused time.
func (e *Engine) CompletePhase(ctx context.Context, userID string) (ps datatypes.PomodoroSession, err error) {
	ctx, span := e.startSpan(ctx, "Engine.CompletePhase", userID)
	defer func() { e.finish(span, observability.OpPomodoroPhase, err) }()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, err = e.load(ctx, userID)
	if err != nil {
		return datatypes.PomodoroSession{}, err
	}

	e.timers.Cancel(Key(userID))

	from := ps.CurrentPhase
	next := e.advance(ps)
	next.PhaseStartedAt = e.clock.Now()
	next.TotalPausedTime = 0
	next.IsPaused = false
	next.PausedAt = nil

	if err := e.cache.Set(ctx, userID, next); err != nil {
		if !ps.IsPaused {
			e.armTimer(ps)
		}
		return datatypes.PomodoroSession{}, unavailable("write", err)
	}

	span.SetAttributes(
		attribute.String("pomodoro.from", string(from)),
		attribute.String("pomodoro.to", string(next.CurrentPhase)),
		attribute.Int("pomodoro.cycle_count", next.CycleCount),
	)
	e.armTimer(next)
	e.metrics.RecordPomodoroTransition(from, next.CurrentPhase)
	e.notifier.Notify(ctx, userID, datatypes.EventPomodoroPhaseChanged, phasePayload(next))
	e.recordAudit(ctx, "complete_phase", next)
	e.logger.Info("pomodoro phase changed",
		"user_id", userID,
		"from", from,
		"to", next.CurrentPhase,
		"cycle_count", next.CycleCount)
	return next, nil
}

func (e *Engine) advance(ps datatypes.PomodoroSession) datatypes.PomodoroSession {
	if ps.CurrentPhase != datatypes.PhaseWork {
		ps.CurrentPhase = datatypes.PhaseWork
		ps.PhaseDuration = e.cfg.WorkDuration
		return ps
	}
	ps.CycleCount++
	if ps.CycleCount%e.cfg.LongBreakEvery == 0 {
		ps.CurrentPhase = datatypes.PhaseLongBreak
		ps.PhaseDuration = e.cfg.LongBreakDuration
	} else {
		ps.CurrentPhase = datatypes.PhaseShortBreak
		ps.PhaseDuration = e.cfg.ShortBreakDuration
	}
	return ps
}

// Stop discards the cycle. Nothing is kept. Stopping with no cycle running
// is a no-op.
func (e *Engine) Stop(ctx context.Context, userID string) (err error) {
	ctx, span := e.startSpan(ctx, "Engine.Stop", userID)
	defer func() { e.finish(span, observability.OpPomodoroStop, err) }()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok, err := e.cache.Get(ctx, userID)
	if err != nil {
		return unavailable("read", err)
	}
	e.timers.Cancel(Key(userID))
	if !ok {
		return nil
	}
	if err := e.cache.Delete(ctx, userID); err != nil {
		return unavailable("delete", err)
	}

	e.notifier.Notify(ctx, userID, datatypes.EventPomodoroStopped, phasePayload(ps))
	e.recordAudit(ctx, "stop", ps)
	return nil
}

// GetStatus returns the user's cycle with elapsed, remaining and progress
// as of now.
func (e *Engine) GetStatus(ctx context.Context, userID string) (datatypes.PomodoroStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	ps, err := e.load(ctx, userID)
	if err != nil {
		return datatypes.PomodoroStatus{}, err
	}
	now := e.clock.Now()
	return datatypes.PomodoroStatus{
		Session:   ps,
		Elapsed:   Elapsed(ps, now),
		Remaining: Remaining(ps, now),
		Progress:  Progress(ps, now),
	}, nil
}

// RecoverTimers re-arms the phase timer of every running cycle in the cache.
func (e *Engine) RecoverTimers(ctx context.Context) (int, error) {
	all, err := e.cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover pomodoro timers: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	armed := 0
	for _, ps := range all {
		if ps.IsPaused {
			continue
		}
		e.armTimer(ps)
		armed++
	}
	e.logger.Info("recovered pomodoro timers", "armed", armed, "cached_cycles", len(all))
	return armed, nil
}

// =============================================================================
// Progress arithmetic
// =============================================================================

// Elapsed is (now - PhaseStartedAt) - TotalPausedTime, minus the ongoing
// pause if paused, clamped to [0, PhaseDuration].
func Elapsed(ps datatypes.PomodoroSession, now time.Time) time.Duration {
	elapsed := now.Sub(ps.PhaseStartedAt) - ps.TotalPausedTime
	if ps.IsPaused && ps.PausedAt != nil && now.After(*ps.PausedAt) {
		elapsed -= now.Sub(*ps.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	if elapsed > ps.PhaseDuration {
		return ps.PhaseDuration
	}
	return elapsed
}

// Remaining is PhaseDuration - Elapsed.
func Remaining(ps datatypes.PomodoroSession, now time.Time) time.Duration {
	return ps.PhaseDuration - Elapsed(ps, now)
}

// Progress is the phase completion in percent, one decimal.
func Progress(ps datatypes.PomodoroSession, now time.Time) float64 {
	if ps.PhaseDuration <= 0 {
		return 0
	}
	v := float64(Elapsed(ps, now)) / float64(ps.PhaseDuration) * 100
	return math.Round(v*10) / 10
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) load(ctx context.Context, userID string) (datatypes.PomodoroSession, error) {
	ps, ok, err := e.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.PomodoroSession{}, unavailable("read", err)
	}
	if !ok {
		return datatypes.PomodoroSession{}, ErrNotActive
	}
	return ps, nil
}

func (e *Engine) armTimer(ps datatypes.PomodoroSession) {
	pt := &phaseTimer{
		userID:       ps.UserID,
		phase:        ps.CurrentPhase,
		phaseStart:   ps.PhaseStartedAt,
		clock:        e.clock,
		cache:        e.cache,
		notifier:     e.notifier,
		fetchTimeout: e.cfg.UpstreamTimeout,
		logger:       e.logger,
	}
	if e.metrics != nil {
		pt.observer = e.metrics
	}
	if err := e.timers.Start(Key(ps.UserID), e.cfg.TickInterval, pt.tick); err != nil {
		e.logger.Warn("failed to arm pomodoro timer", "user_id", ps.UserID, "error", err)
	}
}

func (e *Engine) recordAudit(ctx context.Context, action string, ps datatypes.PomodoroSession) {
	err := e.audit.Log(ctx, extensions.AuditEvent{
		EventType:    "pomodoro." + action,
		Timestamp:    e.clock.Now().UTC(),
		UserID:       ps.UserID,
		Action:       action,
		ResourceType: "pomodoro",
		ResourceID:   ps.UserID,
		Outcome:      "success",
		Metadata: map[string]any{
			"phase":       string(ps.CurrentPhase),
			"cycle_count": ps.CycleCount,
		},
	})
	if err != nil {
		e.logger.Warn("audit log failed", "action", action, "error", err)
	}
}

func (e *Engine) startSpan(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return pomodoroTracer.Start(ctx, name, trace.WithAttributes(attribute.String("user.id", userID)))
}

func (e *Engine) finish(span trace.Span, op observability.Operation, err error) {
	defer span.End()
	outcome := Outcome(err)
	e.metrics.RecordOperation(op, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

// Outcome maps an engine error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrAlreadyActive):
		return observability.OutcomeConflict
	case errors.Is(err, ErrNotActive):
		return observability.OutcomeNoSession
	case errors.Is(err, ErrUnavailable):
		return observability.OutcomeUpstream
	default:
		return observability.OutcomeInvalid
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func phasePayload(ps datatypes.PomodoroSession) datatypes.Payload {
	return datatypes.Payload{
		"phase":         string(ps.CurrentPhase),
		"cycle_count":   ps.CycleCount,
		"phase_minutes": int(ps.PhaseDuration / time.Minute),
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, datatypes.EventName, datatypes.Payload) {}
