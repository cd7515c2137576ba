// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle orchestrates work sessions: start, pause, resume,
// force-resume, complete, cancel and clear.
//
// # Description
//
// The Manager owns the one-active-session-per-user rule. The active session
// lives in the SessionCache slot; the Session record in the RecordStore is
// the record of truth and is written before the cache on every transition.
// Each running cycle has one ProgressTimer in the Registry, keyed by session
// id. Pause, complete, cancel and clear cancel the timer synchronously before
// returning.
//
// Elapsed time is always derived from the session's start instant. It is
// never accumulated, so repeated pause/resume cycles cannot drift.
//
// # Thread Safety
//
// Operations for one user are serialized by a per-user mutex. Across
// processes the cache slot is last-writer-wins.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFocus/pkg/extensions"
	"github.com/AleutianAI/AleutianFocus/services/focus/cache"
	"github.com/AleutianAI/AleutianFocus/services/focus/classifier"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/observability"
	"github.com/AleutianAI/AleutianFocus/services/focus/records"
	"github.com/AleutianAI/AleutianFocus/services/focus/state"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var lifecycleTracer = otel.Tracer("aleutian.focus.lifecycle")

// Config holds the lifecycle policy values.
type Config struct {
	// TickInterval is the ProgressTimer period.
	TickInterval time.Duration

	// ForceResumeMinutes is the continuation length when ForceResume is
	// called without an explicit value.
	ForceResumeMinutes int

	// UpstreamTimeout bounds each operation's store, cache and state calls.
	UpstreamTimeout time.Duration

	// DefaultState is used when the productivity state cannot be read.
	DefaultState datatypes.ProductivityState
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Minute,
		ForceResumeMinutes: 15,
		UpstreamTimeout:    3 * time.Second,
		DefaultState:       state.DefaultState,
	}
}

// Deps are the Manager's collaborators. Store, Cache, States and Timers are
// required.
type Deps struct {
	Store    records.Store
	Cache    cache.SessionCache
	States   state.Provider
	Timers   *timer.Registry
	Notifier timer.Notifier
	Audit    extensions.AuditLogger
	Metrics  *observability.Metrics
	Logger   *slog.Logger

	// NewID generates session and task ids. Default: uuid.NewString.
	NewID func() string
}

// Manager is the session lifecycle state machine.
type Manager struct {
	store    records.Store
	cache    cache.SessionCache
	states   state.Provider
	timers   *timer.Registry
	clock    timer.Clock
	notifier timer.Notifier
	audit    extensions.AuditLogger
	metrics  *observability.Metrics
	logger   *slog.Logger
	newID    func() string
	cfg      Config
	locks    userLocks
}

// NewManager validates deps and fills defaults.
//
// # Outputs
//
//   - *Manager: Ready to use.
//   - error: Non-nil if a required dependency is missing.
func NewManager(deps Deps, cfg Config) (*Manager, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("lifecycle: record store is required")
	case deps.Cache == nil:
		return nil, errors.New("lifecycle: session cache is required")
	case deps.States == nil:
		return nil, errors.New("lifecycle: state provider is required")
	case deps.Timers == nil:
		return nil, errors.New("lifecycle: timer registry is required")
	}

	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ForceResumeMinutes <= 0 {
		cfg.ForceResumeMinutes = def.ForceResumeMinutes
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = def.UpstreamTimeout
	}
	if cfg.DefaultState == (datatypes.ProductivityState{}) {
		cfg.DefaultState = def.DefaultState
	}

	m := &Manager{
		store:    deps.Store,
		cache:    deps.Cache,
		states:   deps.States,
		timers:   deps.Timers,
		clock:    deps.Timers.Clock(),
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		newID:    deps.NewID,
		cfg:      cfg,
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.audit == nil {
		m.audit = &extensions.NopAuditLogger{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m, nil
}

// =============================================================================
// Start
// =============================================================================

// Start begins a session for taskID.
//
// # Description
//
// If the user's active session already belongs to taskID, Start delegates to
// Resume. If it belongs to another task, Start returns SessionConflictError
// and changes nothing. Otherwise it classifies the user's current state,
// creates the Session record, marks the task in_progress, caches the active
// session, arms the ProgressTimer and emits session_started.
//
// With an empty cache slot, Session records still open for the user are
// reconciled first: one for taskID is revived and resumed, so the task keeps
// its original start instant; ones for other tasks are closed as cancelled.
//
// # Inputs
//
//   - ctx: Bounds the store and cache calls.
//   - userID: Session owner.
//   - taskID: Task to work on. Must belong to userID.
//
// # Outputs
//
//   - datatypes.Session: The new or resumed session.
//   - error: ErrTaskNotFound, ErrTaskAlreadyCompleted, *SessionConflictError,
//     *BudgetExhaustedError (when delegating to Resume) or
//     *UpstreamUnavailableError.
func (m *Manager) Start(ctx context.Context, userID, taskID string) (sess datatypes.Session, err error) {
	ctx, span := m.startSpan(ctx, "Manager.Start", userID, taskID)
	defer func() { m.finish(span, observability.OpStart, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	task, err := m.loadTask(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}

	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.Session{}, upstream("read active session", err)
	}
	if ok {
		if active.TaskID != taskID {
			return datatypes.Session{}, &SessionConflictError{
				ActiveTaskID:    active.TaskID,
				ActiveSessionID: active.SessionID,
			}
		}
		return m.resumeLocked(ctx, task, active, observability.OpStart)
	}

	if task.Status == datatypes.TaskCompleted {
		return datatypes.Session{}, ErrTaskAlreadyCompleted
	}

	revived, found, err := m.reconcileOrphans(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}
	if found {
		m.logger.Info("reviving open session for task",
			"user_id", userID,
			"task_id", taskID,
			"session_id", revived.ID)
		if task.Status != datatypes.TaskInProgress {
			task.Status = datatypes.TaskInProgress
			task.UpdatedAt = m.clock.Now()
			if err := m.store.UpdateTask(ctx, task); err != nil {
				return datatypes.Session{}, upstream("update task", err)
			}
		}
		return m.resumeLocked(ctx, task, datatypes.NewActiveSession(revived), observability.OpStart)
	}

	now := m.clock.Now()
	st := m.currentState(ctx, userID)
	class := classifier.Classify(st, task)
	planned := class.PlannedDuration
	if task.HasBudget() && planned > task.EstimatedDuration {
		planned = task.EstimatedDuration
	}

	sess = datatypes.Session{
		ID:              m.newID(),
		UserID:          userID,
		TaskID:          taskID,
		SessionType:     class.SessionType,
		WorkMode:        class.WorkMode,
		StartTime:       now,
		CycleStartTime:  now,
		PlannedDuration: planned,
		Cycles:          1,
	}
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.work_mode", string(sess.WorkMode)),
		attribute.Int("session.planned_minutes", planned),
	)

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return datatypes.Session{}, upstream("create session", err)
	}

	prevStatus := task.Status
	task.Status = datatypes.TaskInProgress
	task.UpdatedAt = now
	if err := m.store.UpdateTask(ctx, task); err != nil {
		m.abandon(ctx, sess, now)
		return datatypes.Session{}, upstream("update task", err)
	}

	if err := m.cache.Set(ctx, userID, datatypes.NewActiveSession(sess)); err != nil {
		m.abandon(ctx, sess, now)
		task.Status = prevStatus
		if rerr := m.store.UpdateTask(ctx, task); rerr != nil {
			m.logger.Error("failed to revert task after cache failure",
				"task_id", taskID,
				"error", rerr)
		}
		return datatypes.Session{}, upstream("cache active session", err)
	}

	m.armTimer(sess)
	m.metrics.RecordSessionStarted(sess.SessionType, sess.WorkMode)
	m.notifier.Notify(ctx, userID, datatypes.EventSessionStarted, datatypes.Payload{
		"session_id":      sess.ID,
		"task_id":         taskID,
		"session_type":    string(sess.SessionType),
		"work_mode":       string(sess.WorkMode),
		"planned_minutes": planned,
	})
	m.recordAudit(ctx, "start", sess, map[string]any{
		"work_mode":       string(sess.WorkMode),
		"session_type":    string(sess.SessionType),
		"planned_minutes": planned,
	})
	m.logger.Info("session started",
		"user_id", userID,
		"task_id", taskID,
		"session_id", sess.ID,
		"work_mode", sess.WorkMode,
		"planned_minutes", planned)
	return sess, nil
}

// reconcileOrphans closes the user's open Session records for other tasks
// and returns the open record for taskID, if any.
func (m *Manager) reconcileOrphans(ctx context.Context, userID, taskID string) (datatypes.Session, bool, error) {
	open, err := m.store.ListSessions(ctx, records.SessionFilter{UserID: userID, OpenOnly: true})
	if err != nil {
		return datatypes.Session{}, false, upstream("list open sessions", err)
	}

	var keep datatypes.Session
	found := false
	now := m.clock.Now()
	for _, s := range open {
		if s.TaskID == taskID && !found {
			keep = s
			found = true
			continue
		}
		m.timers.Cancel(timer.Key(s.ID))
		if err := m.closeOrphan(ctx, s, now, taskID); err != nil {
			return datatypes.Session{}, false, err
		}
	}
	return keep, found, nil
}

// closeOrphan cancels s. Its task reverts to pending unless it is keepTaskID,
// whose session stays open.
func (m *Manager) closeOrphan(ctx context.Context, s datatypes.Session, now time.Time, keepTaskID string) error {
	s.Cancelled = true
	s.Paused = false
	s.PauseStartedAt = nil
	s.EndedAt = &now
	s.TotalElapsed = datatypes.ElapsedMinutes(s.StartTime, now)
	if err := m.store.UpdateSession(ctx, s); err != nil {
		return upstream("close orphaned session", err)
	}

	if s.TaskID == keepTaskID {
		m.logger.Warn("closed duplicate open session",
			"user_id", s.UserID,
			"task_id", s.TaskID,
			"session_id", s.ID)
		m.recordAudit(ctx, "close_orphan", s, nil)
		return nil
	}

	task, err := m.store.GetTask(ctx, s.TaskID)
	if err == nil && task.Status == datatypes.TaskInProgress {
		task.Status = datatypes.TaskPending
		task.UpdatedAt = now
		if err := m.store.UpdateTask(ctx, task); err != nil {
			return upstream("revert orphaned task", err)
		}
	} else if err != nil && !errors.Is(err, records.ErrNotFound) {
		return upstream("read orphaned task", err)
	}

	m.logger.Warn("closed orphaned open session",
		"user_id", s.UserID,
		"task_id", s.TaskID,
		"session_id", s.ID)
	m.recordAudit(ctx, "close_orphan", s, nil)
	return nil
}

// abandon marks a half-created session cancelled after a later write failed.
func (m *Manager) abandon(ctx context.Context, s datatypes.Session, now time.Time) {
	s.Cancelled = true
	s.EndedAt = &now
	if err := m.store.UpdateSession(ctx, s); err != nil {
		m.logger.Error("failed to abandon partially started session",
			"session_id", s.ID,
			"error", err)
	}
}

// =============================================================================
// Pause
// =============================================================================

// Pause stops the running cycle of the user's active session.
//
// # Description
//
// The ProgressTimer is cancelled before anything is written. The session is
// marked paused, interruptions is incremented and the pause instant is
// recorded. Pausing a paused session returns it unchanged.
//
// # Outputs
//
//   - datatypes.Session: The paused session.
//   - error: ErrNoActiveSession, *OwnershipMismatchError or
//     *UpstreamUnavailableError.
func (m *Manager) Pause(ctx context.Context, userID, taskID string) (sess datatypes.Session, err error) {
	ctx, span := m.startSpan(ctx, "Manager.Pause", userID, taskID)
	defer func() { m.finish(span, observability.OpPause, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	active, err := m.ownedActive(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}
	if active.Paused {
		return active.Session, nil
	}

	m.timers.Cancel(timer.Key(active.SessionID))

	now := m.clock.Now()
	paused := active
	paused.Paused = true
	paused.PauseStartedAt = &now
	paused.Interruptions++
	paused.TotalElapsed = datatypes.ElapsedMinutes(paused.StartTime, now)

	if err := m.persist(ctx, userID, paused, "pause"); err != nil {
		m.armTimer(active.Session)
		return datatypes.Session{}, err
	}

	m.notifier.Notify(ctx, userID, datatypes.EventSessionPaused, datatypes.Payload{
		"session_id":    paused.SessionID,
		"task_id":       taskID,
		"interruptions": paused.Interruptions,
	})
	m.recordAudit(ctx, "pause", paused.Session, map[string]any{"interruptions": paused.Interruptions})
	return paused.Session, nil
}

// =============================================================================
// Resume
// =============================================================================

// Resume starts a new cycle of the user's active session.
//
// # Description
//
// totalElapsed is recomputed from the session start. If the task has a
// budget and totalElapsed has reached it, Resume returns
// BudgetExhaustedError and changes nothing. Otherwise the user's state is
// re-classified and the next cycle gets min(planned, remaining budget)
// minutes. The start instant never changes; the cycle start moves to now.
// Resuming a running session restarts its cycle. When the cache slot has
// expired, the open Session record for taskID is resumed.
//
// # Outputs
//
//   - datatypes.Session: The resumed session.
//   - error: ErrTaskNotFound, ErrNoActiveSession, *OwnershipMismatchError,
//     *BudgetExhaustedError or *UpstreamUnavailableError.
func (m *Manager) Resume(ctx context.Context, userID, taskID string) (sess datatypes.Session, err error) {
	ctx, span := m.startSpan(ctx, "Manager.Resume", userID, taskID)
	defer func() { m.finish(span, observability.OpResume, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	task, err := m.loadTask(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}
	active, err := m.resumable(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}
	return m.resumeLocked(ctx, task, active, observability.OpResume)
}

func (m *Manager) resumeLocked(ctx context.Context, task datatypes.Task, active datatypes.ActiveSession,
	op observability.Operation) (datatypes.Session, error) {

	now := m.clock.Now()
	total := datatypes.ElapsedMinutes(active.StartTime, now)

	next := 0
	if task.HasBudget() {
		if total >= task.EstimatedDuration {
			return datatypes.Session{}, &BudgetExhaustedError{
				TaskID:       task.ID,
				TotalElapsed: total,
				Budget:       task.EstimatedDuration,
			}
		}
		next = task.EstimatedDuration - total
	}

	class := classifier.Classify(m.currentState(ctx, active.UserID), task)
	planned := class.PlannedDuration
	if task.HasBudget() && next < planned {
		planned = next
	}

	m.timers.Cancel(timer.Key(active.SessionID))

	resumed := active
	resumed.CycleStartTime = now
	resumed.PlannedDuration = planned
	resumed.WorkMode = class.WorkMode
	resumed.SessionType = class.SessionType
	resumed.TotalElapsed = total
	resumed.Paused = false
	resumed.PauseStartedAt = nil
	resumed.Forced = false
	resumed.Cycles++

	if err := m.persist(ctx, active.UserID, resumed, string(op)); err != nil {
		return datatypes.Session{}, err
	}

	m.armTimer(resumed.Session)
	m.notifier.Notify(ctx, active.UserID, datatypes.EventSessionResumed, datatypes.Payload{
		"session_id":            resumed.SessionID,
		"task_id":               resumed.TaskID,
		"planned_minutes":       planned,
		"total_elapsed_minutes": total,
		"work_mode":             string(resumed.WorkMode),
		"forced":                false,
	})
	m.recordAudit(ctx, "resume", resumed.Session, map[string]any{
		"work_mode":       string(resumed.WorkMode),
		"planned_minutes": planned,
		"total_elapsed":   total,
	})
	return resumed.Session, nil
}

// =============================================================================
// ForceResume
// =============================================================================

// ForceResume starts a fixed-length continuation cycle without classifying
// and without checking the budget. fixedMinutes <= 0 selects the configured
// default (15). Like Resume, it falls back to the open Session record for
// taskID when the cache slot has expired.
//
// # Outputs
//
//   - datatypes.Session: The resumed session, with Forced set.
//   - error: ErrTaskNotFound, ErrNoActiveSession, *OwnershipMismatchError or
//     *UpstreamUnavailableError.
func (m *Manager) ForceResume(ctx context.Context, userID, taskID string, fixedMinutes int) (sess datatypes.Session, err error) {
	ctx, span := m.startSpan(ctx, "Manager.ForceResume", userID, taskID)
	defer func() { m.finish(span, observability.OpForceResume, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	if fixedMinutes <= 0 {
		fixedMinutes = m.cfg.ForceResumeMinutes
	}
	span.SetAttributes(attribute.Int("session.planned_minutes", fixedMinutes))

	unlock := m.locks.lock(userID)
	defer unlock()

	if _, err := m.loadTask(ctx, userID, taskID); err != nil {
		return datatypes.Session{}, err
	}
	active, err := m.resumable(ctx, userID, taskID)
	if err != nil {
		return datatypes.Session{}, err
	}

	m.timers.Cancel(timer.Key(active.SessionID))

	now := m.clock.Now()
	resumed := active
	resumed.CycleStartTime = now
	resumed.PlannedDuration = fixedMinutes
	resumed.TotalElapsed = datatypes.ElapsedMinutes(active.StartTime, now)
	resumed.Paused = false
	resumed.PauseStartedAt = nil
	resumed.Forced = true
	resumed.Cycles++

	if err := m.persist(ctx, userID, resumed, "force resume"); err != nil {
		return datatypes.Session{}, err
	}

	m.armTimer(resumed.Session)
	m.notifier.Notify(ctx, userID, datatypes.EventSessionResumed, datatypes.Payload{
		"session_id":            resumed.SessionID,
		"task_id":               taskID,
		"planned_minutes":       fixedMinutes,
		"total_elapsed_minutes": resumed.TotalElapsed,
		"work_mode":             string(resumed.WorkMode),
		"forced":                true,
	})
	m.recordAudit(ctx, "force_resume", resumed.Session, map[string]any{"planned_minutes": fixedMinutes})
	return resumed.Session, nil
}

// =============================================================================
// Complete / Cancel / Clear
// =============================================================================

// Complete finishes the session on taskID and marks the task completed.
//
// # Description
//
// Completing a task that is already completed is a no-op. When the cache
// slot has expired, the open Session record for taskID is completed instead.
//
// # Outputs
//
//   - error: ErrTaskNotFound, ErrNoActiveSession, *OwnershipMismatchError or
//     *UpstreamUnavailableError.
func (m *Manager) Complete(ctx context.Context, userID, taskID string) (err error) {
	ctx, span := m.startSpan(ctx, "Manager.Complete", userID, taskID)
	defer func() { m.finish(span, observability.OpComplete, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	task, err := m.loadTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	active, cached, err := m.cache.Get(ctx, userID)
	if err != nil {
		return upstream("read active session", err)
	}
	if cached && active.TaskID != taskID {
		return &OwnershipMismatchError{ActiveTaskID: active.TaskID}
	}

	if task.Status == datatypes.TaskCompleted {
		if cached {
			m.timers.Cancel(timer.Key(active.SessionID))
			if err := m.cache.Delete(ctx, userID); err != nil {
				return upstream("clear active session", err)
			}
		}
		return nil
	}

	sess, err := m.closable(ctx, userID, taskID, active, cached)
	if err != nil {
		return err
	}

	m.timers.Cancel(timer.Key(sess.ID))

	now := m.clock.Now()
	sess.Completed = true
	sess.Paused = false
	sess.PauseStartedAt = nil
	sess.EndedAt = &now
	sess.TotalElapsed = datatypes.ElapsedMinutes(sess.StartTime, now)
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return upstream("complete session", err)
	}

	task.Status = datatypes.TaskCompleted
	task.UpdatedAt = now
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return upstream("complete task", err)
	}

	if cached {
		if err := m.cache.Delete(ctx, userID); err != nil {
			return upstream("clear active session", err)
		}
	}

	m.metrics.ObserveSessionMinutes(sess.TotalElapsed)
	m.notifier.Notify(ctx, userID, datatypes.EventSessionCompleted, datatypes.Payload{
		"session_id":            sess.ID,
		"task_id":               taskID,
		"total_elapsed_minutes": sess.TotalElapsed,
		"interruptions":         sess.Interruptions,
	})
	m.recordAudit(ctx, "complete", sess, map[string]any{"total_elapsed": sess.TotalElapsed})
	m.logger.Info("session completed",
		"user_id", userID,
		"task_id", taskID,
		"session_id", sess.ID,
		"total_elapsed_minutes", sess.TotalElapsed)
	return nil
}

// Cancel abandons the session on taskID. The task returns to pending.
//
// # Outputs
//
//   - error: ErrTaskNotFound, ErrNoActiveSession, *OwnershipMismatchError or
//     *UpstreamUnavailableError.
func (m *Manager) Cancel(ctx context.Context, userID, taskID string) (err error) {
	ctx, span := m.startSpan(ctx, "Manager.Cancel", userID, taskID)
	defer func() { m.finish(span, observability.OpCancel, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	task, err := m.loadTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	active, cached, err := m.cache.Get(ctx, userID)
	if err != nil {
		return upstream("read active session", err)
	}
	if cached && active.TaskID != taskID {
		return &OwnershipMismatchError{ActiveTaskID: active.TaskID}
	}

	sess, err := m.closable(ctx, userID, taskID, active, cached)
	if err != nil {
		return err
	}

	m.timers.Cancel(timer.Key(sess.ID))

	now := m.clock.Now()
	sess.Cancelled = true
	sess.Paused = false
	sess.PauseStartedAt = nil
	sess.EndedAt = &now
	sess.TotalElapsed = datatypes.ElapsedMinutes(sess.StartTime, now)
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return upstream("cancel session", err)
	}

	if task.Status != datatypes.TaskCompleted {
		task.Status = datatypes.TaskPending
		task.UpdatedAt = now
		if err := m.store.UpdateTask(ctx, task); err != nil {
			return upstream("revert task", err)
		}
	}

	if cached {
		if err := m.cache.Delete(ctx, userID); err != nil {
			return upstream("clear active session", err)
		}
	}

	m.notifier.Notify(ctx, userID, datatypes.EventSessionCancelled, datatypes.Payload{
		"session_id": sess.ID,
		"task_id":    taskID,
	})
	m.recordAudit(ctx, "cancel", sess, nil)
	return nil
}

// ClearActiveSession force-clears the user's active session, whatever task
// owns it, and any open Session record for taskID. It is the recovery path
// for a stuck session and always succeeds: store and cache failures are
// logged, never returned.
func (m *Manager) ClearActiveSession(ctx context.Context, userID, taskID string) {
	ctx, span := m.startSpan(ctx, "Manager.ClearActiveSession", userID, taskID)
	defer func() { m.finish(span, observability.OpClear, nil) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	unlock := m.locks.lock(userID)
	defer unlock()

	now := m.clock.Now()
	var stuck []datatypes.Session
	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil {
		m.logger.Warn("clear: failed to read active session", "user_id", userID, "error", err)
	}
	if ok {
		stuck = append(stuck, active.Session)
	}
	if taskID != "" {
		open, err := m.store.ListSessions(ctx, records.SessionFilter{UserID: userID, TaskID: taskID, OpenOnly: true})
		if err != nil {
			m.logger.Warn("clear: failed to list open sessions", "user_id", userID, "task_id", taskID, "error", err)
		}
		for _, s := range open {
			if !ok || s.ID != active.SessionID {
				stuck = append(stuck, s)
			}
		}
	}

	if ok {
		m.timers.Cancel(timer.Key(active.SessionID))
		if err := m.cache.Delete(ctx, userID); err != nil {
			m.logger.Warn("clear: failed to delete active session", "user_id", userID, "error", err)
		}
	}

	for _, s := range stuck {
		m.timers.Cancel(timer.Key(s.ID))
		if err := m.closeOrphan(ctx, s, now, ""); err != nil {
			m.logger.Warn("clear: failed to close session record",
				"user_id", userID,
				"session_id", s.ID,
				"error", err)
		}
		m.notifier.Notify(ctx, userID, datatypes.EventSessionCleared, datatypes.Payload{
			"session_id": s.ID,
			"task_id":    s.TaskID,
		})
		m.recordAudit(ctx, "clear", s, nil)
	}
}

// =============================================================================
// Rating and status
// =============================================================================

// RateSession stores a 1..5 focus rating on a session, usually after it
// has timed out or completed.
func (m *Manager) RateSession(ctx context.Context, sessionID string, rating int) (sess datatypes.Session, err error) {
	ctx, span := lifecycleTracer.Start(ctx, "Manager.RateSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer func() { m.finish(span, observability.OpRate, err) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	if rating < 1 || rating > 5 {
		return datatypes.Session{}, ErrInvalidRating
	}

	sess, err = m.store.GetSession(ctx, sessionID)
	if errors.Is(err, records.ErrNotFound) {
		return datatypes.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return datatypes.Session{}, upstream("read session", err)
	}

	unlock := m.locks.lock(sess.UserID)
	defer unlock()

	active, ok, err := m.cache.Get(ctx, sess.UserID)
	if err != nil {
		return datatypes.Session{}, upstream("read active session", err)
	}
	if ok && active.SessionID == sessionID {
		sess = active.Session
	}

	sess.FocusRating = &rating
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return datatypes.Session{}, upstream("rate session", err)
	}
	if ok && active.SessionID == sessionID {
		active.FocusRating = &rating
		if err := m.cache.Set(ctx, sess.UserID, active); err != nil {
			return datatypes.Session{}, upstream("cache rated session", err)
		}
	}

	m.recordAudit(ctx, "rate", sess, map[string]any{"rating": rating})
	return sess, nil
}

// GetActiveSession returns the user's active session with derived timings.
// A paused session's cycle figures are frozen at the pause instant.
func (m *Manager) GetActiveSession(ctx context.Context, userID string) (datatypes.SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.SessionStatus{}, upstream("read active session", err)
	}
	if !ok {
		return datatypes.SessionStatus{}, ErrNoActiveSession
	}

	now := m.clock.Now()
	ref := now
	if active.Paused && active.PauseStartedAt != nil {
		ref = *active.PauseStartedAt
	}
	remaining := active.CycleRemaining(ref)
	if remaining < 0 {
		remaining = 0
	}

	s := active.Session
	s.TotalElapsed = datatypes.ElapsedMinutes(s.StartTime, now)
	return datatypes.SessionStatus{
		Session:               s,
		TotalElapsedMinutes:   s.TotalElapsed,
		CycleElapsedMinutes:   int(active.CycleElapsed(ref) / time.Minute),
		CycleRemainingMinutes: int((remaining + time.Minute - 1) / time.Minute),
		TimerRunning:          m.timers.Active(timer.Key(active.SessionID)),
	}, nil
}

// LoadProgress implements timer.ProgressSource. A running session's cache
// TTL is refreshed in place so it does not lapse before the cycle ends. The
// tick runs outside the user lock, so it never writes its snapshot back.
func (m *Manager) LoadProgress(ctx context.Context, userID string) (datatypes.ActiveSession, datatypes.Task, bool, error) {
	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil || !ok {
		return datatypes.ActiveSession{}, datatypes.Task{}, false, err
	}
	task, err := m.store.GetTask(ctx, active.TaskID)
	if err != nil {
		return datatypes.ActiveSession{}, datatypes.Task{}, false, err
	}
	if !active.Paused && active.Open() {
		if _, err := m.cache.Touch(ctx, userID); err != nil {
			return datatypes.ActiveSession{}, datatypes.Task{}, false, err
		}
	}
	return active, task, true, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (m *Manager) loadTask(ctx context.Context, userID, taskID string) (datatypes.Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if errors.Is(err, records.ErrNotFound) {
		return datatypes.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return datatypes.Task{}, upstream("read task", err)
	}
	if task.UserID != "" && task.UserID != userID {
		return datatypes.Task{}, ErrTaskNotFound
	}
	return task, nil
}

// ownedActive returns the active session if it belongs to taskID.
func (m *Manager) ownedActive(ctx context.Context, userID, taskID string) (datatypes.ActiveSession, error) {
	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.ActiveSession{}, upstream("read active session", err)
	}
	if !ok {
		return datatypes.ActiveSession{}, ErrNoActiveSession
	}
	if active.TaskID != taskID {
		return datatypes.ActiveSession{}, &OwnershipMismatchError{ActiveTaskID: active.TaskID}
	}
	return active, nil
}

// resumable is ownedActive for Resume and ForceResume. A paused session
// can outlive its cache slot; when the slot is empty the open record for
// taskID stands in for it and the caller's write re-caches it.
func (m *Manager) resumable(ctx context.Context, userID, taskID string) (datatypes.ActiveSession, error) {
	active, ok, err := m.cache.Get(ctx, userID)
	if err != nil {
		return datatypes.ActiveSession{}, upstream("read active session", err)
	}
	if ok {
		if active.TaskID != taskID {
			return datatypes.ActiveSession{}, &OwnershipMismatchError{ActiveTaskID: active.TaskID}
		}
		return active, nil
	}

	open, err := m.store.ListSessions(ctx, records.SessionFilter{UserID: userID, TaskID: taskID, OpenOnly: true})
	if err != nil {
		return datatypes.ActiveSession{}, upstream("list open sessions", err)
	}
	if len(open) == 0 {
		return datatypes.ActiveSession{}, ErrNoActiveSession
	}
	m.logger.Info("restoring expired active session from record",
		"user_id", userID,
		"task_id", taskID,
		"session_id", open[0].ID)
	return datatypes.NewActiveSession(open[0]), nil
}

// closable picks the session that Complete or Cancel should close: the
// cached one, or else the open record for taskID.
func (m *Manager) closable(ctx context.Context, userID, taskID string, active datatypes.ActiveSession,
	cached bool) (datatypes.Session, error) {

	if cached {
		return active.Session, nil
	}
	open, err := m.store.ListSessions(ctx, records.SessionFilter{UserID: userID, TaskID: taskID, OpenOnly: true})
	if err != nil {
		return datatypes.Session{}, upstream("list open sessions", err)
	}
	if len(open) == 0 {
		return datatypes.Session{}, ErrNoActiveSession
	}
	return open[0], nil
}

// persist writes the record of truth, then the cache.
func (m *Manager) persist(ctx context.Context, userID string, active datatypes.ActiveSession, op string) error {
	if err := m.store.UpdateSession(ctx, active.Session); err != nil {
		return upstream(op+" session", err)
	}
	if err := m.cache.Set(ctx, userID, active); err != nil {
		return upstream(op+" cache", err)
	}
	return nil
}

func (m *Manager) currentState(ctx context.Context, userID string) datatypes.ProductivityState {
	st, err := m.states.GetCurrentState(ctx, userID)
	if err != nil {
		m.logger.Warn("productivity state unavailable, using default",
			"user_id", userID,
			"error", err)
		return m.cfg.DefaultState
	}
	return st
}

func (m *Manager) armTimer(s datatypes.Session) {
	p := &timer.ProgressTimer{
		UserID:       s.UserID,
		SessionID:    s.ID,
		TaskID:       s.TaskID,
		CycleStart:   s.CycleStartTime,
		Planned:      time.Duration(s.PlannedDuration) * time.Minute,
		Clock:        m.clock,
		Source:       m,
		Notifier:     m.notifier,
		FetchTimeout: m.cfg.UpstreamTimeout,
		Logger:       m.logger,
	}
	if m.metrics != nil {
		p.Observer = m.metrics
	}
	if err := m.timers.Start(timer.Key(s.ID), m.cfg.TickInterval, p.Tick); err != nil {
		m.logger.Warn("failed to arm progress timer",
			"session_id", s.ID,
			"error", err)
	}
}

func (m *Manager) recordAudit(ctx context.Context, action string, s datatypes.Session, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["task_id"] = s.TaskID
	err := m.audit.Log(ctx, extensions.AuditEvent{
		EventType:    "session." + action,
		Timestamp:    m.clock.Now().UTC(),
		UserID:       s.UserID,
		Action:       action,
		ResourceType: "session",
		ResourceID:   s.ID,
		Outcome:      "success",
		Metadata:     meta,
	})
	if err != nil {
		m.logger.Warn("audit log failed", "action", action, "error", err)
	}
}

func (m *Manager) startSpan(ctx context.Context, name, userID, taskID string) (context.Context, trace.Span) {
	return lifecycleTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("task.id", taskID),
	))
}

// finish ends span and counts the operation by outcome.
func (m *Manager) finish(span trace.Span, op observability.Operation, err error) {
	defer span.End()
	outcome := Outcome(err)
	m.metrics.RecordOperation(op, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

// Outcome maps an operation error to its metrics label.
func Outcome(err error) string {
	var conflict *SessionConflictError
	var mismatch *OwnershipMismatchError
	var budget *BudgetExhaustedError
	var up *UpstreamUnavailableError
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.As(err, &conflict):
		return observability.OutcomeConflict
	case errors.As(err, &mismatch):
		return observability.OutcomeMismatch
	case errors.As(err, &budget):
		return observability.OutcomeBudget
	case errors.As(err, &up):
		return observability.OutcomeUpstream
	case errors.Is(err, ErrNoActiveSession):
		return observability.OutcomeNoSession
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrSessionNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeInvalid
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, datatypes.EventName, datatypes.Payload) {}

// userLocks hands out one mutex per user, dropping it once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

var _ timer.ProgressSource = (*Manager)(nil)
