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
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when the task does not exist or belongs to
	// another user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSessionNotFound is returned by RateSession for an unknown id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveSession is returned when an operation needs a session the
	// user does not have.
	ErrNoActiveSession = errors.New("no active session")

	// ErrTaskAlreadyCompleted is returned when starting a completed task.
	ErrTaskAlreadyCompleted = errors.New("task already completed")

	// ErrInvalidRating is returned for a focus rating outside 1..5.
	ErrInvalidRating = errors.New("focus rating must be between 1 and 5")
)

// SessionConflictError is returned by Start when the user already has an
// active session on another task. Nothing was changed; the caller can offer
// to switch to the active task or clear it.
type SessionConflictError struct {
	ActiveTaskID    string
	ActiveSessionID string
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session conflict: task %s is already active", e.ActiveTaskID)
}

// OwnershipMismatchError is returned when an operation names a task other
// than the one owning the active session. Nothing was changed.
type OwnershipMismatchError struct {
	ActiveTaskID string
}

func (e *OwnershipMismatchError) Error() string {
	return fmt.Sprintf("ownership mismatch: active session belongs to task %s", e.ActiveTaskID)
}

// BudgetExhaustedError is returned by Resume when the session has used the
// whole task estimate. ForceResume or Complete resolves it.
type BudgetExhaustedError struct {
	TaskID       string
	TotalElapsed int
	Budget       int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for task %s: %d of %d minutes used",
		e.TaskID, e.TotalElapsed, e.Budget)
}

// UpstreamUnavailableError wraps a failed write to the record store or the
// session cache.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable during %s: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	return &UpstreamUnavailableError{Op: op, Err: err}
}

// IsConflict reports whether err is a SessionConflictError or an
// OwnershipMismatchError.
//
// Example:
//
//	if err := mgr.Pause(ctx, userID, taskID); lifecycle.IsConflict(err) {
//	    c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
//	}
func IsConflict(err error) bool {
	var conflict *SessionConflictError
	var mismatch *OwnershipMismatchError
	return errors.As(err, &conflict) || errors.As(err, &mismatch)
}
