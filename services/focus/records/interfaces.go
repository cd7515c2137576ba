// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records persists Task and Session records, the engine's record of
// truth.
package records

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrExists is returned by Create when the id is already taken.
var ErrExists = errors.New("record already exists")

// TaskFilter selects tasks. Empty fields match everything.
type TaskFilter struct {
	UserID string
	Status datatypes.TaskStatus
}

// SessionFilter selects sessions. Empty fields match everything.
type SessionFilter struct {
	UserID   string
	TaskID   string
	OpenOnly bool
}

// Store is the generic create/read/update contract over task and session
// records.
//
// # Description
//
// Implementations only persist snapshots; every state transition is decided
// by the lifecycle manager. Writes replace the whole record.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	CreateTask(ctx context.Context, task datatypes.Task) error
	GetTask(ctx context.Context, id string) (datatypes.Task, error)
	UpdateTask(ctx context.Context, task datatypes.Task) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]datatypes.Task, error)

	CreateSession(ctx context.Context, session datatypes.Session) error
	GetSession(ctx context.Context, id string) (datatypes.Session, error)
	UpdateSession(ctx context.Context, session datatypes.Session) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]datatypes.Session, error)
}

func (f TaskFilter) match(t datatypes.Task) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func (f SessionFilter) match(s datatypes.Session) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.TaskID != "" && s.TaskID != f.TaskID {
		return false
	}
	if f.OpenOnly && !s.Open() {
		return false
	}
	return true
}
