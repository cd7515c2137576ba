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

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/records"
)

// CreateTask validates req and stores a pending task for userID.
func (m *Manager) CreateTask(ctx context.Context, userID string, req datatypes.CreateTaskRequest) (datatypes.Task, error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return datatypes.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	now := m.clock.Now()
	task := datatypes.Task{
		ID:                m.newID(),
		UserID:            userID,
		Title:             req.Title,
		Status:            datatypes.TaskPending,
		EstimatedDuration: req.EstimatedDuration,
		Complexity:        req.Complexity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.CreateTask(ctx, task); err != nil {
		return datatypes.Task{}, upstream("create task", err)
	}
	m.logger.Info("task created", "user_id", userID, "task_id", task.ID)
	return task, nil
}

// GetTask returns one of userID's tasks.
func (m *Manager) GetTask(ctx context.Context, userID, taskID string) (datatypes.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()
	return m.loadTask(ctx, userID, taskID)
}

// ListTasks returns userID's tasks, optionally filtered by status.
func (m *Manager) ListTasks(ctx context.Context, userID string, status datatypes.TaskStatus) ([]datatypes.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UpstreamTimeout)
	defer cancel()

	tasks, err := m.store.ListTasks(ctx, records.TaskFilter{UserID: userID, Status: status})
	if err != nil {
		return nil, upstream("list tasks", err)
	}
	return tasks, nil
}
