// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *focusbadger.DB {
	t.Helper()
	db, err := focusbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSessionCache_SetGetDelete(t *testing.T) {
	slot := NewSessionCache(openDB(t), time.Hour)
	ctx := context.Background()

	_, ok, err := slot.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	active := datatypes.NewActiveSession(datatypes.Session{
		ID:              "s1",
		UserID:          "u1",
		TaskID:          "t1",
		WorkMode:        datatypes.WorkModePeak,
		PlannedDuration: 60,
	})
	require.NoError(t, slot.Set(ctx, "u1", active))

	got, ok, err := slot.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, datatypes.WorkModePeak, got.WorkMode)

	require.NoError(t, slot.Delete(ctx, "u1"))
	_, ok, err = slot.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlot_LastWriterWins(t *testing.T) {
	slot := NewSessionCache(openDB(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, slot.Set(ctx, "u1", datatypes.ActiveSession{SessionID: "first"}))
	require.NoError(t, slot.Set(ctx, "u1", datatypes.ActiveSession{SessionID: "second"}))

	got, ok, err := slot.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.SessionID)
}

func TestSlot_NamespacesAreIsolated(t *testing.T) {
	db := openDB(t)
	sessions := NewSessionCache(db, 0)
	pomodoros := NewPomodoroCache(db, 0)
	ctx := context.Background()

	require.NoError(t, sessions.Set(ctx, "u1", datatypes.ActiveSession{SessionID: "s1"}))
	require.NoError(t, pomodoros.Set(ctx, "u1", datatypes.PomodoroSession{UserID: "u1", CycleCount: 3}))

	listed, err := sessions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	p, ok, err := pomodoros.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, p.CycleCount)

	assert.Equal(t, DefaultActiveSessionTTL, sessions.ttl)
	assert.Equal(t, DefaultPomodoroTTL, pomodoros.ttl)
}

func TestSlot_ListAcrossUsers(t *testing.T) {
	slot := NewSessionCache(openDB(t), time.Hour)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		require.NoError(t, slot.Set(ctx, u, datatypes.ActiveSession{SessionID: "s-" + u}))
	}

	listed, err := slot.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestSlot_TouchKeepsLatestValue(t *testing.T) {
	slot := NewSessionCache(openDB(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, slot.Set(ctx, "u1", datatypes.ActiveSession{SessionID: "s1"}))
	stale, _, err := slot.Get(ctx, "u1")
	require.NoError(t, err)

	rating := 4
	rated := stale
	rated.FocusRating = &rating
	require.NoError(t, slot.Set(ctx, "u1", rated))

	ok, err := slot.Touch(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, _, err := slot.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.FocusRating)
	assert.Equal(t, 4, *got.FocusRating)
	assert.Nil(t, stale.FocusRating)

	ok, err = slot.Touch(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}
