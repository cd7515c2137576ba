// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache holds per-user slots with a time-to-live: the active work
// session and the running Pomodoro cycle.
//
// # Description
//
// A Slot stores at most one value per user. Writes are last-writer-wins: no
// version check guards Set, so two processes writing the same user race and
// the later write survives. Every Set refreshes the TTL. Values survive a
// process restart because the slot lives in BadgerDB.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
)

// Default TTLs for the two slots.
const (
	DefaultActiveSessionTTL = 1 * time.Hour
	DefaultPomodoroTTL      = 2 * time.Hour
)

// Slot is a per-user key-value store with expiry.
type Slot[T any] interface {
	// Get returns the value for userID and whether one was present.
	Get(ctx context.Context, userID string) (T, bool, error)

	// Set stores v for userID and resets its TTL.
	Set(ctx context.Context, userID string, v T) error

	// Touch resets the TTL of userID's value without rewriting it from a
	// possibly stale copy. It reports whether a value was present.
	Touch(ctx context.Context, userID string) (bool, error)

	// Delete clears the slot. Clearing an empty slot is not an error.
	Delete(ctx context.Context, userID string) error

	// List returns every live value.
	List(ctx context.Context) ([]T, error)
}

// SessionCache holds each user's active work session.
type SessionCache = Slot[datatypes.ActiveSession]

// PomodoroCache holds each user's running Pomodoro cycle.
type PomodoroCache = Slot[datatypes.PomodoroSession]

// BadgerSlot is a Slot stored under a key prefix in BadgerDB.
type BadgerSlot[T any] struct {
	db     *focusbadger.DB
	prefix string
	ttl    time.Duration
}

// NewBadgerSlot creates a slot under "slot/<namespace>/". A zero ttl keeps
// values until deleted.
func NewBadgerSlot[T any](db *focusbadger.DB, namespace string, ttl time.Duration) *BadgerSlot[T] {
	return &BadgerSlot[T]{
		db:     db,
		prefix: "slot/" + namespace + "/",
		ttl:    ttl,
	}
}

// NewSessionCache returns the active-session slot.
func NewSessionCache(db *focusbadger.DB, ttl time.Duration) *BadgerSlot[datatypes.ActiveSession] {
	if ttl <= 0 {
		ttl = DefaultActiveSessionTTL
	}
	return NewBadgerSlot[datatypes.ActiveSession](db, "active", ttl)
}

// NewPomodoroCache returns the Pomodoro slot.
func NewPomodoroCache(db *focusbadger.DB, ttl time.Duration) *BadgerSlot[datatypes.PomodoroSession] {
	if ttl <= 0 {
		ttl = DefaultPomodoroTTL
	}
	return NewBadgerSlot[datatypes.PomodoroSession](db, "pomodoro", ttl)
}

func (s *BadgerSlot[T]) key(userID string) string {
	return s.prefix + userID
}

func (s *BadgerSlot[T]) Get(ctx context.Context, userID string) (T, bool, error) {
	var v T
	err := s.db.GetJSON(ctx, s.key(userID), &v)
	if errors.Is(err, focusbadger.ErrKeyNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("cache get %s: %w", userID, err)
	}
	return v, true, nil
}

func (s *BadgerSlot[T]) Set(ctx context.Context, userID string, v T) error {
	if err := s.db.PutJSON(ctx, s.key(userID), v, s.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", userID, err)
	}
	return nil
}

func (s *BadgerSlot[T]) Touch(ctx context.Context, userID string) (bool, error) {
	err := s.db.Touch(ctx, s.key(userID), s.ttl)
	if errors.Is(err, focusbadger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache touch %s: %w", userID, err)
	}
	return true, nil
}

func (s *BadgerSlot[T]) Delete(ctx context.Context, userID string) error {
	if err := s.db.Delete(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("cache delete %s: %w", userID, err)
	}
	return nil
}

func (s *BadgerSlot[T]) List(ctx context.Context) ([]T, error) {
	out := make([]T, 0)
	err := s.db.ScanPrefix(ctx, s.prefix, func(key string, val []byte) error {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache list %s: %w", s.prefix, err)
	}
	return out, nil
}

var (
	_ SessionCache  = (*BadgerSlot[datatypes.ActiveSession])(nil)
	_ PomodoroCache = (*BadgerSlot[datatypes.PomodoroSession])(nil)
)
