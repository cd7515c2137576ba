// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state supplies each user's current productivity signal.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/cache"
	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
	"golang.org/x/sync/singleflight"
)

// DefaultStateTTL is how long a reported state stays current.
const DefaultStateTTL = 12 * time.Hour

// DefaultState is used when a user has not reported recently. It classifies
// as NORMAL.
var DefaultState = datatypes.ProductivityState{Energy: 5, Focus: 60, Motivation: 5, Stress: 5}

// Provider returns a user's current productivity state.
type Provider interface {
	GetCurrentState(ctx context.Context, userID string) (datatypes.ProductivityState, error)
}

// StoredProvider serves the most recent self-reported state from a cache
// slot and falls back to a default once it expires.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent reads for one user share a single
// slot lookup.
type StoredProvider struct {
	slot     cache.Slot[datatypes.ProductivityState]
	fallback datatypes.ProductivityState
	now      func() time.Time
	logger   *slog.Logger
	flight   singleflight.Group
}

// NewStateSlot returns the badger-backed slot for reported states.
func NewStateSlot(db *focusbadger.DB, ttl time.Duration) *cache.BadgerSlot[datatypes.ProductivityState] {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return cache.NewBadgerSlot[datatypes.ProductivityState](db, "state", ttl)
}

// NewStoredProvider creates a provider over slot. now may be nil.
func NewStoredProvider(slot cache.Slot[datatypes.ProductivityState], fallback datatypes.ProductivityState,
	now func() time.Time, logger *slog.Logger) *StoredProvider {

	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoredProvider{slot: slot, fallback: fallback, now: now, logger: logger}
}

// GetCurrentState returns the last reported state, or the fallback when
// nothing current is stored. Storage errors are returned to the caller.
func (p *StoredProvider) GetCurrentState(ctx context.Context, userID string) (datatypes.ProductivityState, error) {
	v, err, _ := p.flight.Do(userID, func() (interface{}, error) {
		s, ok, err := p.slot.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return p.fallback, nil
		}
		return s, nil
	})
	if err != nil {
		return datatypes.ProductivityState{}, fmt.Errorf("productivity state for %s: %w", userID, err)
	}
	return v.(datatypes.ProductivityState), nil
}

// Report stores s as userID's current state.
func (p *StoredProvider) Report(ctx context.Context, userID string, s datatypes.ProductivityState) (datatypes.ProductivityState, error) {
	if err := datatypes.Validator().Struct(s); err != nil {
		return datatypes.ProductivityState{}, err
	}
	s.ReportedAt = p.now().UTC()
	if err := p.slot.Set(ctx, userID, s); err != nil {
		return datatypes.ProductivityState{}, err
	}
	p.logger.Info("productivity state reported",
		"user_id", userID,
		"energy", s.Energy,
		"focus", s.Focus)
	return s, nil
}

// StaticProvider always returns the same state.
type StaticProvider datatypes.ProductivityState

func (s StaticProvider) GetCurrentState(context.Context, string) (datatypes.ProductivityState, error) {
	return datatypes.ProductivityState(s), nil
}

var (
	_ Provider = (*StoredProvider)(nil)
	_ Provider = StaticProvider{}
)
