// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportedAt = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func newProvider(t *testing.T) *StoredProvider {
	t.Helper()
	db, err := focusbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStoredProvider(NewStateSlot(db, 0), DefaultState, func() time.Time { return reportedAt }, nil)
}

func TestStoredProvider_FallsBackWhenNothingReported(t *testing.T) {
	p := newProvider(t)

	got, err := p.GetCurrentState(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, DefaultState, got)
}

func TestStoredProvider_ReportThenRead(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	stored, err := p.Report(ctx, "u1", datatypes.ProductivityState{Energy: 9, Focus: 90, Motivation: 7, Stress: 2})
	require.NoError(t, err)
	assert.Equal(t, reportedAt, stored.ReportedAt)

	got, err := p.GetCurrentState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Energy)
	assert.Equal(t, 90, got.Focus)
	assert.True(t, reportedAt.Equal(got.ReportedAt))

	other, err := p.GetCurrentState(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, DefaultState, other)
}

func TestStoredProvider_ReportRejectsOutOfRange(t *testing.T) {
	p := newProvider(t)

	_, err := p.Report(context.Background(), "u1", datatypes.ProductivityState{Energy: 11, Focus: 50})
	assert.Error(t, err)
}

type brokenSlot struct{}

func (brokenSlot) Get(context.Context, string) (datatypes.ProductivityState, bool, error) {
	return datatypes.ProductivityState{}, false, errors.New("disk gone")
}
func (brokenSlot) Set(context.Context, string, datatypes.ProductivityState) error { return nil }
func (brokenSlot) Delete(context.Context, string) error                         { return nil }
func (brokenSlot) List(context.Context) ([]datatypes.ProductivityState, error) {
	return nil, nil
}

func TestStoredProvider_SurfacesStorageErrors(t *testing.T) {
	p := NewStoredProvider(brokenSlot{}, DefaultState, nil, nil)

	_, err := p.GetCurrentState(context.Background(), "u1")
	assert.ErrorContains(t, err, "disk gone")
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{Energy: 1, Focus: 10}
	got, err := p.GetCurrentState(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Energy)
}
