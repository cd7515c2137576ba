// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
	"github.com/dgraph-io/badger/v4"
)

const (
	taskPrefix    = "rec/task/"
	sessionPrefix = "rec/session/"
)

// BadgerStore implements Store on the shared BadgerDB instance. Records are
// JSON documents keyed by id; list filters scan the keyspace.
type BadgerStore struct {
	db *focusbadger.DB
}

// NewBadgerStore returns a store over db.
func NewBadgerStore(db *focusbadger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) CreateTask(ctx context.Context, task datatypes.Task) error {
	return create(ctx, s.db, taskPrefix+task.ID, task)
}

func (s *BadgerStore) GetTask(ctx context.Context, id string) (datatypes.Task, error) {
	return get[datatypes.Task](ctx, s.db, taskPrefix+id)
}

func (s *BadgerStore) UpdateTask(ctx context.Context, task datatypes.Task) error {
	return update(ctx, s.db, taskPrefix+task.ID, task)
}

func (s *BadgerStore) ListTasks(ctx context.Context, filter TaskFilter) ([]datatypes.Task, error) {
	return list(ctx, s.db, taskPrefix, filter.match)
}

func (s *BadgerStore) CreateSession(ctx context.Context, session datatypes.Session) error {
	return create(ctx, s.db, sessionPrefix+session.ID, session)
}

func (s *BadgerStore) GetSession(ctx context.Context, id string) (datatypes.Session, error) {
	return get[datatypes.Session](ctx, s.db, sessionPrefix+id)
}

func (s *BadgerStore) UpdateSession(ctx context.Context, session datatypes.Session) error {
	return update(ctx, s.db, sessionPrefix+session.ID, session)
}

func (s *BadgerStore) ListSessions(ctx context.Context, filter SessionFilter) ([]datatypes.Session, error) {
	return list(ctx, s.db, sessionPrefix, filter.match)
}

func get[T any](ctx context.Context, db *focusbadger.DB, key string) (T, error) {
	var v T
	err := db.GetJSON(ctx, key, &v)
	if errors.Is(err, focusbadger.ErrKeyNotFound) {
		return v, ErrNotFound
	}
	return v, err
}

// create writes key only if it is absent, inside one transaction.
func create[T any](ctx context.Context, db *focusbadger.DB, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return db.WithTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read %s: %w", key, err)
		}
		return txn.Set([]byte(key), data)
	})
}

// update replaces key only if it exists.
func update[T any](ctx context.Context, db *focusbadger.DB, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return db.WithTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		return txn.Set([]byte(key), data)
	})
}

func list[T any](ctx context.Context, db *focusbadger.DB, prefix string, match func(T) bool) ([]T, error) {
	out := make([]T, 0)
	err := db.ScanPrefix(ctx, prefix, func(key string, val []byte) error {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if match(v) {
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Store = (*BadgerStore)(nil)
