// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gorilla/websocket"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failureCounter map[datatypes.EventName]int

func (f failureCounter) ObserveEmitFailure(name datatypes.EventName) { f[name]++ }

func TestMultiSink_TriesEverySink(t *testing.T) {
	var calls []string
	ok := SinkFunc(func(context.Context, string, datatypes.EventName, datatypes.Payload) error {
		calls = append(calls, "ok")
		return nil
	})
	bad := SinkFunc(func(context.Context, string, datatypes.EventName, datatypes.Payload) error {
		calls = append(calls, "bad")
		return errors.New("down")
	})

	err := MultiSink{bad, nil, ok}.Emit(context.Background(), "u1", datatypes.EventSessionStarted, nil)
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, []string{"bad", "ok"}, calls)
}

func TestNotifier_SwallowsAndCountsFailures(t *testing.T) {
	counter := failureCounter{}
	sink := SinkFunc(func(context.Context, string, datatypes.EventName, datatypes.Payload) error {
		return errors.New("unreachable")
	})
	n := NewNotifier(sink, time.Second, nil, counter)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "u1", datatypes.EventSessionProgress, datatypes.Payload{"progress": 10.0})
	})
	assert.Equal(t, 1, counter[datatypes.EventSessionProgress])
}

func TestNotifier_IgnoresCallerCancellation(t *testing.T) {
	var sawErr error
	sink := SinkFunc(func(ctx context.Context, _ string, _ datatypes.EventName, _ datatypes.Payload) error {
		sawErr = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	n := NewNotifier(sink, time.Second, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "u1", datatypes.EventSessionCompleted, nil)
	assert.NoError(t, sawErr)
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Notify(context.Background(), "u1", datatypes.EventSessionStarted, nil) })
}

// =============================================================================
// Hub
// =============================================================================

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers(userID) == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_DeliversToSubscriber(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "u1")

	require.NoError(t, hub.Emit(context.Background(), "u2", datatypes.EventSessionStarted, nil))
	require.NoError(t, hub.Emit(context.Background(), "u1", datatypes.EventSessionProgress, datatypes.Payload{"progress": 42.5}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev datatypes.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, datatypes.EventSessionProgress, ev.Name)
	assert.Equal(t, 42.5, ev.Payload["progress"])
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "u1")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "u1")

	hub.Close()
	assert.Zero(t, hub.Subscribers("u1"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_EmitWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Emit(context.Background(), "nobody", datatypes.EventSessionStarted, nil))
}

// =============================================================================
// InfluxSink
// =============================================================================

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.points = append(f.points, points...)
	return f.err
}

func newTestInfluxSink(w *fakeWriter) *InfluxSink {
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &InfluxSink{writer: w, now: func() time.Time { return fixed }}
}

func TestInfluxSink_WritesSessionPoint(t *testing.T) {
	w := &fakeWriter{}
	sink := newTestInfluxSink(w)

	err := sink.Emit(context.Background(), "u1", datatypes.EventSessionCompleted, datatypes.Payload{
		"session_id":            "s1",
		"task_id":               "t1",
		"work_mode":             "PEAK",
		"total_elapsed_minutes": 42,
		"interruptions":         2,
	})
	require.NoError(t, err)
	require.Len(t, w.points, 1)

	p := w.points[0]
	assert.Equal(t, SessionMeasurement, p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"event":     "session_completed",
		"work_mode": "PEAK",
	}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, "t1", fields["task_id"])
	assert.EqualValues(t, 42, fields["total_elapsed_minutes"])
	assert.EqualValues(t, 2, fields["interruptions"])
	assert.EqualValues(t, 1, fields["count"])
}

func TestInfluxSink_SkipsProgressEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := newTestInfluxSink(w)

	require.NoError(t, sink.Emit(context.Background(), "u1", datatypes.EventSessionProgress, datatypes.Payload{"progress": 10.0}))
	assert.Empty(t, w.points)
}

func TestInfluxSink_IdsAreFieldsNotTags(t *testing.T) {
	w := &fakeWriter{}
	sink := newTestInfluxSink(w)

	require.NoError(t, sink.Emit(context.Background(), "u1", datatypes.EventSessionCancelled, datatypes.Payload{
		"session_id": "s1",
		"task_id":    "t1",
	}))
	require.Len(t, w.points, 1)

	var tagKeys, fieldKeys []string
	for _, tag := range w.points[0].TagList() {
		tagKeys = append(tagKeys, tag.Key)
	}
	for _, f := range w.points[0].FieldList() {
		fieldKeys = append(fieldKeys, f.Key)
	}
	assert.Equal(t, []string{"event"}, tagKeys)
	assert.ElementsMatch(t, []string{"count", "session_id", "task_id", "user_id"}, fieldKeys)
}

func TestInfluxSink_WrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("bucket not found")}
	sink := newTestInfluxSink(w)

	err := sink.Emit(context.Background(), "u1", datatypes.EventSessionTimeout, datatypes.Payload{"planned_minutes": 25})
	assert.ErrorContains(t, err, "bucket not found")
}
