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
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SessionMeasurement is the InfluxDB measurement for session analytics.
const SessionMeasurement = "focus_sessions"

// InfluxConfig locates the analytics bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink records session analytics as InfluxDB points. Only events that
// carry measurable values are written; everything else is ignored.
type InfluxSink struct {
	client influxdb2.Client
	writer pointWriter
	now    func() time.Time
}

// NewInfluxSink opens a client with a blocking write API.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		now:    time.Now,
	}
}

var recordedEvents = map[datatypes.EventName]bool{
	datatypes.EventSessionStarted:        true,
	datatypes.EventSessionPaused:         true,
	datatypes.EventSessionResumed:        true,
	datatypes.EventSessionTimeout:        true,
	datatypes.EventSessionCompleted:      true,
	datatypes.EventSessionCancelled:      true,
	datatypes.EventPomodoroPhaseFinished: true,
}

// lowCardinalityTags are the payload keys indexed as tags. Ids are written
// as fields so each session does not open a new series.
var lowCardinalityTags = map[string]bool{
	"work_mode":    true,
	"session_type": true,
	"phase":        true,
}

func (s *InfluxSink) Emit(ctx context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
	if !recordedEvents[name] {
		return nil
	}
	p := influxdb2.NewPointWithMeasurement(SessionMeasurement).
		AddTag("event", string(name)).
		AddField("user_id", userID).
		AddField("count", 1).
		SetTime(s.now())

	for k, v := range payload {
		switch val := v.(type) {
		case string:
			if lowCardinalityTags[k] {
				p.AddTag(k, val)
			} else if k == "session_id" || k == "task_id" {
				p.AddField(k, val)
			}
		case int, int64, float64, bool:
			p.AddField(k, val)
		}
	}

	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", name, err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

var _ Sink = (*InfluxSink)(nil)
