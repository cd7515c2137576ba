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
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/gorilla/websocket"
)

// ErrSubscriberBacklog is returned when an event could not be queued for
// one or more slow subscribers.
var ErrSubscriberBacklog = errors.New("websocket subscriber backlog full")

const (
	defaultSendBuffer   = 32
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Hub pushes events to websocket subscribers, grouped by user. A user may
// hold several connections; each receives every event for that user.
type Hub struct {
	logger       *slog.Logger
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan datatypes.Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:       logger,
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		clients:      make(map[string]map[*subscriber]struct{}),
	}
}

// Emit queues the event on every connection of userID without blocking.
// Users with no connections are skipped silently.
func (h *Hub) Emit(_ context.Context, userID string, name datatypes.EventName, payload datatypes.Payload) error {
	ev := datatypes.Event{
		UserID:    userID,
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.clients[userID]))
	for s := range h.clients[userID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range subs {
		select {
		case s.send <- ev:
		case <-s.done:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d connection(s) for user %s", ErrSubscriberBacklog, dropped, userID)
	}
	return nil
}

// Subscribers returns the number of open connections for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and streams userID's events until the client
// disconnects or the hub closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan datatypes.Event, h.sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(userID, sub) {
		_ = conn.Close()
		return errors.New("event hub closed")
	}
	h.logger.Info("websocket subscriber connected", "user_id", userID)

	go h.writeLoop(userID, sub)
	h.readLoop(sub)

	h.unregister(userID, sub)
	sub.close()
	_ = conn.Close()
	h.logger.Info("websocket subscriber disconnected", "user_id", userID)
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscriber
	for _, subs := range h.clients {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.clients = make(map[string]map[*subscriber]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

func (h *Hub) register(userID string, sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*subscriber]struct{})
	}
	h.clients[userID][sub] = struct{}{}
	return true
}

func (h *Hub) unregister(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.clients[userID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.clients, userID)
	}
}

// readLoop drains client frames so control messages are processed. Clients
// are not expected to send anything.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(userID string, sub *subscriber) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-sub.done:
			_ = sub.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeTimeout))
			_ = sub.conn.Close()
			return
		case ev := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := sub.conn.WriteJSON(ev); err != nil {
				h.logger.Warn("failed to write websocket event",
					"user_id", userID,
					"event", string(ev.Name),
					"error", err)
				sub.close()
				_ = sub.conn.Close()
				return
			}
		case <-ping.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				sub.close()
				_ = sub.conn.Close()
				return
			}
		}
	}
}

var _ Sink = (*Hub)(nil)
