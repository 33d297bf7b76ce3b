// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package websocket implements the room-aware broadcast hub and the
// per-connection client pumps.
//
// The hub is the single authority over room membership at runtime. All
// mutations (register, unregister, subscribe, unsubscribe) and all
// broadcasts flow through one loop, so a disconnecting client is removed
// from every room atomically with respect to new broadcasts: once its
// unregister is processed, no later broadcast can reach its socket.
package websocket

import (
	"context"
	"sync"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/metrics"
	"github.com/tomtom215/courier/internal/room"
)

// subscription pairs a client with a room key for subscribe/unsubscribe ops.
type subscription struct {
	client *Client
	key    room.Key
}

// envelope targets a frame at a single room.
type envelope struct {
	key   room.Key
	frame Frame
}

// Hub maintains the set of active clients, their room subscriptions, and
// fans out frames to room subscribers.
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[room.Key]map[*Client]struct{}

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan envelope

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[room.Key]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		broadcast:   make(chan envelope, 256),
	}
}

// Register adds a client to the hub. Blocks until the hub loop accepts it.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client and all of its room subscriptions. Blocks
// until the hub loop accepts it; safe to call from the client's read pump.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Subscribe adds the client to a room. Subscriptions are processed by the
// hub loop before any broadcast enqueued afterwards.
func (h *Hub) Subscribe(c *Client, key room.Key) {
	h.subscribe <- subscription{client: c, key: key}
}

// Unsubscribe removes the client from a room.
func (h *Hub) Unsubscribe(c *Client, key room.Key) {
	h.unsubscribe <- subscription{client: c, key: key}
}

// Broadcast fans the frame out to all current subscribers of the room.
// Non-blocking: if the hub's broadcast buffer is full the frame is dropped
// and logged. Persistence is the delivery guarantee; the live channel is
// best-effort.
func (h *Hub) Broadcast(key room.Key, frame Frame) {
	select {
	case h.broadcast <- envelope{key: key, frame: frame}:
	default:
		logging.Warn().Str("room", key.String()).Str("frame_type", frame.Type).Msg("broadcast channel full, dropping frame")
		metrics.BroadcastsDropped.Inc()
	}
}

// RunWithContext runs the hub loop until the context is canceled. Designed
// for suture supervision; on shutdown all clients are closed and ctx.Err()
// is returned.
//
// Priority order when multiple channels are ready:
//  1. context cancellation
//  2. client lifecycle (register/unregister/subscribe/unsubscribe)
//  3. broadcasts
//
// Lifecycle-before-broadcast keeps room state consistent before any frame
// is fanned out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.addClient(c)
			continue
		case c := <-h.unregister:
			h.removeClient(c)
			continue
		case sub := <-h.subscribe:
			h.addSubscription(sub)
			continue
		case sub := <-h.unsubscribe:
			h.removeSubscription(sub)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case sub := <-h.subscribe:
			h.addSubscription(sub)
		case sub := <-h.unsubscribe:
			h.removeSubscription(sub)
		case env := <-h.broadcast:
			h.broadcastToRoom(env)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().Str("user", c.UserID).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for key, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	c.close()
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().Str("user", c.UserID).Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) addSubscription(sub subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub.client]; !ok {
		// Client disconnected before the subscribe was processed.
		return
	}
	if h.rooms[sub.key] == nil {
		h.rooms[sub.key] = make(map[*Client]struct{})
	}
	h.rooms[sub.key][sub.client] = struct{}{}
}

func (h *Hub) removeSubscription(sub subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[sub.key]
	delete(members, sub.client)
	if len(members) == 0 {
		delete(h.rooms, sub.key)
	}
}

// broadcastToRoom copies the frame into each subscriber's send buffer. A
// full buffer evicts that client only: one stalled connection must never
// delay delivery to the rest of the room.
func (h *Hub) broadcastToRoom(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toEvict []*Client
	for c := range h.rooms[env.key] {
		select {
		case c.send <- env.frame:
		default:
			toEvict = append(toEvict, c)
		}
	}

	for _, c := range toEvict {
		logging.Warn().Str("user", c.UserID).Str("room", env.key.String()).Msg("client send buffer full, evicting")
		metrics.BroadcastsDropped.Inc()
		delete(h.clients, c)
		for key, members := range h.rooms {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
		c.close()
	}
	if len(toEvict) > 0 {
		metrics.ConnectedClients.Set(float64(len(h.clients)))
	}
}

// shutdown closes all clients and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.rooms = make(map[room.Key]map[*Client]struct{})
	h.mu.Unlock()

	metrics.ConnectedClients.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the service for supervision logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of subscribers in a room. Rooms with zero
// subscribers are still addressable; broadcasting to them is a no-op.
func (h *Hub) RoomSize(key room.Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}
