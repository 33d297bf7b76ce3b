// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, well above the 4000-rune content bound
)

// clientIDCounter generates unique, monotonically increasing client IDs.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
// One client exists per connection; a user with several devices has several
// clients, each with its own ConnID.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Frame

	// done is closed by the hub (eviction, shutdown, unregister) to tell
	// the pumps to stop. The send channel itself is never closed: the read
	// pump may still be mid-frame and about to Ack, and a send on a closed
	// channel panics. Closing done instead makes late sends a silent no-op.
	done      chan struct{}
	closeOnce sync.Once

	// UserID is the authenticated user this connection belongs to.
	UserID string

	// ConnID identifies this connection among the user's devices.
	ConnID string

	handler Handler
}

// NewClient creates a client for an upgraded connection. The caller
// registers it with the hub and then calls Start.
func NewClient(hub *Hub, conn *websocket.Conn, userID, connID string, handler Handler) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		send:    make(chan Frame, 256),
		done:    make(chan struct{}),
		UserID:  userID,
		ConnID:  connID,
		handler: handler,
	}
}

// close signals both pumps to stop. Idempotent; called by the hub when the
// client is removed. Safe concurrently with Send.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// closed reports whether the hub has removed this client.
func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send queues an outbound frame for this client only. Non-blocking; a full
// buffer drops the frame (the write pump is stalled and the hub will evict
// the client on the next room broadcast). Sends after the hub has removed
// the client are dropped silently, never a panic: the read pump may still
// be acking its last frame when an eviction lands.
func (c *Client) Send(frame Frame) {
	if c.closed() {
		return
	}
	select {
	case c.send <- frame:
	default:
		logging.Warn().Str("user", c.UserID).Str("frame_type", frame.Type).Msg("client send buffer full, dropping frame")
	}
}

// Ack sends a success acknowledgment for an inbound request.
func (c *Client) Ack(op string, message interface{}) {
	c.Send(Frame{Type: FrameTypeAck, Data: Ack{Success: true, Op: op, Message: message}})
}

// Nack sends a failure acknowledgment for an inbound request.
func (c *Client) Nack(op, code, message string) {
	c.Send(Frame{Type: FrameTypeAck, Data: Ack{
		Success: false,
		Op:      op,
		Error:   &models.APIError{Code: code, Message: message},
	}})
}

// Outbound exposes the client's outbound frame queue. The write pump
// drains it when the pumps are running; direct reads are only safe before
// Start.
func (c *Client) Outbound() <-chan Frame {
	return c.send
}

// Start begins the read and write pumps.
func (c *Client) Start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

// readPump pumps inbound frames from the connection to the frame handler.
// Inbound handling is one goroutine per connection, so one sender's
// successive messages are processed, persisted, and broadcast in order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		if c.handler != nil {
			c.handler.HandleDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("user", c.UserID).Msg("unexpected websocket close")
			}
			break
		}

		if frame.Type == FrameTypePing {
			c.Send(Frame{Type: FrameTypePong})
			continue
		}

		if c.handler != nil {
			c.handler.HandleFrame(ctx, c, frame.Type, frame.Data)
		}
	}
}

// writePump pumps frames from the send channel to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// The hub removed this client.
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				logging.Error().Err(err).Str("user", c.UserID).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
