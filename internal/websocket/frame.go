// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package websocket

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tomtom215/courier/internal/models"
)

// Frame types for websocket communication. Inbound types are requests from
// the client; outbound types are events pushed by the server.
const (
	// Inbound
	FrameTypeJoinGroup   = "join-group"
	FrameTypeJoinPrivate = "join-private"
	FrameTypeSendMessage = "send-message"
	FrameTypeSendPrivate = "send-private"
	FrameTypePing        = "ping"

	// Outbound
	FrameTypeAck             = "ack"
	FrameTypePong            = "pong"
	FrameTypeReceiveMessage  = "receive-message"
	FrameTypeReceivePrivate  = "receive-private"
	FrameTypeNewNotification = "new-notification"
)

// Frame is the outbound wire unit.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundFrame defers payload decoding to the frame handler, which knows
// the concrete request shape per type.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Ack is the structured acknowledgment returned for every inbound request
// frame, in addition to any room broadcast the request triggers.
type Ack struct {
	Success bool             `json:"success"`
	Op      string           `json:"op"`
	Message interface{}      `json:"message,omitempty"`
	Error   *models.APIError `json:"error,omitempty"`
}

// Handler dispatches inbound frames and observes client lifecycle. The chat
// gateway implements this; the websocket package stays transport-only.
type Handler interface {
	// HandleFrame processes one inbound request frame. Implementations
	// send any acknowledgment through c.Send.
	HandleFrame(ctx context.Context, c *Client, frameType string, data json.RawMessage)

	// HandleDisconnect is called exactly once after the client's
	// connection closes and it has been unregistered from the hub.
	HandleDisconnect(c *Client)
}
