// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package chat

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/websocket"
)

// SessionRegistry is the session teardown hook the gateway calls on
// disconnect, satisfied by *session.Manager.
type SessionRegistry interface {
	Disconnect(connID string)
}

// Gateway dispatches inbound websocket frames to the chat service. It
// implements websocket.Handler; each request frame is answered with a
// structured acknowledgment in addition to any room broadcast it triggers.
type Gateway struct {
	service  *Service
	sessions SessionRegistry
}

// NewGateway creates the frame gateway.
func NewGateway(service *Service, sessions SessionRegistry) *Gateway {
	return &Gateway{service: service, sessions: sessions}
}

type joinGroupRequest struct {
	GroupID string `json:"group_id"`
}

type joinPrivateRequest struct {
	TargetUserID string `json:"target_user_id"`
}

// sendMessageRequest carries a group or private send. Any client-supplied
// sender identity is ignored; the sender is always the authenticated
// session's user.
type sendMessageRequest struct {
	GroupID    string             `json:"group_id,omitempty"`
	ReceiverID string             `json:"receiver_id,omitempty"`
	Content    string             `json:"content"`
	Kind       models.MessageKind `json:"kind,omitempty"`
	FileURL    string             `json:"file_url,omitempty"`
	FileName   string             `json:"file_name,omitempty"`
}

// HandleFrame processes one inbound request frame.
func (g *Gateway) HandleFrame(ctx context.Context, c *websocket.Client, frameType string, data json.RawMessage) {
	switch frameType {
	case websocket.FrameTypeJoinGroup:
		g.handleJoinGroup(ctx, c, data)
	case websocket.FrameTypeJoinPrivate:
		g.handleJoinPrivate(ctx, c, data)
	case websocket.FrameTypeSendMessage:
		g.handleSendMessage(ctx, c, data)
	case websocket.FrameTypeSendPrivate:
		g.handleSendPrivate(ctx, c, data)
	default:
		logging.Debug().Str("frame_type", frameType).Str("user", c.UserID).Msg("unknown frame type")
		c.Nack(frameType, "unknown_type", "unknown frame type")
	}
}

// HandleDisconnect tears down the session after the hub has unregistered
// the client.
func (g *Gateway) HandleDisconnect(c *websocket.Client) {
	g.sessions.Disconnect(c.ConnID)
}

func (g *Gateway) handleJoinGroup(ctx context.Context, c *websocket.Client, data json.RawMessage) {
	var req joinGroupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Nack(websocket.FrameTypeJoinGroup, "invalid_payload", "malformed join-group payload")
		return
	}

	key, err := g.service.JoinGroup(ctx, c, req.GroupID)
	if err != nil {
		c.Nack(websocket.FrameTypeJoinGroup, errCode(err), errMessage(err))
		return
	}
	c.Ack(websocket.FrameTypeJoinGroup, map[string]string{"room": key.String()})
}

func (g *Gateway) handleJoinPrivate(ctx context.Context, c *websocket.Client, data json.RawMessage) {
	var req joinPrivateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Nack(websocket.FrameTypeJoinPrivate, "invalid_payload", "malformed join-private payload")
		return
	}

	key, err := g.service.JoinPrivate(ctx, c, req.TargetUserID)
	if err != nil {
		c.Nack(websocket.FrameTypeJoinPrivate, errCode(err), errMessage(err))
		return
	}
	c.Ack(websocket.FrameTypeJoinPrivate, map[string]string{"room": key.String()})
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *websocket.Client, data json.RawMessage) {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Nack(websocket.FrameTypeSendMessage, "invalid_payload", "malformed send-message payload")
		return
	}

	msg, err := g.service.SendGroupMessage(ctx, c.UserID, req.GroupID, req.Content, req.Kind, req.FileURL, req.FileName)
	if err != nil {
		c.Nack(websocket.FrameTypeSendMessage, errCode(err), errMessage(err))
		return
	}
	c.Ack(websocket.FrameTypeSendMessage, msg)
}

func (g *Gateway) handleSendPrivate(ctx context.Context, c *websocket.Client, data json.RawMessage) {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Nack(websocket.FrameTypeSendPrivate, "invalid_payload", "malformed send-private payload")
		return
	}

	msg, err := g.service.SendPrivateMessage(ctx, c.UserID, req.ReceiverID, req.Content, req.Kind, req.FileURL, req.FileName)
	if err != nil {
		c.Nack(websocket.FrameTypeSendPrivate, errCode(err), errMessage(err))
		return
	}
	c.Ack(websocket.FrameTypeSendPrivate, msg)
}

// errCode maps service errors to wire-level error codes. Anything outside
// the caller-error taxonomy is an internal failure.
func errCode(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	default:
		return "internal_error"
	}
}

// errMessage returns the client-facing message. Internal failures are not
// echoed to the client.
func errMessage(err error) string {
	if errCode(err) == "internal_error" {
		logging.Error().Err(err).Msg("chat request failed")
		return "request failed"
	}
	return err.Error()
}
