// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package chat implements the room router and message channel: join-time
// authorization, per-send re-validation, message persistence, and room
// broadcast, with notification fan-out dispatched off the send path.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/metrics"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/notify"
	"github.com/tomtom215/courier/internal/room"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/websocket"
)

var (
	// ErrAccessDenied covers both a missing group and a missing
	// membership. The two cases are deliberately indistinguishable so
	// callers cannot probe group existence.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidTarget rejects self-targeted or unknown private peers.
	ErrInvalidTarget = errors.New("invalid target user")

	// ErrEmptyMessage rejects messages that are empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidKind rejects unknown message kinds.
	ErrInvalidKind = errors.New("invalid message kind")
)

// Store is the persistence surface the message channel consumes.
type Store interface {
	store.MembershipStore
	store.UserStore
	store.MessageStore
}

// Broadcaster is the subset of the hub the message channel drives,
// satisfied by *websocket.Hub.
type Broadcaster interface {
	Subscribe(c *websocket.Client, key room.Key)
	Broadcast(key room.Key, frame websocket.Frame)
}

// Notifier is the fan-out contract invoked after a successful group or
// private send, satisfied by *notify.Service.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (*models.Notification, error)
	NotifyGroup(ctx context.Context, groupKey string, userIDs []string, title, message string, data map[string]string) error
}

// Service validates, persists, and broadcasts chat messages.
type Service struct {
	store    Store
	hub      Broadcaster
	notifier Notifier
}

// NewService creates the message channel service.
func NewService(st Store, hub Broadcaster, notifier Notifier) *Service {
	return &Service{store: st, hub: hub, notifier: notifier}
}

// JoinGroup authorizes the client for a group conversation and subscribes
// it to the group room. Membership is checked against the store on every
// join; a missing group and a non-member both fail with ErrAccessDenied.
func (s *Service) JoinGroup(ctx context.Context, c *websocket.Client, groupID string) (room.Key, error) {
	if groupID == "" {
		return room.Key{}, ErrAccessDenied
	}
	ok, err := s.store.IsMember(ctx, groupID, c.UserID)
	if err != nil {
		return room.Key{}, fmt.Errorf("membership lookup failed: %w", err)
	}
	if !ok {
		return room.Key{}, ErrAccessDenied
	}

	key := room.Group(groupID)
	s.hub.Subscribe(c, key)
	return key, nil
}

// JoinPrivate subscribes the client to the deterministic one-to-one room
// with the target user. Both participants resolve to the identical room key
// regardless of who initiates.
func (s *Service) JoinPrivate(ctx context.Context, c *websocket.Client, targetID string) (room.Key, error) {
	if targetID == "" || targetID == c.UserID {
		return room.Key{}, ErrInvalidTarget
	}
	if _, err := s.store.FindUser(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return room.Key{}, ErrInvalidTarget
		}
		return room.Key{}, fmt.Errorf("target lookup failed: %w", err)
	}

	key := room.Private(c.UserID, targetID)
	s.hub.Subscribe(c, key)
	return key, nil
}

// SendGroupMessage validates, persists, and broadcasts a group message.
// Membership is re-validated on every send; a prior JoinGroup success is
// never trusted. The sender ID is always the authenticated user, never a
// client-supplied value. Notification fan-out runs off the send path and
// never blocks or fails the broadcast.
func (s *Service) SendGroupMessage(ctx context.Context, senderID, groupID, content string, kind models.MessageKind, fileURL, fileName string) (*models.Message, error) {
	ok, err := s.store.IsMember(ctx, groupID, senderID)
	if err != nil {
		metrics.SendRejected.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("membership lookup failed: %w", err)
	}
	if !ok {
		metrics.SendRejected.WithLabelValues("access_denied").Inc()
		return nil, ErrAccessDenied
	}

	msg, err := s.buildMessage(ctx, senderID, content, kind, fileURL, fileName)
	if err != nil {
		return nil, err
	}
	msg.GroupID = groupID

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		metrics.SendRejected.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues("group").Inc()

	key := room.Group(groupID)
	s.hub.Broadcast(key, websocket.Frame{Type: websocket.FrameTypeReceiveMessage, Data: msg})

	go s.fanOutGroup(context.WithoutCancel(ctx), key, msg)

	return msg, nil
}

// SendPrivateMessage validates, persists, and delivers a one-to-one
// message. Delivery fires on two independent paths: the deterministic
// private room (both participants, if joined) and the receiver's personal
// inbox room (always addressable).
func (s *Service) SendPrivateMessage(ctx context.Context, senderID, receiverID, content string, kind models.MessageKind, fileURL, fileName string) (*models.Message, error) {
	if receiverID == "" || receiverID == senderID {
		metrics.SendRejected.WithLabelValues("invalid_target").Inc()
		return nil, ErrInvalidTarget
	}
	if _, err := s.store.FindUser(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			metrics.SendRejected.WithLabelValues("invalid_target").Inc()
			return nil, ErrInvalidTarget
		}
		metrics.SendRejected.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("receiver lookup failed: %w", err)
	}

	msg, err := s.buildMessage(ctx, senderID, content, kind, fileURL, fileName)
	if err != nil {
		return nil, err
	}
	msg.ReceiverID = receiverID

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		metrics.SendRejected.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues("private").Inc()

	frame := websocket.Frame{Type: websocket.FrameTypeReceivePrivate, Data: msg}
	s.hub.Broadcast(room.Private(senderID, receiverID), frame)
	s.hub.Broadcast(room.Personal(receiverID), frame)

	go s.fanOutPrivate(context.WithoutCancel(ctx), msg)

	return msg, nil
}

// buildMessage applies the shared content rules: trim, synthesize a file
// caption when needed, reject empty content, and bound the length. The
// sender's display name is attached best-effort for broadcast enrichment.
func (s *Service) buildMessage(ctx context.Context, senderID, content string, kind models.MessageKind, fileURL, fileName string) (*models.Message, error) {
	if kind == "" {
		kind = models.MessageKindText
	}
	if !kind.Valid() {
		metrics.SendRejected.WithLabelValues("invalid_kind").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	content = strings.TrimSpace(content)
	if content == "" && kind == models.MessageKindFile {
		if name := strings.TrimSpace(fileName); name != "" {
			content = "Sent a file: " + name
		}
	}
	if content == "" {
		metrics.SendRejected.WithLabelValues("empty_message").Inc()
		return nil, ErrEmptyMessage
	}
	if runes := []rune(content); len(runes) > models.MaxMessageRunes {
		content = string(runes[:models.MaxMessageRunes])
	}

	msg := &models.Message{
		SenderID: senderID,
		Kind:     kind,
		Content:  content,
	}
	if kind == models.MessageKindFile {
		msg.FileURL = fileURL
		msg.FileName = fileName
	}

	if sender, err := s.store.FindUser(ctx, senderID); err == nil {
		msg.SenderName = sender.DisplayName
	}

	return msg, nil
}

// fanOutGroup persists one chat notification per other group member and
// issues a single cooldown-throttled bulk push for the room. Per-recipient
// failures are isolated; one recipient's failure never aborts the rest.
func (s *Service) fanOutGroup(ctx context.Context, key room.Key, msg *models.Message) {
	members, err := s.store.ListGroupMembers(ctx, msg.GroupID)
	if err != nil {
		logging.Warn().Err(err).Str("group", msg.GroupID).Msg("failed to list members for fan-out")
		return
	}

	title := msg.SenderName
	if title == "" {
		title = "New message"
	}

	recipients := make([]string, 0, len(members))
	for _, memberID := range members {
		if memberID == msg.SenderID {
			continue
		}
		recipients = append(recipients, memberID)

		_, err := s.notifier.Notify(ctx, notify.Request{
			UserID:    memberID,
			Type:      models.NotificationChat,
			Title:     title,
			Message:   msg.Content,
			RelatedID: msg.ID,
			// The bulk group push below is the only provider call for
			// this message.
			SuppressPush: true,
		})
		if err != nil {
			logging.Warn().Err(err).Str("user", memberID).Str("message", msg.ID).Msg("per-member notification failed")
		}
	}

	if len(recipients) == 0 {
		return
	}
	data := map[string]string{"type": string(models.NotificationChat), "group_id": msg.GroupID}
	if err := s.notifier.NotifyGroup(ctx, key.String(), recipients, title, msg.Content, data); err != nil {
		logging.Warn().Err(err).Str("group", msg.GroupID).Msg("bulk group push failed")
	}
}

// fanOutPrivate persists and pushes one chat notification to the receiver.
func (s *Service) fanOutPrivate(ctx context.Context, msg *models.Message) {
	title := msg.SenderName
	if title == "" {
		title = "New message"
	}

	_, err := s.notifier.Notify(ctx, notify.Request{
		UserID:    msg.ReceiverID,
		Type:      models.NotificationChat,
		Title:     title,
		Message:   msg.Content,
		RelatedID: msg.ID,
	})
	if err != nil {
		logging.Warn().Err(err).Str("user", msg.ReceiverID).Str("message", msg.ID).Msg("private message notification failed")
	}
}
