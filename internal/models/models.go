// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package models defines the persisted and wire-level data structures shared
// across the messaging and notification subsystems.
package models

import (
	"time"
)

// Content bounds enforced by the message channel and fan-out service.
const (
	// MaxMessageRunes is the maximum chat message length after trimming.
	MaxMessageRunes = 4000

	// MaxTitleRunes is the maximum notification title length.
	MaxTitleRunes = 200

	// MaxBodyRunes is the maximum notification body length.
	MaxBodyRunes = 500
)

// MessageKind distinguishes plain text messages from file attachments.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	MessageKindFile MessageKind = "file"
)

// Valid reports whether the kind is one of the known values.
func (k MessageKind) Valid() bool {
	return k == MessageKindText || k == MessageKindFile
}

// Message is a persisted chat message. Messages are immutable once created
// and are never deleted by this subsystem.
//
// Exactly one of GroupID or ReceiverID is set: GroupID for group
// conversations, ReceiverID for one-to-one conversations. SenderID is always
// the authenticated session's user ID; client-supplied sender fields are
// ignored at the send boundary.
type Message struct {
	ID         string      `json:"id"`
	GroupID    string      `json:"group_id,omitempty"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	FileURL    string      `json:"file_url,omitempty"`
	FileName   string      `json:"file_name,omitempty"`

	// Seq is the store-assigned insertion sequence. Broadcast delivery
	// within a room follows this order.
	Seq uint64 `json:"seq"`

	CreatedAt time.Time `json:"created_at"`
}

// NotificationType enumerates the notification sources. The fan-out service
// rejects anything outside this set; it never silently defaults.
type NotificationType string

const (
	NotificationChat       NotificationType = "chat"
	NotificationTask       NotificationType = "task"
	NotificationLeave      NotificationType = "leave"
	NotificationAttendance NotificationType = "attendance"
	NotificationCalendar   NotificationType = "calendar"
	NotificationScrum      NotificationType = "scrum"
)

// Valid reports whether the type is one of the enumerated values.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationChat, NotificationTask, NotificationLeave,
		NotificationAttendance, NotificationCalendar, NotificationScrum:
		return true
	}
	return false
}

// DailyOnce reports whether bulk emissions of this type are summary-style
// and must be deduplicated per calendar day by the scheduled trigger adapter.
func (t NotificationType) DailyOnce() bool {
	return t == NotificationAttendance || t == NotificationScrum
}

// Notification is a persisted notification record. Content is immutable
// after creation; only the read-state transition (IsRead false→true, ReadAt
// set) mutates the record.
type Notification struct {
	ID      string           `json:"id"`
	UserID  string           `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`

	// RelatedID is a weak back-reference to the triggering entity
	// (message ID, leave request ID). No cascading delete.
	RelatedID string `json:"related_id,omitempty"`

	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	// Seq is the store-assigned insertion sequence.
	Seq uint64 `json:"seq"`

	CreatedAt time.Time `json:"created_at"`
}

// User is the projection of a user record this subsystem reads: enough to
// enrich broadcasts and decide whether a mobile push is possible. The full
// user entity is owned elsewhere.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// PushToken is the registered device token, empty when the user has
	// no registered device.
	PushToken string `json:"push_token,omitempty"`
}

// APIResponse is the standard HTTP response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
