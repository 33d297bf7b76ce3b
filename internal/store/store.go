// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package store defines the persistence contract the messaging subsystem
// consumes, together with a BadgerDB-backed implementation and an in-memory
// implementation for tests.
//
// The relational layer of the surrounding system is an external
// collaborator; these interfaces are the complete surface this subsystem is
// allowed to touch. Implementations handle their own internal concurrency.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/courier/internal/models"
)

// Sentinel errors shared by all implementations.
var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotificationNotFound indicates the notification does not exist
	// or does not belong to the requesting user. The two cases are
	// deliberately indistinguishable.
	ErrNotificationNotFound = errors.New("notification not found")
)

// MembershipStore answers group membership questions.
type MembershipStore interface {
	// IsMember reports whether the user belongs to the group. A missing
	// group and a missing membership both return false; callers must not
	// be able to tell them apart.
	IsMember(ctx context.Context, groupID, userID string) (bool, error)

	// ListGroupMembers returns the user IDs of all group members. An
	// unknown group yields an empty slice.
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// UserStore reads user projections and manages push token lifecycle.
type UserStore interface {
	// FindUser returns the user projection, or ErrUserNotFound.
	FindUser(ctx context.Context, userID string) (*models.User, error)

	// InvalidatePushToken clears the user's device token after a terminal
	// provider rejection. Unknown users are a no-op.
	InvalidatePushToken(ctx context.Context, userID string) error
}

// MessageStore persists chat messages.
type MessageStore interface {
	// InsertMessage persists the message, assigning ID, Seq, and
	// CreatedAt. The assigned Seq defines delivery order within a room.
	InsertMessage(ctx context.Context, msg *models.Message) error
}

// NotificationStore persists notification records and read-state
// transitions.
type NotificationStore interface {
	// InsertNotification persists the record, assigning ID, Seq, and
	// CreatedAt. IsRead is forced to false.
	InsertNotification(ctx context.Context, n *models.Notification) error

	// MarkNotificationRead transitions IsRead false→true for the given
	// recipient and sets ReadAt. It returns false when the record was
	// already read, and ErrNotificationNotFound when the record is absent
	// or owned by someone else.
	MarkNotificationRead(ctx context.Context, id, userID string) (bool, error)

	// ListNotifications returns the user's notifications, newest first,
	// bounded by limit (0 means a reasonable default).
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// Store aggregates the full persistence surface.
type Store interface {
	MembershipStore
	UserStore
	MessageStore
	NotificationStore

	Close() error
}
