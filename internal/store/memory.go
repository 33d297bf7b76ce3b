// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/courier/internal/models"
)

// MemoryStore is an in-memory Store implementation for tests and
// development. Semantics match BadgerStore.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           uint64
	users         map[string]models.User
	members       map[string]map[string]struct{} // groupID -> set of userIDs
	messages      []models.Message
	notifications map[string]*models.Notification // id -> record
	byUser        map[string][]string             // userID -> notification IDs in insert order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		members:       make(map[string]map[string]struct{}),
		notifications: make(map[string]*models.Notification),
		byUser:        make(map[string][]string),
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// UpsertUser stores a user projection.
func (s *MemoryStore) UpsertUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

// AddMember records a group membership.
func (s *MemoryStore) AddMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]struct{})
	}
	s.members[groupID][userID] = struct{}{}
	return nil
}

// RemoveMember deletes a group membership.
func (s *MemoryStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
	return nil
}

// IsMember implements MembershipStore.
func (s *MemoryStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

// ListGroupMembers implements MembershipStore.
func (s *MemoryStore) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]string, 0, len(s.members[groupID]))
	for id := range s.members[groupID] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

// FindUser implements UserStore.
func (s *MemoryStore) FindUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// InvalidatePushToken implements UserStore.
func (s *MemoryStore) InvalidatePushToken(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	u.PushToken = ""
	s.users[userID] = u
	return nil
}

// InsertMessage implements MessageStore.
func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = uuid.New().String()
	msg.Seq = s.seq
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, *msg)
	return nil
}

// Messages returns a copy of all persisted messages in insertion order.
func (s *MemoryStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// InsertNotification implements NotificationStore.
func (s *MemoryStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	n.ID = uuid.New().String()
	n.Seq = s.seq
	n.CreatedAt = time.Now().UTC()
	n.IsRead = false
	n.ReadAt = nil

	stored := *n
	s.notifications[n.ID] = &stored
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return nil
}

// MarkNotificationRead implements NotificationStore.
func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return false, ErrNotificationNotFound
	}
	if n.IsRead {
		return false, nil
	}
	now := time.Now().UTC()
	n.IsRead = true
	n.ReadAt = &now
	return true, nil
}

// ListNotifications implements NotificationStore.
func (s *MemoryStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]models.Notification, 0, len(ids))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.notifications[ids[i]])
	}
	return out, nil
}
