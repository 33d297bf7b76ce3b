// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package session owns the ephemeral connection identity: who is on the
// other end of each websocket, and which connections a user currently has.
//
// Sessions are never persisted. They are created on successful
// authentication, destroyed on disconnect, and a user may hold several at
// once (one per device).
package session

import (
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/google/uuid"

	"github.com/tomtom215/courier/internal/auth"
	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/room"
	"github.com/tomtom215/courier/internal/websocket"
)

// Session identifies one authenticated connection.
type Session struct {
	UserID string
	Name   string
	Role   string

	// ConnID distinguishes this connection among the user's devices.
	ConnID string

	CreatedAt time.Time
}

// Manager authenticates connecting clients and tracks active sessions.
type Manager struct {
	tokens *auth.Manager
	hub    *websocket.Hub

	mu       sync.RWMutex
	sessions map[string]*Session // ConnID -> Session
}

// NewManager creates a session manager backed by the given token manager
// and hub.
func NewManager(tokens *auth.Manager, hub *websocket.Hub) *Manager {
	return &Manager{
		tokens:   tokens,
		hub:      hub,
		sessions: make(map[string]*Session),
	}
}

// IssueToken creates a signed session token for a user who has already
// passed credential verification.
func (m *Manager) IssueToken(userID, name, role string) (string, error) {
	return m.tokens.GenerateToken(userID, name, role)
}

// Authenticate validates the raw bearer token and builds a session for the
// connection. A missing, malformed, or expired token fails with one of the
// auth sentinels; the caller must reject the connection before any room
// subscription occurs.
func (m *Manager) Authenticate(rawToken string) (*Session, error) {
	claims, err := m.tokens.ValidateToken(rawToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID:    claims.UserID,
		Name:      claims.Name,
		Role:      claims.Role,
		ConnID:    uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Attach binds an authenticated session to an upgraded connection: the
// client is registered with the hub, auto-subscribed to the user's personal
// inbox room, and recorded in the session registry. The caller starts the
// client's pumps.
func (m *Manager) Attach(s *Session, conn *gws.Conn, handler websocket.Handler) *websocket.Client {
	client := websocket.NewClient(m.hub, conn, s.UserID, s.ConnID, handler)
	m.hub.Register(client)
	m.hub.Subscribe(client, room.Personal(s.UserID))

	m.mu.Lock()
	m.sessions[s.ConnID] = s
	m.mu.Unlock()

	logging.Info().Str("user", s.UserID).Str("conn", s.ConnID).Msg("session connected")
	return client
}

// Disconnect removes the session for one connection. Room subscriptions are
// torn down by the hub when the client unregisters; other connections from
// the same user are unaffected.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()

	if ok {
		logging.Info().Str("user", s.UserID).Str("conn", connID).Msg("session disconnected")
	}
}

// Get returns the session for a connection.
func (m *Manager) Get(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

// ActiveConnections returns how many connections the user currently holds.
func (m *Manager) ActiveConnections(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}
