// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package api exposes the HTTP surface: login, the websocket upgrade, the
// notification inbox endpoints, and the health and metrics probes.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/session"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/websocket"
)

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Sessions      *session.Manager
	Gateway       websocket.Handler
	Hub           *websocket.Hub
	Notifications store.NotificationStore

	// AdminUsername and AdminPassword back the login endpoint. Empty
	// credentials disable login entirely.
	AdminUsername string
	AdminPassword string

	// AllowedOrigins bounds the websocket upgrade origin check. A "*"
	// entry allows any origin.
	AllowedOrigins []string
}

// Handler implements the HTTP endpoints.
type Handler struct {
	cfg HandlerConfig

	// baseCtx outlives individual requests; websocket pumps inherit it so
	// in-flight frame handling survives the upgrade request's return.
	baseCtx  context.Context
	upgrader gws.Upgrader
}

// NewHandler creates the HTTP handler set. ctx is the application lifecycle
// context; canceling it stops frame handling on all connections.
func NewHandler(ctx context.Context, cfg HandlerConfig) *Handler {
	h := &Handler{cfg: cfg, baseCtx: ctx}
	h.upgrader = gws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker builds the upgrade origin check. Requests without an Origin
// header (non-browser clients) are always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates the configured admin credentials and issues a session
// token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", "malformed login request", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if h.cfg.AdminUsername == "" || h.cfg.AdminPassword == "" {
		respondError(w, http.StatusServiceUnavailable, "login_disabled", "login is not configured", nil)
		return
	}

	userMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.AdminUsername))
	passMatch := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword))
	if userMatch&passMatch != 1 {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("login rejected")
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
		return
	}

	token, err := h.cfg.Sessions.IssueToken(req.Username, req.Username, "admin")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to issue token", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"token": token,
			"user": map[string]string{
				"id":   req.Username,
				"name": req.Username,
				"role": "admin",
			},
		},
	})
}

// WebSocket authenticates the connection and upgrades it. Authentication
// happens strictly before the upgrade; a rejected token never reaches the
// hub or any room.
//
// The token is taken from the "token" query parameter, falling back to the
// Authorization header for non-browser clients.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	sess, err := h.cfg.Sessions.Authenticate(token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn().Err(err).Str("user", sess.UserID).Msg("websocket upgrade failed")
		return
	}

	client := h.cfg.Sessions.Attach(sess, conn, h.cfg.Gateway)
	client.Start(h.baseCtx)
}

// ListNotifications returns the authenticated user's notifications, newest
// first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	limit := getIntParam(r, "limit", 50)
	notifications, err := h.cfg.Notifications.ListNotifications(r.Context(), claims.UserID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list notifications", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"notifications": notifications,
			"count":         len(notifications),
		},
	})
}

// MarkNotificationRead transitions one notification to read on behalf of the
// authenticated user. A record owned by someone else is indistinguishable
// from a missing one.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	id := chi.URLParam(r, "id")
	updated, err := h.cfg.Notifications.MarkNotificationRead(r.Context(), id, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotificationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "notification not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to mark notification read", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    map[string]bool{"updated": updated},
	})
}

// Health reports liveness and the live connection count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"clients": h.cfg.Hub.ClientCount(),
		},
	})
}
