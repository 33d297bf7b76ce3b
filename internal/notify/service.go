// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package notify implements the notification fan-out service: persist a
// record, then dispatch it across the live-socket and push-provider
// channels.
//
// Persistence success is the only required outcome. The live and push
// channels are strictly additive; their failures are logged and swallowed,
// never surfaced to the caller, and never roll back the persisted record.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/metrics"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/push"
	"github.com/tomtom215/courier/internal/room"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/websocket"
)

// ErrInvalidType rejects notification types outside the enumerated set.
// The call has no side effect; this is a programmer error, never silently
// defaulted.
var ErrInvalidType = errors.New("invalid notification type")

// Store is the persistence surface the fan-out service consumes.
type Store interface {
	store.UserStore
	store.NotificationStore
}

// LiveEmitter is the live-socket channel, satisfied by the websocket hub.
type LiveEmitter interface {
	Broadcast(key room.Key, frame websocket.Frame)
	RoomSize(key room.Key) int
}

// Request describes one notification to fan out.
type Request struct {
	UserID    string
	Type      models.NotificationType
	Title     string
	Message   string
	RelatedID string

	// SuppressPush skips the per-recipient mobile push. Group message
	// fan-out sets it so the bulk, cooldown-throttled group push is the
	// only provider call for a message burst.
	SuppressPush bool
}

// Service is the shared fan-out implementation behind both request handlers
// and scheduled jobs.
type Service struct {
	store    Store
	live     LiveEmitter
	provider push.Provider
	cooldown *Cooldown
}

// NewService creates the fan-out service.
func NewService(st Store, live LiveEmitter, provider push.Provider, cooldown *Cooldown) *Service {
	if provider == nil {
		provider = push.NopProvider{}
	}
	if cooldown == nil {
		cooldown = NewCooldown(DefaultCooldownWindow)
	}
	return &Service{
		store:    st,
		live:     live,
		provider: provider,
		cooldown: cooldown,
	}
}

// Notify persists a notification and dispatches it across the live and push
// channels. The returned error reflects validation and persistence only.
func (s *Service) Notify(ctx context.Context, req Request) (*models.Notification, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}

	n := &models.Notification{
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     boundRunes(req.Title, models.MaxTitleRunes),
		Message:   boundRunes(req.Message, models.MaxBodyRunes),
		RelatedID: req.RelatedID,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}
	metrics.NotificationsPersisted.WithLabelValues(string(n.Type)).Inc()

	s.emitLive(n)

	if !req.SuppressPush {
		s.pushToUser(ctx, n)
	}

	return n, nil
}

// NotifyGroup sends one bulk provider push to the given recipients, subject
// to the per-key cooldown throttle. Per-recipient persistence is not this
// method's job; callers persist through Notify first. Push failures are
// logged and swallowed. Tokens the provider reports as terminally invalid
// are invalidated on their owners' records, same as the single-send path.
func (s *Service) NotifyGroup(ctx context.Context, groupKey string, userIDs []string, title, message string, data map[string]string) error {
	if !s.cooldown.Allow(groupKey) {
		metrics.CooldownSuppressed.Inc()
		logging.Debug().Str("group_key", groupKey).Msg("bulk push suppressed by cooldown")
		return nil
	}

	tokens := make([]string, 0, len(userIDs))
	owners := make(map[string]string, len(userIDs))
	for _, userID := range userIDs {
		user, err := s.store.FindUser(ctx, userID)
		if err != nil || user.PushToken == "" {
			continue
		}
		tokens = append(tokens, user.PushToken)
		owners[user.PushToken] = userID
	}
	if len(tokens) == 0 {
		return nil
	}

	invalid, err := s.provider.SendMulticast(ctx, tokens,
		boundRunes(title, models.MaxTitleRunes),
		boundRunes(message, models.MaxBodyRunes),
		data,
	)
	if err != nil {
		logging.Warn().Err(err).Str("group_key", groupKey).Int("recipients", len(tokens)).Msg("bulk push delivery failed")
		return nil
	}
	for _, token := range invalid {
		userID, ok := owners[token]
		if !ok {
			continue
		}
		logging.Info().Str("user", userID).Msg("push token rejected in bulk batch, invalidating")
		s.invalidateToken(userID)
	}
	return nil
}

// emitLive broadcasts the persisted notification to the recipient's
// personal inbox room. Broadcasting to a room with no connected session is
// a no-op, not an error.
func (s *Service) emitLive(n *models.Notification) {
	key := room.Personal(n.UserID)
	outcome := "delivered"
	if s.live.RoomSize(key) == 0 {
		outcome = "no_subscriber"
	}
	s.live.Broadcast(key, websocket.Frame{Type: websocket.FrameTypeNewNotification, Data: n})
	metrics.LiveEmits.WithLabelValues(outcome).Inc()
}

// pushToUser attempts a provider push for one recipient. Every failure is
// swallowed; a terminal token rejection additionally triggers a
// fire-and-forget token invalidation.
func (s *Service) pushToUser(ctx context.Context, n *models.Notification) {
	user, err := s.store.FindUser(ctx, n.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			logging.Warn().Err(err).Str("user", n.UserID).Msg("failed to load push target")
		}
		return
	}
	if user.PushToken == "" {
		return
	}

	data := map[string]string{"type": string(n.Type)}
	if n.RelatedID != "" {
		data["related_id"] = n.RelatedID
	}

	err = s.provider.Send(ctx, user.PushToken, n.Title, n.Message, data)
	switch {
	case err == nil:
	case errors.Is(err, push.ErrTokenInvalid):
		logging.Info().Str("user", n.UserID).Msg("push token rejected, invalidating")
		s.invalidateToken(n.UserID)
	default:
		logging.Warn().Err(err).Str("user", n.UserID).Msg("push delivery failed")
	}
}

// invalidateToken clears the user's device token in the background. The
// send path never waits on it; a lost invalidation means one more rejected
// push, not a delivery failure.
func (s *Service) invalidateToken(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.InvalidatePushToken(ctx, userID); err != nil {
			logging.Warn().Err(err).Str("user", userID).Msg("failed to invalidate push token")
		}
	}()
}

// boundRunes trims surrounding whitespace and truncates to at most max
// runes.
func boundRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
