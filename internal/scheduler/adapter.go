// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package scheduler bridges cron-style jobs into the notification fan-out
// service. The adapter is the only fan-out entry point for callers outside
// the request/response cycle.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/metrics"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/notify"
	"github.com/tomtom215/courier/internal/store"
)

// Notifier is the fan-out contract the adapter drives, satisfied by
// *notify.Service.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (*models.Notification, error)
}

// Adapter enqueues bulk notifications for scheduled jobs. Each recipient is
// processed independently; one failure never aborts the batch.
//
// Summary-type notifications are idempotent per calendar day. The guard is
// volatile: losing it on restart risks a rare duplicate summary, never a
// missed one. A firing that persists nothing releases its claim, so a
// same-day re-fire can recover a summary lost to a store outage.
type Adapter struct {
	notifier Notifier
	users    store.UserStore

	mu      sync.Mutex
	emitted map[string]struct{} // "type:2006-01-02"

	// now is swappable for tests.
	now func() time.Time
}

// NewAdapter creates the trigger adapter. users may be nil when no template
// personalization is needed.
func NewAdapter(notifier Notifier, users store.UserStore) *Adapter {
	return &Adapter{
		notifier: notifier,
		users:    users,
		emitted:  make(map[string]struct{}),
		now:      time.Now,
	}
}

// EmitBulk fans the notification out to every recipient. The template may
// reference {name}, replaced with the recipient's display name when the
// user store knows them. Returns how many notifications were persisted.
//
// For daily-once types a second call on the same calendar date is a no-op.
func (a *Adapter) EmitBulk(ctx context.Context, recipients []string, typ models.NotificationType, title, template string) (int, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("%w: %q", notify.ErrInvalidType, typ)
	}

	if typ.DailyOnce() && !a.claimDay(typ) {
		logging.Info().Str("type", string(typ)).Msg("bulk emission already ran today, skipping")
		metrics.BulkEmitted.WithLabelValues(string(typ), "skipped").Add(float64(len(recipients)))
		return 0, nil
	}

	sent := 0
	for _, userID := range recipients {
		_, err := a.notifier.Notify(ctx, notify.Request{
			UserID:  userID,
			Type:    typ,
			Title:   title,
			Message: a.personalize(ctx, template, userID),
		})
		if err != nil {
			logging.Warn().Err(err).Str("user", userID).Str("type", string(typ)).Msg("bulk notification failed")
			metrics.BulkEmitted.WithLabelValues(string(typ), "failed").Inc()
			continue
		}
		sent++
		metrics.BulkEmitted.WithLabelValues(string(typ), "sent").Inc()
	}

	if typ.DailyOnce() && sent == 0 {
		// Nothing was persisted, so the day is not actually covered. Give
		// the claim back so a re-fire can recover the summary.
		a.releaseDay(typ)
		logging.Warn().Str("type", string(typ)).Msg("bulk emission persisted nothing, releasing daily claim")
	}

	logging.Info().Str("type", string(typ)).Int("recipients", len(recipients)).Int("sent", sent).Msg("bulk emission complete")
	return sent, nil
}

// claimDay marks the type as emitted for today, reporting whether this call
// won the claim. Check and set share one lock so duplicate schedule firings
// cannot both pass.
func (a *Adapter) claimDay(typ models.NotificationType) bool {
	key := a.dayKey(typ)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, done := a.emitted[key]; done {
		return false
	}
	a.emitted[key] = struct{}{}
	return true
}

// releaseDay gives back a claim that produced nothing.
func (a *Adapter) releaseDay(typ models.NotificationType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.emitted, a.dayKey(typ))
}

func (a *Adapter) dayKey(typ models.NotificationType) string {
	return string(typ) + ":" + a.now().UTC().Format("2006-01-02")
}

// personalize substitutes {name} with the recipient's display name, falling
// back to the raw template when the user is unknown.
func (a *Adapter) personalize(ctx context.Context, template, userID string) string {
	if !strings.Contains(template, "{name}") {
		return template
	}
	name := userID
	if a.users != nil {
		if u, err := a.users.FindUser(ctx, userID); err == nil && u.DisplayName != "" {
			name = u.DisplayName
		}
	}
	return strings.ReplaceAll(template, "{name}", name)
}
