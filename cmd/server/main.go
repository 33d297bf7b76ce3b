// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package main is the entry point for the Courier server.
//
// Courier is the real-time messaging and notification fan-out subsystem:
// websocket chat rooms (group, private, personal inboxes), a persistent
// notification inbox, mobile push delivery behind a circuit breaker, and
// scheduled daily reminders.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, COURIER_* env vars (Koanf v2)
//  2. Store: BadgerDB (or in-memory when database.path is empty)
//  3. Websocket hub: room-aware broadcast loop
//  4. Push provider: HTTP provider behind a rate-limited circuit breaker
//  5. Notification fan-out service and chat service
//  6. Scheduler: cron-driven daily reminders (optional)
//  7. HTTP server: login, websocket upgrade, notification inbox, metrics
//
// All long-running components run under a Suture supervision tree; a crash
// in one layer restarts that layer only.
//
// # Configuration
//
// Minimal production setup:
//
//	export COURIER_SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	export COURIER_SECURITY_ADMIN_USERNAME=admin
//	export COURIER_SECURITY_ADMIN_PASSWORD=secure-password
//	export COURIER_DATABASE_PATH=/data/courier
//	./courier
//
// Enable mobile push:
//
//	export COURIER_PUSH_ENDPOINT=https://push.example.com/v1/send
//	export COURIER_PUSH_API_KEY=your-api-key
//
// Enable the daily reminder scheduler:
//
//	export COURIER_SCHEDULER_ENABLED=true
//	export COURIER_SCHEDULER_RECIPIENTS_GROUP=staff
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP listener stops
// accepting connections, in-flight requests get a 10s grace period, the hub
// closes all websocket clients, and the store is closed last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/courier/internal/api"
	"github.com/tomtom215/courier/internal/auth"
	"github.com/tomtom215/courier/internal/chat"
	"github.com/tomtom215/courier/internal/config"
	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/notify"
	"github.com/tomtom215/courier/internal/push"
	"github.com/tomtom215/courier/internal/scheduler"
	"github.com/tomtom215/courier/internal/session"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/supervisor"
	ws "github.com/tomtom215/courier/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting Courier")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	tokens, err := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create token manager")
	}

	hub := ws.NewHub()
	sessions := session.NewManager(tokens, hub)

	provider := buildPushProvider(cfg)
	cooldown := notify.NewCooldown(cfg.Chat.CooldownWindow)
	notifier := notify.NewService(st, hub, provider, cooldown)

	chatService := chat.NewService(st, hub, notifier)
	gateway := chat.NewGateway(chatService, sessions)

	handler := api.NewHandler(ctx, api.HandlerConfig{
		Sessions:       sessions,
		Gateway:        gateway,
		Hub:            hub,
		Notifications:  st,
		AdminUsername:  cfg.Security.AdminUsername,
		AdminPassword:  cfg.Security.AdminPassword,
		AllowedOrigins: cfg.Security.CORSOrigins,
	})
	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	}, tokens)
	server := api.NewServer(cfg.Server.Host, cfg.Server.Port, cfg.Server.Timeout, api.NewRouter(handler, middleware).Setup())

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddRealtimeService(hub)
	tree.AddAPIService(server)

	if cfg.Scheduler.Enabled {
		tree.AddJobService(buildScheduler(cfg, notifier, st))
	}

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("push", cfg.Push.Endpoint != "").
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("Supervision tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervision tree failed")
		os.Exit(1)
	}
	logging.Info().Msg("Courier stopped")
}

// openStore opens the configured store. An empty path selects the in-memory
// store, for development only.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Path == "" {
		logging.Warn().Msg("No database path configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.OpenBadger(cfg.Database.Path)
}

// buildPushProvider assembles the provider chain: HTTP provider behind the
// rate-limited circuit breaker, or a no-op when push is not configured.
func buildPushProvider(cfg *config.Config) push.Provider {
	if cfg.Push.Endpoint == "" {
		logging.Info().Msg("Push endpoint not configured, mobile push disabled")
		return push.NopProvider{}
	}
	inner := push.NewHTTPProvider(push.Config{
		Endpoint: cfg.Push.Endpoint,
		APIKey:   cfg.Push.APIKey,
		Timeout:  cfg.Push.Timeout,
	})
	return push.NewBreaker(inner, cfg.Push.RatePerSec, cfg.Push.Burst)
}

// buildScheduler wires the daily reminder jobs. Recipients are the members
// of the configured group, resolved at fire time.
func buildScheduler(cfg *config.Config, notifier *notify.Service, st store.Store) *scheduler.CronRunner {
	adapter := scheduler.NewAdapter(notifier, st)
	group := cfg.Scheduler.RecipientsGroup

	emit := func(typ models.NotificationType, title, template string) func(context.Context) {
		return func(ctx context.Context) {
			members, err := st.ListGroupMembers(ctx, group)
			if err != nil {
				logging.Error().Err(err).Str("group", group).Msg("Failed to resolve reminder recipients")
				return
			}
			sent, err := adapter.EmitBulk(ctx, members, typ, title, template)
			if err != nil {
				logging.Error().Err(err).Str("type", string(typ)).Msg("Reminder emission failed")
				return
			}
			logging.Info().Str("type", string(typ)).Int("sent", sent).Msg("Reminder emitted")
		}
	}

	return scheduler.NewCronRunner(
		scheduler.Job{
			Name: "attendance-reminder",
			Spec: cfg.Scheduler.AttendanceSpec,
			Run:  emit(models.NotificationAttendance, "Attendance reminder", "Good morning, {name}. Remember to check in today."),
		},
		scheduler.Job{
			Name: "scrum-reminder",
			Spec: cfg.Scheduler.ScrumSpec,
			Run:  emit(models.NotificationScrum, "Daily scrum", "{name}, the daily scrum starts soon."),
		},
	)
}
