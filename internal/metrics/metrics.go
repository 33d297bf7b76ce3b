// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package metrics defines the Prometheus metrics exposed by Courier.
// All metrics are registered via promauto at init time and served on the
// API router's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks the number of active websocket clients.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_connected_clients",
			Help: "Number of currently connected websocket clients",
		},
	)

	// MessagesSent counts chat messages accepted by the message channel.
	// Labels:
	//   - scope: "group", "private"
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_messages_sent_total",
			Help: "Total number of persisted chat messages",
		},
		[]string{"scope"},
	)

	// SendRejected counts rejected sends by reason.
	// Labels:
	//   - reason: "access_denied", "invalid_target", "empty_message", "persistence"
	SendRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_send_rejected_total",
			Help: "Total number of rejected chat sends",
		},
		[]string{"reason"},
	)

	// BroadcastsDropped counts room broadcasts dropped because a client's
	// send buffer was full (the client is evicted).
	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_broadcasts_dropped_total",
			Help: "Total number of per-client broadcast deliveries dropped due to slow clients",
		},
	)

	// NotificationsPersisted counts persisted notification records.
	// Labels:
	//   - type: notification type (chat, task, leave, ...)
	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_notifications_persisted_total",
			Help: "Total number of persisted notification records",
		},
		[]string{"type"},
	)

	// LiveEmits counts live-socket notification emissions.
	// Labels:
	//   - outcome: "delivered", "no_subscriber"
	LiveEmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_live_emits_total",
			Help: "Total number of live-socket notification emissions",
		},
		[]string{"outcome"},
	)

	// PushAttempts counts provider push attempts.
	// Labels:
	//   - outcome: "success", "failure", "token_invalid", "rejected"
	PushAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_push_attempts_total",
			Help: "Total number of push-provider delivery attempts",
		},
		[]string{"outcome"},
	)

	// CooldownSuppressed counts bulk pushes suppressed by the per-group
	// cooldown window.
	CooldownSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_cooldown_suppressed_total",
			Help: "Total number of bulk pushes suppressed by the cooldown throttle",
		},
	)

	// CircuitBreakerState reflects the push provider breaker state.
	// 0 = closed, 1 = half-open, 2 = open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courier_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// BulkEmitted counts scheduled bulk notification emissions.
	// Labels:
	//   - type: notification type
	//   - outcome: "sent", "skipped", "failed"
	BulkEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_bulk_emitted_total",
			Help: "Total number of per-recipient outcomes for scheduled bulk emissions",
		},
		[]string{"type", "outcome"},
	)
)
