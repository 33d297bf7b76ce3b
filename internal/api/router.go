// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP routes.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router over the given handler and middleware factory.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	return &Router{handler: handler, middleware: middleware}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(router.middleware.CORS()) // global so OPTIONS preflight is handled

	// Login carries the strictest rate limit: brute force prevention.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(router.middleware.RateLimitCustom(RateLimitLogin)).Post("/login", router.handler.Login)
	})

	// Notification inbox. All routes require a valid bearer token.
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(router.middleware.Authenticate)

		r.Get("/", router.handler.ListNotifications)
		r.Post("/{id}/read", router.handler.MarkNotificationRead)
	})

	// Websocket upgrade. The handler authenticates the token itself, before
	// the upgrade, so the route carries only the connection rate limit.
	r.With(router.middleware.RateLimitCustom(RateLimitWebSocket)).Get("/ws", router.handler.WebSocket)

	// Observability.
	r.With(router.middleware.RateLimitCustom(RateLimitHealth)).Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
