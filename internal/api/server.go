// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/courier/internal/logging"
)

// shutdownGrace bounds how long in-flight requests may run after the
// lifecycle context is canceled.
const shutdownGrace = 10 * time.Second

// Server runs the HTTP listener as a suture-supervised service.
type Server struct {
	httpServer *http.Server
	listenAddr string

	mu      sync.Mutex
	boundTo string
}

// NewServer creates the HTTP server service.
func NewServer(host string, port int, timeout time.Duration, handler http.Handler) *Server {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  timeout,
			WriteTimeout: 0, // websocket connections write indefinitely
			IdleTimeout:  2 * timeout,
		},
		listenAddr: addr,
	}
}

// String names the service for supervision logs.
func (s *Server) String() string {
	return "http-server"
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

// Serve listens until the context is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}

	s.mu.Lock()
	s.boundTo = ln.Addr().String()
	s.mu.Unlock()

	logging.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		<-serveErr
		logging.Info().Msg("http server stopped")
		return ctx.Err()

	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	}
}
