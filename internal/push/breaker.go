// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/metrics"
)

const breakerName = "push-provider"

// Breaker wraps a Provider with circuit breaker and rate limiting. When the
// provider is down or slow, the breaker opens and sends fail fast instead of
// piling up blocked goroutines in the fan-out path.
//
// ErrTokenInvalid counts as a successful provider interaction: the provider
// answered, the token is just dead. Only transport and server failures trip
// the breaker.
type Breaker struct {
	inner   Provider
	cb      *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

// NewBreaker wraps the provider. ratePerSec bounds outgoing provider calls;
// zero or negative disables rate limiting.
func NewBreaker(inner Provider, ratePerSec float64, burst int) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrTokenInvalid)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("push provider circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	var limiter *rate.Limiter
	if ratePerSec > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}

	return &Breaker{inner: inner, cb: cb, limiter: limiter}
}

// Send delivers one push through the breaker.
func (b *Breaker) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	return b.execute(ctx, func() error {
		return b.inner.Send(ctx, token, title, body, data)
	})
}

// SendMulticast delivers one batch through the breaker.
func (b *Breaker) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	var invalid []string
	err := b.execute(ctx, func() error {
		var innerErr error
		invalid, innerErr = b.inner.SendMulticast(ctx, tokens, title, body, data)
		return innerErr
	})
	return invalid, err
}

func (b *Breaker) execute(ctx context.Context, fn func() error) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			metrics.PushAttempts.WithLabelValues("rejected").Inc()
			return fmt.Errorf("push rate limiter: %w", err)
		}
	}

	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})

	switch {
	case err == nil:
		metrics.PushAttempts.WithLabelValues("success").Inc()
		return nil
	case errors.Is(err, ErrTokenInvalid):
		metrics.PushAttempts.WithLabelValues("token_invalid").Inc()
		return err
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.PushAttempts.WithLabelValues("rejected").Inc()
		return fmt.Errorf("push provider unavailable: %w", err)
	default:
		metrics.PushAttempts.WithLabelValues("failure").Inc()
		return err
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
