// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package push delivers mobile push notifications through an external
// provider. Delivery is best-effort; the fan-out service treats every error
// from this package as a logged, swallowed delivery failure, with one
// exception: ErrTokenInvalid signals that the recipient's device token must
// be invalidated.
package push

import (
	"context"
	"errors"
)

// ErrTokenInvalid is returned when the provider terminally rejects a device
// token. The token owner's record must be invalidated; retrying with the
// same token will never succeed.
var ErrTokenInvalid = errors.New("push token invalid")

// Provider is the push delivery contract.
type Provider interface {
	// Send delivers one notification to a single device token.
	Send(ctx context.Context, token, title, body string, data map[string]string) error

	// SendMulticast delivers one notification to many device tokens in a
	// single provider call. Individual invalid tokens do not fail the
	// batch; they are returned so the caller can invalidate each owner's
	// record.
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (invalid []string, err error)
}

// NopProvider discards every push. Used when no provider is configured.
type NopProvider struct{}

func (NopProvider) Send(_ context.Context, _, _, _ string, _ map[string]string) error {
	return nil
}

func (NopProvider) SendMulticast(_ context.Context, _ []string, _, _ string, _ map[string]string) ([]string, error) {
	return nil, nil
}
