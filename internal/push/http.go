// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/courier/internal/logging"
)

const defaultTimeout = 10 * time.Second

// Config holds the HTTP push provider settings.
type Config struct {
	// Endpoint is the provider's send URL.
	Endpoint string

	// APIKey authenticates requests via the Authorization header.
	APIKey string

	// Timeout bounds a single provider call. Zero means the default.
	Timeout time.Duration
}

// HTTPProvider delivers pushes by POSTing JSON to a provider endpoint.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
}

// NewHTTPProvider creates a provider client with a bounded request timeout.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// sendRequest is the provider wire format for both single and multicast
// sends.
type sendRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// sendResponse carries per-token failures from the provider.
type sendResponse struct {
	Error         string   `json:"error,omitempty"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
}

// Send delivers to a single token. A terminal token rejection maps to
// ErrTokenInvalid; everything else is a plain delivery error.
func (p *HTTPProvider) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	resp, err := p.post(ctx, sendRequest{
		Tokens: []string{token},
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return err
	}
	if len(resp.InvalidTokens) > 0 {
		return ErrTokenInvalid
	}
	return nil
}

// SendMulticast delivers to many tokens in one call. Invalid tokens in the
// batch do not fail the call; they are returned so the caller can run the
// same token invalidation the single-send path triggers via ErrTokenInvalid.
func (p *HTTPProvider) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	resp, err := p.post(ctx, sendRequest{
		Tokens: tokens,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return nil, err
	}
	if n := len(resp.InvalidTokens); n > 0 {
		logging.Warn().Int("invalid_tokens", n).Int("batch_size", len(tokens)).Msg("multicast batch contained invalid tokens")
	}
	return resp.InvalidTokens, nil
}

func (p *HTTPProvider) post(ctx context.Context, payload sendRequest) (*sendResponse, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read push response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound || httpResp.StatusCode == http.StatusGone:
		// The provider reports unregistered tokens at the HTTP layer.
		return nil, ErrTokenInvalid
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("push provider returned status %d: %s", httpResp.StatusCode, truncate(raw, 256))
	}

	var resp sendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode push response: %w", err)
		}
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("push provider error: %s", resp.Error)
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
