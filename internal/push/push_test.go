// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package push

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/courier/internal/logging"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func TestHTTPProvider_Send(t *testing.T) {
	var gotAuth string
	var gotReq sendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, APIKey: "k3y"})
	err := p.Send(context.Background(), "tok-1", "Title", "Body", map[string]string{"kind": "chat"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAuth != "Bearer k3y" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if len(gotReq.Tokens) != 1 || gotReq.Tokens[0] != "tok-1" {
		t.Errorf("unexpected tokens %v", gotReq.Tokens)
	}
	if gotReq.Title != "Title" || gotReq.Body != "Body" {
		t.Errorf("unexpected payload %+v", gotReq)
	}
}

func TestHTTPProvider_TokenInvalid(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "410 gone",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusGone)
			},
		},
		{
			name: "invalid token list",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(sendResponse{InvalidTokens: []string{"tok-1"}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewHTTPProvider(Config{Endpoint: srv.URL})
			err := p.Send(context.Background(), "tok-1", "t", "b", nil)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestHTTPProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL})
	err := p.Send(context.Background(), "tok-1", "t", "b", nil)
	if err == nil || errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected a plain delivery error, got %v", err)
	}
}

func TestHTTPProvider_MulticastReportsInvalidTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sendResponse{InvalidTokens: []string{"dead"}})
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL})
	invalid, err := p.SendMulticast(context.Background(), []string{"dead", "live"}, "t", "b", nil)
	if err != nil {
		t.Fatalf("multicast must not fail on individual invalid tokens, got %v", err)
	}
	if len(invalid) != 1 || invalid[0] != "dead" {
		t.Errorf("expected the dead token reported back, got %v", invalid)
	}
}

func TestHTTPProvider_MulticastEmptyBatchIsNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL})
	if _, err := p.SendMulticast(context.Background(), nil, "t", "b", nil); err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("empty batch must not hit the provider")
	}
}

// failingProvider always fails with the configured error.
type failingProvider struct {
	err   error
	calls atomic.Int32
}

func (f *failingProvider) Send(context.Context, string, string, string, map[string]string) error {
	f.calls.Add(1)
	return f.err
}

func (f *failingProvider) SendMulticast(context.Context, []string, string, string, map[string]string) ([]string, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestBreaker_OpensOnRepeatedFailure(t *testing.T) {
	inner := &failingProvider{err: errors.New("connection refused")}
	b := NewBreaker(inner, 0, 0)

	for i := 0; i < 10; i++ {
		_ = b.Send(context.Background(), "tok", "t", "b", nil)
	}

	before := inner.calls.Load()
	err := b.Send(context.Background(), "tok", "t", "b", nil)
	if err == nil {
		t.Fatal("expected failure while breaker is open")
	}
	if inner.calls.Load() != before {
		t.Error("open breaker must fail fast without calling the provider")
	}
}

func TestBreaker_TokenInvalidDoesNotTrip(t *testing.T) {
	inner := &failingProvider{err: ErrTokenInvalid}
	b := NewBreaker(inner, 0, 0)

	for i := 0; i < 20; i++ {
		if err := b.Send(context.Background(), "tok", "t", "b", nil); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("call %d: expected ErrTokenInvalid, got %v", i, err)
		}
	}

	// Every call reached the provider; dead tokens are answered requests,
	// not provider outages.
	if got := inner.calls.Load(); got != 20 {
		t.Errorf("expected 20 provider calls, got %d", got)
	}
}

// reportingProvider succeeds and reports a fixed invalid-token list.
type reportingProvider struct {
	invalid []string
}

func (r *reportingProvider) Send(context.Context, string, string, string, map[string]string) error {
	return nil
}

func (r *reportingProvider) SendMulticast(context.Context, []string, string, string, map[string]string) ([]string, error) {
	return r.invalid, nil
}

func TestBreaker_MulticastPassesInvalidTokensThrough(t *testing.T) {
	b := NewBreaker(&reportingProvider{invalid: []string{"dead"}}, 0, 0)

	invalid, err := b.SendMulticast(context.Background(), []string{"dead", "live"}, "t", "b", nil)
	if err != nil {
		t.Fatalf("SendMulticast failed: %v", err)
	}
	if len(invalid) != 1 || invalid[0] != "dead" {
		t.Errorf("invalid token list must survive the breaker, got %v", invalid)
	}
}

func TestNopProvider(t *testing.T) {
	var p Provider = NopProvider{}
	if err := p.Send(context.Background(), "tok", "t", "b", nil); err != nil {
		t.Errorf("NopProvider.Send returned %v", err)
	}
	if invalid, err := p.SendMulticast(context.Background(), []string{"a"}, "t", "b", nil); err != nil || invalid != nil {
		t.Errorf("NopProvider.SendMulticast returned %v, %v", invalid, err)
	}
}
