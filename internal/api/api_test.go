// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/courier/internal/auth"
	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/session"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/websocket"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testUsername = "admin"
	testPassword = "correct-horse-battery-staple"
)

type testEnv struct {
	ts       *httptest.Server
	hub      *websocket.Hub
	st       *store.MemoryStore
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewManager(testSecret, time.Hour)
	require.NoError(t, err)

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()

	st := store.NewMemoryStore()
	sessions := session.NewManager(tokens, hub)

	handler := NewHandler(ctx, HandlerConfig{
		Sessions:       sessions,
		Hub:            hub,
		Notifications:  st,
		AdminUsername:  testUsername,
		AdminPassword:  testPassword,
		AllowedOrigins: []string{"*"},
	})
	mw := NewMiddleware(&MiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	}, tokens)

	ts := httptest.NewServer(NewRouter(handler, mw).Setup())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testEnv{ts: ts, hub: hub, st: st, sessions: sessions}
}

func (e *testEnv) userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.sessions.IssueToken(userID, userID, "member")
	require.NoError(t, err)
	return token
}

func decodeResponse(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) post(t *testing.T, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/v1/auth/login", "", map[string]string{
		"username": testUsername,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	require.True(t, out.Success)
	data := out.Data.(map[string]interface{})
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)

	// The issued token must be accepted by protected endpoints.
	listResp := env.get(t, "/api/v1/notifications", token)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/v1/auth/login", "", map[string]string{
		"username": testUsername,
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	out := decodeResponse(t, resp)
	require.False(t, out.Success)
	require.Equal(t, "invalid_credentials", out.Error.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/v1/auth/login", "", map[string]string{"username": testUsername})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := decodeResponse(t, resp)
	require.Equal(t, "validation_error", out.Error.Code)
}

func TestNotifications_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/v1/notifications", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.post(t, "/api/v1/notifications/some-id/read", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotifications_ListScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, userID := range []string{"alice", "alice", "bob"} {
		n := &models.Notification{UserID: userID, Type: models.NotificationTask, Title: "Task due", Message: "m"}
		require.NoError(t, env.st.InsertNotification(ctx, n))
	}

	resp := env.get(t, "/api/v1/notifications?limit=10", env.userToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	data := out.Data.(map[string]interface{})
	require.Equal(t, float64(2), data["count"])
}

func TestNotifications_MarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.Notification{UserID: "alice", Type: models.NotificationChat, Title: "New message", Message: "m"}
	require.NoError(t, env.st.InsertNotification(ctx, n))

	token := env.userToken(t, "alice")

	resp := env.post(t, "/api/v1/notifications/"+n.ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	require.Equal(t, map[string]interface{}{"updated": true}, out.Data)

	// Second transition is a no-op, not an error.
	resp = env.post(t, "/api/v1/notifications/"+n.ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decodeResponse(t, resp)
	require.Equal(t, map[string]interface{}{"updated": false}, out.Data)
}

func TestNotifications_MarkRead_OtherUsersRecordIs404(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.Notification{UserID: "alice", Type: models.NotificationChat, Title: "t", Message: "m"}
	require.NoError(t, env.st.InsertNotification(ctx, n))

	resp := env.post(t, "/api/v1/notifications/"+n.ID+"/read", env.userToken(t, "mallory"), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	respMissing := env.post(t, "/api/v1/notifications/no-such-id/read", env.userToken(t, "mallory"), nil)
	require.Equal(t, http.StatusNotFound, respMissing.StatusCode)
	respMissing.Body.Close()
	resp.Body.Close()
}

func TestWebSocket_RejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/ws", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, env.hub.ClientCount())
}

func TestWebSocket_ConnectWithQueryToken(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws?token=" + env.userToken(t, "alice")
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "client never registered with the hub")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	require.True(t, out.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/metrics", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ServesAndStops(t *testing.T) {
	srv := NewServer("127.0.0.1", 0, 5*time.Second, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		return addr != ""
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
