// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/models"
	"github.com/tomtom215/courier/internal/notify"
	"github.com/tomtom215/courier/internal/room"
	"github.com/tomtom215/courier/internal/store"
	"github.com/tomtom215/courier/internal/websocket"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// fakeHub records subscriptions and broadcasts.
type fakeHub struct {
	mu         sync.Mutex
	subs       []room.Key
	broadcasts []fakeBroadcast
}

type fakeBroadcast struct {
	key   room.Key
	frame websocket.Frame
}

func (f *fakeHub) Subscribe(_ *websocket.Client, key room.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, key)
}

func (f *fakeHub) Broadcast(key room.Key, frame websocket.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fakeBroadcast{key: key, frame: frame})
}

func (f *fakeHub) allBroadcasts() []fakeBroadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeBroadcast(nil), f.broadcasts...)
}

func (f *fakeHub) allSubs() []room.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]room.Key(nil), f.subs...)
}

// fakeNotifier records fan-out calls.
type fakeNotifier struct {
	mu        sync.Mutex
	requests  []notify.Request
	bulkCalls []bulkCall
	notifyErr error
}

type bulkCall struct {
	groupKey   string
	recipients []string
}

func (f *fakeNotifier) Notify(_ context.Context, req notify.Request) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.notifyErr != nil {
		return nil, f.notifyErr
	}
	return &models.Notification{UserID: req.UserID, Type: req.Type}, nil
}

func (f *fakeNotifier) NotifyGroup(_ context.Context, groupKey string, userIDs []string, _, _ string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, bulkCall{groupKey: groupKey, recipients: append([]string(nil), userIDs...)})
	return nil
}

func (f *fakeNotifier) allRequests() []notify.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Request(nil), f.requests...)
}

func (f *fakeNotifier) allBulk() []bulkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bulkCall(nil), f.bulkCalls...)
}

func setupChat(t *testing.T) (*Service, *store.MemoryStore, *fakeHub, *fakeNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	return NewService(st, hub, notifier), st, hub, notifier
}

func seedMember(t *testing.T, st *store.MemoryStore, groupID, userID, name string) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertUser(ctx, &models.User{ID: userID, DisplayName: name}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := st.AddMember(ctx, groupID, userID); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func chatClient(userID string) *websocket.Client {
	return websocket.NewClient(nil, nil, userID, userID+"-conn", nil)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinGroup(t *testing.T) {
	svc, st, hub, _ := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	key, err := svc.JoinGroup(context.Background(), chatClient("a"), "g1")
	if err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	if key.String() != "group:g1" {
		t.Errorf("unexpected room key %q", key)
	}
	if subs := hub.allSubs(); len(subs) != 1 || subs[0] != key {
		t.Errorf("expected one subscription to %v, got %v", key, subs)
	}
}

func TestJoinGroup_DenialIsIndistinguishable(t *testing.T) {
	svc, st, hub, _ := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	tests := []struct {
		name    string
		userID  string
		groupID string
	}{
		{"non-member", "stranger", "g1"},
		{"missing group", "a", "no-such-group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.JoinGroup(context.Background(), chatClient(tt.userID), tt.groupID)
			if !errors.Is(err, ErrAccessDenied) {
				t.Errorf("expected ErrAccessDenied, got %v", err)
			}
		})
	}

	if len(hub.allSubs()) != 0 {
		t.Error("denied joins must not subscribe")
	}
}

func TestJoinPrivate_DeterministicKey(t *testing.T) {
	svc, st, _, _ := setupChat(t)
	seedMember(t, st, "g1", "5", "Eve")
	seedMember(t, st, "g1", "9", "Nina")

	fromFive, err := svc.JoinPrivate(context.Background(), chatClient("5"), "9")
	if err != nil {
		t.Fatalf("JoinPrivate from 5 failed: %v", err)
	}
	fromNine, err := svc.JoinPrivate(context.Background(), chatClient("9"), "5")
	if err != nil {
		t.Fatalf("JoinPrivate from 9 failed: %v", err)
	}

	if fromFive != fromNine {
		t.Errorf("keys differ: %v vs %v", fromFive, fromNine)
	}
	if fromFive.String() != "private:5-9" {
		t.Errorf("unexpected key %q", fromFive)
	}
}

func TestJoinPrivate_InvalidTarget(t *testing.T) {
	svc, st, _, _ := setupChat(t)
	seedMember(t, st, "g1", "5", "Eve")

	tests := []struct {
		name   string
		target string
	}{
		{"self", "5"},
		{"unknown user", "ghost"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.JoinPrivate(context.Background(), chatClient("5"), tt.target)
			if !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("expected ErrInvalidTarget, got %v", err)
			}
		})
	}
}

func TestSendGroupMessage_FullPath(t *testing.T) {
	svc, st, hub, notifier := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")
	seedMember(t, st, "g1", "b", "Bob")
	seedMember(t, st, "g1", "c", "Cara")

	msg, err := svc.SendGroupMessage(context.Background(), "a", "g1", "hello", models.MessageKindText, "", "")
	if err != nil {
		t.Fatalf("SendGroupMessage failed: %v", err)
	}

	if msg.SenderID != "a" || msg.Content != "hello" || msg.GroupID != "g1" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.SenderName != "Alice" {
		t.Errorf("expected enriched sender name, got %q", msg.SenderName)
	}
	if msg.ID == "" || msg.Seq == 0 {
		t.Errorf("expected store-assigned ID and Seq, got %+v", msg)
	}

	rows := st.Messages()
	if len(rows) != 1 || rows[0].SenderID != "a" {
		t.Fatalf("expected one persisted row with senderID a, got %+v", rows)
	}

	// Exactly one receive-message broadcast to group:g1.
	bcs := hub.allBroadcasts()
	if len(bcs) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(bcs))
	}
	if bcs[0].key != room.Group("g1") || bcs[0].frame.Type != websocket.FrameTypeReceiveMessage {
		t.Errorf("unexpected broadcast %+v", bcs[0])
	}

	// B and C each get a persisted chat notification; push is deferred to
	// the single bulk call.
	waitFor(t, "per-member fan-out", func() bool { return len(notifier.allRequests()) == 2 })
	for _, req := range notifier.allRequests() {
		if req.UserID != "b" && req.UserID != "c" {
			t.Errorf("unexpected recipient %q", req.UserID)
		}
		if req.Type != models.NotificationChat || !req.SuppressPush || req.RelatedID != msg.ID {
			t.Errorf("unexpected request %+v", req)
		}
	}

	waitFor(t, "bulk push", func() bool { return len(notifier.allBulk()) == 1 })
	bulk := notifier.allBulk()[0]
	if bulk.groupKey != "group:g1" || len(bulk.recipients) != 2 {
		t.Errorf("unexpected bulk call %+v", bulk)
	}
}

func TestSendGroupMessage_NonMemberDenied(t *testing.T) {
	svc, st, hub, notifier := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	_, err := svc.SendGroupMessage(context.Background(), "stranger", "g1", "hi", models.MessageKindText, "", "")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	if len(st.Messages()) != 0 {
		t.Error("denied send must not persist")
	}
	if len(hub.allBroadcasts()) != 0 || len(notifier.allRequests()) != 0 {
		t.Error("denied send must not broadcast or fan out")
	}
}

func TestSendGroupMessage_EmptyAfterTrim(t *testing.T) {
	svc, st, hub, _ := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	_, err := svc.SendGroupMessage(context.Background(), "a", "g1", "   \n\t  ", models.MessageKindText, "", "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(st.Messages()) != 0 || len(hub.allBroadcasts()) != 0 {
		t.Error("empty message must leave no record and no broadcast")
	}
}

func TestSendGroupMessage_FileCaption(t *testing.T) {
	svc, st, _, _ := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	msg, err := svc.SendGroupMessage(context.Background(), "a", "g1", "", models.MessageKindFile, "https://files/1", "report.pdf")
	if err != nil {
		t.Fatalf("file send failed: %v", err)
	}
	if msg.Content != "Sent a file: report.pdf" {
		t.Errorf("expected synthesized caption, got %q", msg.Content)
	}
	if msg.FileURL != "https://files/1" || msg.FileName != "report.pdf" {
		t.Errorf("file fields not carried: %+v", msg)
	}

	// A file with neither caption nor name is still an empty message.
	_, err = svc.SendGroupMessage(context.Background(), "a", "g1", "", models.MessageKindFile, "", "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSendGroupMessage_BoundsContent(t *testing.T) {
	svc, st, _, _ := setupChat(t)
	seedMember(t, st, "g1", "a", "Alice")

	msg, err := svc.SendGroupMessage(context.Background(), "a", "g1",
		strings.Repeat("x", models.MaxMessageRunes+100), models.MessageKindText, "", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := len([]rune(msg.Content)); got != models.MaxMessageRunes {
		t.Errorf("content length %d, want %d", got, models.MaxMessageRunes)
	}
}

func TestSendPrivateMessage_DualDelivery(t *testing.T) {
	svc, st, hub, notifier := setupChat(t)
	seedMember(t, st, "g1", "5", "Eve")
	seedMember(t, st, "g1", "9", "Nina")

	msg, err := svc.SendPrivateMessage(context.Background(), "5", "9", "psst", models.MessageKindText, "", "")
	if err != nil {
		t.Fatalf("SendPrivateMessage failed: %v", err)
	}
	if msg.ReceiverID != "9" || msg.SenderID != "5" || msg.GroupID != "" {
		t.Errorf("unexpected message %+v", msg)
	}

	// Both delivery paths fire: the deterministic private room and the
	// receiver's personal inbox.
	bcs := hub.allBroadcasts()
	if len(bcs) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(bcs))
	}
	keys := map[room.Key]bool{bcs[0].key: true, bcs[1].key: true}
	if !keys[room.Private("5", "9")] || !keys[room.Personal("9")] {
		t.Errorf("unexpected delivery rooms %v", keys)
	}
	for _, bc := range bcs {
		if bc.frame.Type != websocket.FrameTypeReceivePrivate {
			t.Errorf("unexpected frame type %q", bc.frame.Type)
		}
	}

	// The receiver's notification carries a push (not suppressed).
	waitFor(t, "private fan-out", func() bool { return len(notifier.allRequests()) == 1 })
	req := notifier.allRequests()[0]
	if req.UserID != "9" || req.Type != models.NotificationChat || req.SuppressPush {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestSendPrivateMessage_InvalidTarget(t *testing.T) {
	svc, st, hub, _ := setupChat(t)
	seedMember(t, st, "g1", "5", "Eve")

	for _, target := range []string{"5", "ghost", ""} {
		_, err := svc.SendPrivateMessage(context.Background(), "5", target, "hi", models.MessageKindText, "", "")
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("target %q: expected ErrInvalidTarget, got %v", target, err)
		}
	}
	if len(st.Messages()) != 0 || len(hub.allBroadcasts()) != 0 {
		t.Error("invalid targets must leave no record and no broadcast")
	}
}

func TestSendGroupMessage_FanOutFailureIsolated(t *testing.T) {
	svc, st, hub, notifier := setupChat(t)
	notifier.notifyErr = errors.New("notification store down")
	seedMember(t, st, "g1", "a", "Alice")
	seedMember(t, st, "g1", "b", "Bob")

	msg, err := svc.SendGroupMessage(context.Background(), "a", "g1", "hello", models.MessageKindText, "", "")
	if err != nil {
		t.Fatalf("fan-out failure must not fail the send, got %v", err)
	}
	if msg.ID == "" || len(hub.allBroadcasts()) != 1 {
		t.Error("message must still be persisted and broadcast")
	}

	// The bulk push still goes out after per-member failures.
	waitFor(t, "bulk push", func() bool { return len(notifier.allBulk()) == 1 })
}
