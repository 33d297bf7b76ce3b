// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package websocket

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/courier/internal/logging"
	"github.com/tomtom215/courier/internal/room"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// setupHub starts a hub loop that stops with the test.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

// testClient creates a hub-only client with no underlying connection; tests
// read delivered frames straight off the send channel.
func testClient(hub *Hub, userID string) *Client {
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		send:   make(chan Frame, 256),
		done:   make(chan struct{}),
		UserID: userID,
		ConnID: userID + "-conn",
	}
}

// recvFrame waits briefly for one frame.
func recvFrame(t *testing.T, c *Client) (Frame, bool) {
	t.Helper()
	select {
	case f, ok := <-c.send:
		return f, ok
	case <-time.After(200 * time.Millisecond):
		return Frame{}, false
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := setupHub(t)

	a := testClient(hub, "a")
	hub.Register(a)
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister(a)
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if !a.closed() {
		t.Error("client should be signaled closed after unregister")
	}
}

func TestHub_BroadcastReachesOnlySubscribers(t *testing.T) {
	hub := setupHub(t)
	key := room.Group("g1")

	a := testClient(hub, "a")
	b := testClient(hub, "b")
	c := testClient(hub, "c")
	for _, cl := range []*Client{a, b, c} {
		hub.Register(cl)
	}
	hub.Subscribe(a, key)
	hub.Subscribe(b, key)
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast(key, Frame{Type: FrameTypeReceiveMessage, Data: "hello"})
	time.Sleep(20 * time.Millisecond)

	for _, cl := range []*Client{a, b} {
		f, ok := recvFrame(t, cl)
		if !ok {
			t.Fatalf("client %s did not receive broadcast", cl.UserID)
		}
		if f.Type != FrameTypeReceiveMessage {
			t.Errorf("client %s got frame type %q", cl.UserID, f.Type)
		}
	}

	select {
	case f := <-c.send:
		t.Errorf("non-subscriber received frame %+v", f)
	default:
	}
}

func TestHub_BroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub := setupHub(t)

	// Personal rooms are always addressable even with zero sessions.
	hub.Broadcast(room.Personal("ghost"), Frame{Type: FrameTypeNewNotification})
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
}

func TestHub_UnregisterRemovesAllSubscriptions(t *testing.T) {
	hub := setupHub(t)
	g := room.Group("g1")
	p := room.Personal("a")

	a := testClient(hub, "a")
	hub.Register(a)
	hub.Subscribe(a, g)
	hub.Subscribe(a, p)
	time.Sleep(20 * time.Millisecond)

	if hub.RoomSize(g) != 1 || hub.RoomSize(p) != 1 {
		t.Fatal("expected subscriptions to be in place")
	}

	hub.Unregister(a)
	time.Sleep(20 * time.Millisecond)

	if hub.RoomSize(g) != 0 || hub.RoomSize(p) != 0 {
		t.Error("unregister must drop all room subscriptions")
	}

	// No frame may be delivered after the unregister was processed.
	hub.Broadcast(g, Frame{Type: FrameTypeReceiveMessage})
	time.Sleep(20 * time.Millisecond)
}

func TestHub_MultiDeviceIsolation(t *testing.T) {
	hub := setupHub(t)
	inbox := room.Personal("a")

	phone := testClient(hub, "a")
	laptop := testClient(hub, "a")
	hub.Register(phone)
	hub.Register(laptop)
	hub.Subscribe(phone, inbox)
	hub.Subscribe(laptop, inbox)
	time.Sleep(20 * time.Millisecond)

	// Disconnecting one device must not affect the other connection.
	hub.Unregister(phone)
	time.Sleep(20 * time.Millisecond)

	if hub.RoomSize(inbox) != 1 {
		t.Fatalf("expected laptop still subscribed, room size %d", hub.RoomSize(inbox))
	}

	hub.Broadcast(inbox, Frame{Type: FrameTypeNewNotification})
	if _, ok := recvFrame(t, laptop); !ok {
		t.Error("remaining device did not receive broadcast")
	}
}

func TestHub_SlowClientEvicted(t *testing.T) {
	hub := setupHub(t)
	key := room.Group("g1")

	slow := testClient(hub, "slow")
	slow.send = make(chan Frame) // unbuffered and never drained
	fast := testClient(hub, "fast")

	hub.Register(slow)
	hub.Register(fast)
	hub.Subscribe(slow, key)
	hub.Subscribe(fast, key)
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast(key, Frame{Type: FrameTypeReceiveMessage, Data: "one"})
	time.Sleep(20 * time.Millisecond)

	// The stalled client is evicted; the fast client still gets the frame.
	if hub.ClientCount() != 1 {
		t.Errorf("expected slow client evicted, count %d", hub.ClientCount())
	}
	if _, ok := recvFrame(t, fast); !ok {
		t.Error("fast client should receive broadcast despite slow peer")
	}
}

func TestHub_DeliveryOrderWithinRoom(t *testing.T) {
	hub := setupHub(t)
	key := room.Group("g1")

	a := testClient(hub, "a")
	hub.Register(a)
	hub.Subscribe(a, key)
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 10; i++ {
		hub.Broadcast(key, Frame{Type: FrameTypeReceiveMessage, Data: i})
	}

	for i := 0; i < 10; i++ {
		f, ok := recvFrame(t, a)
		if !ok {
			t.Fatalf("missing frame %d", i)
		}
		if f.Data.(int) != i {
			t.Fatalf("expected frame %d, got %v", i, f.Data)
		}
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	a := testClient(hub, "a")
	hub.Register(a)
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done

	if !a.closed() {
		t.Error("client should be signaled closed on shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", hub.ClientCount())
	}

	// Frames queued by a handler that raced the shutdown are dropped, not a
	// panic on a closed channel.
	a.Ack("send_message", nil)
}

func TestHub_AckAfterEvictionDoesNotPanic(t *testing.T) {
	hub := setupHub(t)
	key := room.Group("g1")

	stalled := testClient(hub, "stalled")
	stalled.send = make(chan Frame) // unbuffered and never drained
	hub.Register(stalled)
	hub.Subscribe(stalled, key)
	time.Sleep(20 * time.Millisecond)

	// The broadcast finds the buffer full and evicts the client.
	hub.Broadcast(key, Frame{Type: FrameTypeReceiveMessage, Data: "one"})
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected the stalled client evicted, count %d", hub.ClientCount())
	}
	if !stalled.closed() {
		t.Fatal("evicted client should be signaled closed")
	}

	// The read pump may still be mid-frame when the eviction lands; its
	// acks must be dropped, never sent on a dead channel.
	stalled.Ack("send_message", nil)
	stalled.Nack("send_message", "internal_error", "boom")
	stalled.Send(Frame{Type: FrameTypeReceiveMessage})
}
