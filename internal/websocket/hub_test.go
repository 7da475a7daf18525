package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"go.uber.org/goleak"

	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/events"
	"github.com/dukerupert/huddle/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, room string) *Client {
	return NewClient(hub, nil, room, 1)
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	c1 := mockClient(hub, "group_1")
	c2 := mockClient(hub, "activity_2")

	if err := hub.Register(c1); err != nil {
		t.Fatal(err)
	}
	if err := hub.Register(c2); err != nil {
		t.Fatal(err)
	}
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.RoomSize("group_1"); got != 0 {
		t.Fatalf("expected empty room after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastOnlyReachesRoom(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	in1 := mockClient(hub, "group_1")
	in2 := mockClient(hub, "group_1")
	out := mockClient(hub, "group_2")
	for _, c := range []*Client{in1, in2, out} {
		hub.Register(c)
	}

	if err := hub.EmitSystemMessage(context.Background(), "group_1", "alice received a warning (1/3)."); err != nil {
		t.Fatalf("EmitSystemMessage: %v", err)
	}

	for _, c := range []*Client{in1, in2} {
		select {
		case data := <-c.send:
			var got events.Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != events.TypeSystemMessage || got.Room != "group_1" {
				t.Errorf("got %+v", got)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}
	select {
	case <-out.send:
		t.Error("client in another room received the message")
	default:
	}
}

func TestPublishRequiresRoom(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	if err := hub.Publish(context.Background(), events.Message{Type: events.TypeNewMessage}); err == nil {
		t.Error("expected error for empty room")
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	c := mockClient(hub, "group_1")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(events.Message{Type: "fill", Room: "group_1"})
	}
	// This should drop the message, not panic or block
	hub.Broadcast(events.Message{Type: "dropped", Room: "group_1"})

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
}

func TestRegisterAfterClose(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	hub.Close()
	if err := hub.Register(mockClient(hub, "group_1")); err == nil {
		t.Error("expected register to fail on a closed hub")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "group_1")
			hub.Register(c)
			hub.Broadcast(events.Message{Type: "concurrent", Room: "group_1"})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

type allowRooms map[string]bool

func (a allowRooms) CanRead(_ context.Context, _ int64, c model.Context) (bool, error) {
	return a[c.Room()], nil
}

func withUser(id int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: id, Role: auth.RoleUser})))
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleWebSocketEndToEnd(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	access := allowRooms{"group_7": true}
	srv := httptest.NewServer(withUser(3, HandleWebSocket(hub, access, nil, testLogger())))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := ws.Dial(ctx, wsURL+"?room=group_8", nil)
	if err == nil {
		t.Fatal("expected forbidden room to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	_, resp, err = ws.Dial(ctx, wsURL+"?room=bogus", nil)
	if err == nil {
		t.Fatal("expected malformed room to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	conn, _, err := ws.Dial(ctx, wsURL+"?room=group_7", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize("group_7") == 1 })

	if err := hub.Publish(ctx, events.Message{Type: events.TypeNewMessage, Room: "group_7", Content: "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got events.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content != "hi" {
		t.Errorf("content = %q, want hi", got.Content)
	}

	conn.Close(ws.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	srv := httptest.NewServer(withUser(3, HandleWebSocket(hub, allowRooms{"activity_1": true}, nil, testLogger())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?room=activity_1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected read to fail after hub close")
	}
}
