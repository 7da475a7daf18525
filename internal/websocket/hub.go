// Package websocket delivers room notifications to connected clients. Each
// connection subscribes to exactly one room, a group or activity chat.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/huddle/internal/events"
	"github.com/dukerupert/huddle/internal/metrics"
)

// Hub maintains the set of active clients per room and broadcasts messages.
// It implements events.Publisher for single-instance deployments and
// events.Broadcaster as the local end of the Redis relay.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	closed  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
		metrics: m,
	}
}

// Register adds a client to its room. It fails once the hub is closed.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("hub closed")
	}
	room := h.rooms[c.room]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[c.room] = room
	}
	room[c] = struct{}{}
	h.metrics.ConnectionOpened()
	return nil
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.send)
	h.metrics.ConnectionClosed()
}

// Broadcast sends msg to every client in msg.Room. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(msg events.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err, "type", msg.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[msg.Room] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping message for slow client", "room", msg.Room, "user_id", c.userID)
		}
	}
}

func (h *Hub) Publish(_ context.Context, msg events.Message) error {
	if msg.Room == "" {
		return fmt.Errorf("publish %s: empty room", msg.Type)
	}
	h.Broadcast(msg)
	return nil
}

func (h *Hub) EmitSystemMessage(ctx context.Context, room, text string) error {
	return h.Publish(ctx, events.SystemMessage(room, text))
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.cancel()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomSize returns the number of clients subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
