package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client represents a single WebSocket connection subscribed to one room.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	room   string
	userID int64
	send   chan []byte
	cancel context.CancelFunc
}

func NewClient(hub *Hub, conn *ws.Conn, room string, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		room:   room,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		cancel: func() {},
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel

	if err := c.hub.Register(c); err != nil {
		return err
	}
	defer c.hub.Unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		c.writePump(ctx)
	}()
	c.readPump(ctx)
	cancel()
	<-done
	return nil
}

// readPump discards incoming messages; clients post through the HTTP API.
// It returns on error (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
