package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
)

// DefaultChannelPrefix namespaces room channels in Redis.
const DefaultChannelPrefix = "huddle:room:"

// RedisPublisher publishes room messages on Redis pub/sub so every server
// instance can deliver them to its own websocket clients.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) EmitSystemMessage(ctx context.Context, room, text string) error {
	return p.Publish(ctx, SystemMessage(room, text))
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+msg.Room, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Room, err)
	}
	return nil
}

// Broadcaster delivers a message to local subscribers.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Relay forwards every room message published on Redis to a local
// Broadcaster until ctx is cancelled.
func Relay(ctx context.Context, client *redis.Client, prefix string, local Broadcaster, logger *slog.Logger) error {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	sub := client.PSubscribe(ctx, prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("dropping malformed relay message", "channel", m.Channel, "error", err)
				continue
			}
			if msg.Room == "" {
				msg.Room = strings.TrimPrefix(m.Channel, prefix)
			}
			local.Broadcast(msg)
		}
	}
}
