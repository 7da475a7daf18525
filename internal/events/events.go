// Package events defines the notification boundary between the engine and
// whatever delivers realtime messages to clients.
package events

import (
	"context"
	"sync"
	"time"
)

// Message types delivered to room subscribers.
const (
	TypeSystemMessage = "system_message"
	TypeNewMessage    = "new_message"
	TypeWarning       = "warning_issued"
	TypeBanned        = "user_banned"
	TypeUnbanned      = "user_unbanned"
	TypeAchievement   = "achievement_unlocked"
)

type Message struct {
	Type    string    `json:"type"`
	Room    string    `json:"room"`
	Content string    `json:"content,omitempty"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Publisher delivers notifications to a room. Implementations must be safe
// for concurrent use. Callers treat failures as non-fatal.
type Publisher interface {
	EmitSystemMessage(ctx context.Context, room, text string) error
	Publish(ctx context.Context, msg Message) error
}

// SystemMessage builds the message EmitSystemMessage sends.
func SystemMessage(room, text string) Message {
	return Message{Type: TypeSystemMessage, Room: room, Content: text, SentAt: time.Now().UTC()}
}

// Noop discards everything.
type Noop struct{}

func (Noop) EmitSystemMessage(context.Context, string, string) error { return nil }
func (Noop) Publish(context.Context, Message) error                  { return nil }

// Recorder keeps every message in memory. Useful in tests and for local
// debugging.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from every call after recording.
	Err error
}

func (r *Recorder) EmitSystemMessage(ctx context.Context, room, text string) error {
	return r.Publish(ctx, SystemMessage(room, text))
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of what has been recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OfType filters recorded messages by type.
func (r *Recorder) OfType(typ string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// Fanout publishes to several publishers, returning the first error.
type Fanout []Publisher

func (f Fanout) EmitSystemMessage(ctx context.Context, room, text string) error {
	return f.Publish(ctx, SystemMessage(room, text))
}

func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
