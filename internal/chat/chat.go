// Package chat stores and fans out messages posted in a group or activity,
// enforcing the moderation chat gate on every send.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/huddle/internal/achievement"
	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/events"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/moderation"
	"github.com/dukerupert/huddle/internal/sideeffect"
	"github.com/dukerupert/huddle/internal/store"
)

const (
	MaxMessageLen       = 2000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Triggers receives user actions that may unlock achievements.
type Triggers interface {
	Fire(ctx context.Context, event achievement.Event, userID int64)
}

type Service struct {
	db          *database.DB
	memberships *store.MembershipStore
	messages    *store.MessageStore
	publisher   events.Publisher
	triggers    Triggers
	runner      *sideeffect.Runner
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(db *database.DB, publisher events.Publisher, triggers Triggers, runner *sideeffect.Runner, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		memberships: store.NewMembershipStore(db),
		messages:    store.NewMessageStore(db),
		publisher:   publisher,
		triggers:    triggers,
		runner:      runner,
		metrics:     m,
		logger:      logger.With("component", "chat"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Send posts content to c on behalf of senderID. The membership is checked
// on every call, so a ban takes effect on the next message.
func (s *Service) Send(ctx context.Context, senderID int64, c model.Context, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case c.IsZero():
		return nil, apperr.Validation("context is required")
	case content == "":
		return nil, apperr.Validation("content is required")
	case utf8.RuneCountInString(content) > MaxMessageLen:
		return nil, apperr.Validation("content must be at most %d characters", MaxMessageLen)
	}

	var msg *model.Message
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		ms := s.memberships.WithTx(tx)

		m, err := ms.GetForUpdate(ctx, senderID, c)
		if err != nil {
			return err
		}
		if m == nil || !m.IsActive {
			return apperr.Forbidden("not a member of %s", c)
		}
		if !moderation.CanChat(m) {
			s.metrics.ChatRejected()
			return apperr.Forbidden("you are banned from chatting in %s", c)
		}

		if err := ms.TouchChatActivity(ctx, m.ID, now); err != nil {
			return err
		}
		msg, err = s.messages.WithTx(tx).Create(ctx, c, &senderID, model.MessageUser, content, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MessageSent(string(model.MessageUser))
	s.runner.Run(ctx, "notify: new message", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.Message{
			Type:    events.TypeNewMessage,
			Room:    c.Room(),
			Content: msg.Content,
			Data:    msg,
			SentAt:  msg.CreatedAt,
		})
	})
	if s.triggers != nil {
		s.triggers.Fire(ctx, achievement.EventMessageSent, senderID)
	}
	return msg, nil
}

// CanRead reports whether userID may read c's messages. Banned members
// keep read access while their membership is active.
func (s *Service) CanRead(ctx context.Context, userID int64, c model.Context) (bool, error) {
	m, err := s.memberships.Get(ctx, userID, c)
	if err != nil {
		return false, err
	}
	return m != nil && m.IsActive, nil
}

// History returns a page of messages in c, newest first. Only active
// members may read.
func (s *Service) History(ctx context.Context, viewerID int64, c model.Context, limit int, beforeID int64) ([]model.Message, error) {
	if c.IsZero() {
		return nil, apperr.Validation("context is required")
	}
	ok, err := s.CanRead(ctx, viewerID, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("not a member of %s", c)
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	list, err := s.messages.ListByContext(ctx, c, limit, beforeID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Message{}
	}
	return list, nil
}
