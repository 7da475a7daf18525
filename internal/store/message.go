package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
)

type MessageStore struct {
	db database.Querier
}

func NewMessageStore(db database.Querier) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) WithTx(tx *database.Tx) *MessageStore {
	return &MessageStore{db: tx}
}

const messageCols = `id, context_type, context_id, sender_id, kind, content, created_at`

func scanMessage(sc scanner) (*model.Message, error) {
	var m model.Message
	var typ sql.NullString
	var ctxID, sender sql.NullInt64
	var kind string
	if err := sc.Scan(&m.ID, &typ, &ctxID, &sender, &kind, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Context = scanContext(typ, ctxID)
	m.SenderID = int64Ptr(sender)
	m.Kind = model.MessageKind(kind)
	return &m, nil
}

// Create stores a message. A nil senderID marks a system message.
func (s *MessageStore) Create(ctx context.Context, c model.Context, senderID *int64, kind model.MessageKind, content string, now time.Time) (*model.Message, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (context_type, context_id, sender_id, kind, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		string(c.Type()), c.ID(), nullableInt64(senderID), string(kind), content, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &model.Message{
		ID:        id,
		Context:   c,
		SenderID:  senderID,
		Kind:      kind,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// ListByContext returns up to limit messages of c older than beforeID
// (0 for the latest), newest first.
func (s *MessageStore) ListByContext(ctx context.Context, c model.Context, limit int, beforeID int64) ([]model.Message, error) {
	query := `SELECT ` + messageCols + ` FROM messages WHERE context_type = ? AND context_id = ?`
	args := []any{string(c.Type()), c.ID()}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountSentBy counts the user-authored messages sent by userID.
func (s *MessageStore) CountSentBy(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE sender_id = ? AND kind = ?`,
		userID, string(model.MessageUser),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
