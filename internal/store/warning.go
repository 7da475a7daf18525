package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
)

// WarningStore is append-only: warnings are never updated or deleted.
type WarningStore struct {
	db database.Querier
}

func NewWarningStore(db database.Querier) *WarningStore {
	return &WarningStore{db: db}
}

func (s *WarningStore) WithTx(tx *database.Tx) *WarningStore {
	return &WarningStore{db: tx}
}

const warningCols = `id, context_type, context_id, target_user_id, issued_by, reason, created_at`

func scanWarning(sc scanner) (*model.Warning, error) {
	var w model.Warning
	var typ sql.NullString
	var ctxID sql.NullInt64
	if err := sc.Scan(&w.ID, &typ, &ctxID, &w.TargetUserID, &w.IssuedBy, &w.Reason, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.Context = scanContext(typ, ctxID)
	return &w, nil
}

func (s *WarningStore) Create(ctx context.Context, c model.Context, targetUserID, issuedBy int64, reason string, now time.Time) (*model.Warning, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO warnings (context_type, context_id, target_user_id, issued_by, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		string(c.Type()), c.ID(), targetUserID, issuedBy, reason, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert warning: %w", err)
	}
	return &model.Warning{
		ID:           id,
		Context:      c,
		TargetUserID: targetUserID,
		IssuedBy:     issuedBy,
		Reason:       reason,
		CreatedAt:    now,
	}, nil
}

// ListByContext returns the warnings issued in c, newest first.
func (s *WarningStore) ListByContext(ctx context.Context, c model.Context) ([]model.Warning, error) {
	return s.list(ctx,
		`WHERE context_type = ? AND context_id = ?`, string(c.Type()), c.ID())
}

// ListForUser returns the warnings a user received in c, newest first.
func (s *WarningStore) ListForUser(ctx context.Context, userID int64, c model.Context) ([]model.Warning, error) {
	return s.list(ctx,
		`WHERE target_user_id = ? AND context_type = ? AND context_id = ?`, userID, string(c.Type()), c.ID())
}

func (s *WarningStore) list(ctx context.Context, where string, args ...any) ([]model.Warning, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+warningCols+` FROM warnings `+where+` ORDER BY id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	defer rows.Close()

	var out []model.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
