package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
)

// PointsStore holds the append-only points ledger and the cached per-user
// balance derived from it.
type PointsStore struct {
	db database.Querier
}

func NewPointsStore(db database.Querier) *PointsStore {
	return &PointsStore{db: db}
}

func (s *PointsStore) WithTx(tx *database.Tx) *PointsStore {
	return &PointsStore{db: tx}
}

// --- Ledger ---

const pointsEntryCols = `id, user_id, points, reason, context_type, context_id, created_by, created_at`

func scanPointsEntry(sc scanner) (*model.PointsEntry, error) {
	var e model.PointsEntry
	var typ sql.NullString
	var ctxID, createdBy sql.NullInt64
	if err := sc.Scan(&e.ID, &e.UserID, &e.Points, &e.Reason, &typ, &ctxID, &createdBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Context = scanContext(typ, ctxID)
	e.CreatedBy = int64Ptr(createdBy)
	return &e, nil
}

// Append adds a signed entry to the ledger.
func (s *PointsStore) Append(ctx context.Context, e model.PointsEntry) (*model.PointsEntry, error) {
	typ, ctxID := contextArgs(e.Context)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO points_entries (user_id, points, reason, context_type, context_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		e.UserID, e.Points, e.Reason, typ, ctxID, nullableInt64(e.CreatedBy), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert points entry: %w", err)
	}
	return &e, nil
}

// History returns up to limit entries for the user older than beforeID
// (0 for the latest), newest first.
func (s *PointsStore) History(ctx context.Context, userID int64, limit int, beforeID int64) ([]model.PointsEntry, error) {
	query := `SELECT ` + pointsEntryCols + ` FROM points_entries WHERE user_id = ?`
	args := []any{userID}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list points history: %w", err)
	}
	defer rows.Close()

	var out []model.PointsEntry
	for rows.Next() {
		e, err := scanPointsEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan points entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Fold replays the user's ledger in insertion order and returns both the
// plain sum and the balance obtained by clamping at zero after each entry.
func (s *PointsStore) Fold(ctx context.Context, userID int64) (sum, clamped int64, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT points FROM points_entries WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("fold points ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return 0, 0, fmt.Errorf("scan points: %w", err)
		}
		sum += p
		clamped = model.ClampedAdd(clamped, p)
	}
	return sum, clamped, rows.Err()
}

// --- Balance ---

// ApplyDelta adds delta to the user's cached balance, clamping points at
// zero and tracking the unclamped total, as one upsert.
func (s *PointsStore) ApplyDelta(ctx context.Context, userID, delta int64, now time.Time) (*model.PointsBalance, error) {
	b := model.PointsBalance{UserID: userID, UpdatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO points_balances (user_id, points, ledger_total, updated_at)
		 VALUES (?, CASE WHEN CAST(? AS BIGINT) < 0 THEN 0 ELSE CAST(? AS BIGINT) END, CAST(? AS BIGINT), ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   points = CASE
		     WHEN points_balances.points + excluded.ledger_total < 0 THEN 0
		     ELSE points_balances.points + excluded.ledger_total
		   END,
		   ledger_total = points_balances.ledger_total + excluded.ledger_total,
		   updated_at = excluded.updated_at
		 RETURNING points, ledger_total`,
		userID, delta, delta, delta, now,
	).Scan(&b.Points, &b.LedgerTotal)
	if err != nil {
		return nil, fmt.Errorf("upsert points balance: %w", err)
	}
	fillLevel(&b)
	return &b, nil
}

// SetBalance overwrites the cached balance. Used by reconciliation repair.
func (s *PointsStore) SetBalance(ctx context.Context, userID, points, ledgerTotal int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO points_balances (user_id, points, ledger_total, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   points = excluded.points,
		   ledger_total = excluded.ledger_total,
		   updated_at = excluded.updated_at`,
		userID, points, ledgerTotal, now,
	)
	if err != nil {
		return fmt.Errorf("set points balance: %w", err)
	}
	return nil
}

// GetBalance returns the cached balance, or nil if the user has none yet.
func (s *PointsStore) GetBalance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	var b model.PointsBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, points, ledger_total, updated_at FROM points_balances WHERE user_id = ?`, userID,
	).Scan(&b.UserID, &b.Points, &b.LedgerTotal, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points balance: %w", err)
	}
	fillLevel(&b)
	return &b, nil
}

// UserIDs lists every user with a ledger entry or a cached balance.
func (s *PointsStore) UserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM points_entries UNION SELECT user_id FROM points_balances ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list points users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func fillLevel(b *model.PointsBalance) {
	b.Level = model.LevelFor(b.Points)
	b.Progress = model.ProgressFor(b.Points)
}
