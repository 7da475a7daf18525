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

// MembershipStore persists per-context membership standing. Counter
// updates are single statements so concurrent callers never lose an
// increment.
type MembershipStore struct {
	db database.Querier
}

func NewMembershipStore(db database.Querier) *MembershipStore {
	return &MembershipStore{db: db}
}

func (s *MembershipStore) WithTx(tx *database.Tx) *MembershipStore {
	return &MembershipStore{db: tx}
}

const membershipCols = `id, user_id, context_type, context_id, role, warning_count, status, is_active, joined_at, last_chat_at, updated_at`

func scanMembership(sc scanner) (*model.Membership, error) {
	var m model.Membership
	var typ sql.NullString
	var ctxID sql.NullInt64
	var status string
	var lastChat sql.NullTime

	err := sc.Scan(&m.ID, &m.UserID, &typ, &ctxID, &m.Role, &m.WarningCount, &status,
		&m.IsActive, &m.JoinedAt, &lastChat, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Context = scanContext(typ, ctxID)
	m.Status = model.MembershipStatus(status)
	if lastChat.Valid {
		t := lastChat.Time
		m.LastChatAt = &t
	}
	return &m, nil
}

func (s *MembershipStore) getOne(ctx context.Context, op, where string, args ...any) (*model.Membership, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+membershipCols+` FROM memberships WHERE `+where, args...)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// Get returns the membership of user in c, active or not.
func (s *MembershipStore) Get(ctx context.Context, userID int64, c model.Context) (*model.Membership, error) {
	return s.getOne(ctx, "get membership",
		`user_id = ? AND context_type = ? AND context_id = ?`,
		userID, string(c.Type()), c.ID())
}

// GetForUpdate is Get with a row lock where the dialect supports one.
func (s *MembershipStore) GetForUpdate(ctx context.Context, userID int64, c model.Context) (*model.Membership, error) {
	return s.getOne(ctx, "lock membership",
		`user_id = ? AND context_type = ? AND context_id = ?`+s.db.Dialect().ForUpdate(),
		userID, string(c.Type()), c.ID())
}

func (s *MembershipStore) GetByID(ctx context.Context, id int64) (*model.Membership, error) {
	return s.getOne(ctx, "get membership by id", `id = ?`, id)
}

func (s *MembershipStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.Membership, error) {
	return s.getOne(ctx, "lock membership by id", `id = ?`+s.db.Dialect().ForUpdate(), id)
}

// Join creates an active membership, or reactivates a soft-deleted one.
// Reactivation keeps role, warning count and status.
func (s *MembershipStore) Join(ctx context.Context, userID int64, c model.Context, role string, now time.Time) (*model.Membership, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("join membership: missing context")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, context_type, context_id, role, warning_count, status, is_active, joined_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
		 ON CONFLICT (user_id, context_type, context_id) DO UPDATE SET
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		userID, string(c.Type()), c.ID(), role, string(model.StatusActive), true, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	return s.Get(ctx, userID, c)
}

// IncrementWarning bumps warning_count by one and bans the membership when
// the new count reaches threshold, in one statement. Only active
// memberships are touched; ErrNotFound otherwise.
func (s *MembershipStore) IncrementWarning(ctx context.Context, id int64, threshold int, now time.Time) (int, model.MembershipStatus, error) {
	var count int
	var status string
	err := s.db.QueryRowContext(ctx,
		`UPDATE memberships SET
		   warning_count = warning_count + 1,
		   status = CASE WHEN warning_count + 1 >= ? THEN ? ELSE status END,
		   updated_at = ?
		 WHERE id = ? AND is_active = ?
		 RETURNING warning_count, status`,
		threshold, string(model.StatusBanned), now, id, true,
	).Scan(&count, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("increment warning: %w", err)
	}
	return count, model.MembershipStatus(status), nil
}

// SetStatus changes status without touching warning_count.
func (s *MembershipStore) SetStatus(ctx context.Context, id int64, status model.MembershipStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("set membership status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchChatActivity records the latest chat time. Last write wins.
func (s *MembershipStore) TouchChatActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE memberships SET last_chat_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("touch chat activity: %w", err)
	}
	return nil
}

// Deactivate soft-deletes the membership.
func (s *MembershipStore) Deactivate(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET is_active = ?, updated_at = ? WHERE id = ?`, false, now, id)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive counts the user's active memberships of the given kind.
func (s *MembershipStore) CountActive(ctx context.Context, userID int64, typ model.ContextType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE user_id = ? AND context_type = ? AND is_active = ?`,
		userID, string(typ), true,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}

// ListByContext returns the active memberships of c, oldest first.
func (s *MembershipStore) ListByContext(ctx context.Context, c model.Context) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipCols+` FROM memberships
		 WHERE context_type = ? AND context_id = ? AND is_active = ?
		 ORDER BY joined_at ASC, id ASC`,
		string(c.Type()), c.ID(), true,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
