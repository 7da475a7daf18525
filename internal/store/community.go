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

// CommunityStore holds the groups and activities memberships point at.
type CommunityStore struct {
	db database.Querier
}

func NewCommunityStore(db database.Querier) *CommunityStore {
	return &CommunityStore{db: db}
}

func (s *CommunityStore) WithTx(tx *database.Tx) *CommunityStore {
	return &CommunityStore{db: tx}
}

func (s *CommunityStore) CreateGroup(ctx context.Context, name string, createdBy int64, now time.Time) (*model.GroupRecord, error) {
	g := model.GroupRecord{Name: name, CreatedBy: createdBy, CreatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO community_groups (name, created_by, created_at) VALUES (?, ?, ?) RETURNING id`,
		name, createdBy, now,
	).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &g, nil
}

func (s *CommunityStore) GetGroup(ctx context.Context, id int64) (*model.GroupRecord, error) {
	var g model.GroupRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM community_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (s *CommunityStore) CreateActivity(ctx context.Context, name string, createdBy int64, now time.Time) (*model.ActivityRecord, error) {
	a := model.ActivityRecord{Name: name, CreatedBy: createdBy, CreatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO activities (name, created_by, created_at) VALUES (?, ?, ?) RETURNING id`,
		name, createdBy, now,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return &a, nil
}

func (s *CommunityStore) GetActivity(ctx context.Context, id int64) (*model.ActivityRecord, error) {
	var a model.ActivityRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM activities WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.CreatedBy, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &a, nil
}

// Exists reports whether the group or activity c refers to exists.
func (s *CommunityStore) Exists(ctx context.Context, c model.Context) (bool, error) {
	table := "community_groups"
	if c.Type() == model.ContextActivity {
		table = "activities"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, c.ID()).Scan(&n); err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return n > 0, nil
}

// CountCreatedBy returns the number of groups plus activities the user created.
func (s *CommunityStore) CountCreatedBy(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM community_groups WHERE created_by = ?)
		      + (SELECT COUNT(*) FROM activities WHERE created_by = ?)`,
		userID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count created: %w", err)
	}
	return n, nil
}
