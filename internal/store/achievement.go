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

type AchievementStore struct {
	db database.Querier
}

func NewAchievementStore(db database.Querier) *AchievementStore {
	return &AchievementStore{db: db}
}

func (s *AchievementStore) WithTx(tx *database.Tx) *AchievementStore {
	return &AchievementStore{db: tx}
}

// --- Catalog ---

const achievementCols = `id, title, description, points_reward, icon`

func scanAchievement(sc scanner) (*model.Achievement, error) {
	var a model.Achievement
	if err := sc.Scan(&a.ID, &a.Title, &a.Description, &a.PointsReward, &a.Icon); err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert inserts the achievement or refreshes the catalog row with the same
// title.
func (s *AchievementStore) Upsert(ctx context.Context, a model.Achievement) (*model.Achievement, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO achievements (title, description, points_reward, icon) VALUES (?, ?, ?, ?)
		 ON CONFLICT (title) DO UPDATE SET
		   description = excluded.description,
		   points_reward = excluded.points_reward,
		   icon = excluded.icon
		 RETURNING id`,
		a.Title, a.Description, a.PointsReward, a.Icon,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert achievement: %w", err)
	}
	return &a, nil
}

func (s *AchievementStore) GetByID(ctx context.Context, id int64) (*model.Achievement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+achievementCols+` FROM achievements WHERE id = ?`, id)
	a, err := scanAchievement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get achievement: %w", err)
	}
	return a, nil
}

func (s *AchievementStore) GetByTitle(ctx context.Context, title string) (*model.Achievement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+achievementCols+` FROM achievements WHERE title = ?`, title)
	a, err := scanAchievement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get achievement by title: %w", err)
	}
	return a, nil
}

// List returns the catalog ordered by reward, then title.
func (s *AchievementStore) List(ctx context.Context) ([]model.Achievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+achievementCols+` FROM achievements ORDER BY points_reward ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- Earned ---

// Grant records that the user earned the achievement. It reports false
// when the user already had it; the unique (user_id, achievement_id)
// constraint makes this safe under concurrent callers.
func (s *AchievementStore) Grant(ctx context.Context, userID, achievementID int64, now time.Time) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, date_earned) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING
		 RETURNING id`,
		userID, achievementID, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("grant achievement: %w", err)
	}
	return true, nil
}

func (s *AchievementStore) Has(ctx context.Context, userID, achievementID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check achievement: %w", err)
	}
	return n > 0, nil
}

// ListForUser returns the user's earned achievements, most recent first.
func (s *AchievementStore) ListForUser(ctx context.Context, userID int64) ([]model.UserAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ua.id, ua.user_id, ua.date_earned, a.id, a.title, a.description, a.points_reward, a.icon
		 FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.user_id = ?
		 ORDER BY ua.date_earned DESC, ua.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()

	var out []model.UserAchievement
	for rows.Next() {
		var ua model.UserAchievement
		a := &ua.Achievement
		if err := rows.Scan(&ua.ID, &ua.UserID, &ua.DateEarned, &a.ID, &a.Title, &a.Description, &a.PointsReward, &a.Icon); err != nil {
			return nil, fmt.Errorf("scan user achievement: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}
