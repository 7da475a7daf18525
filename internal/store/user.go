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

type UserStore struct {
	db database.Querier
}

func NewUserStore(db database.Querier) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) WithTx(tx *database.Tx) *UserStore {
	return &UserStore{db: tx}
}

const userCols = `id, username, profile_image, created_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var image sql.NullString
	if err := sc.Scan(&u.ID, &u.Username, &image, &u.CreatedAt); err != nil {
		return nil, err
	}
	if image.Valid {
		u.ProfileImage = &image.String
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, username string, now time.Time) (*model.User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, created_at) VALUES (?, ?) RETURNING id`,
		username, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// SetProfileImage stores the image reference; an empty url clears it.
func (s *UserStore) SetProfileImage(ctx context.Context, id int64, url string) (*model.User, error) {
	var image any
	if url != "" {
		image = url
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET profile_image = ? WHERE id = ?`, image, id)
	if err != nil {
		return nil, fmt.Errorf("update profile image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// HasProfileImage reports whether the user has a non-empty profile image.
func (s *UserStore) HasProfileImage(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND profile_image IS NOT NULL AND profile_image <> ''`, id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check profile image: %w", err)
	}
	return n > 0, nil
}
