package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustUser(t *testing.T, db *database.DB, username string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), username, testNow)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func mustJoin(t *testing.T, db *database.DB, userID int64, c model.Context) *model.Membership {
	t.Helper()
	m, err := NewMembershipStore(db).Join(context.Background(), userID, c, model.RoleMember, testNow)
	if err != nil {
		t.Fatalf("join %v: %v", c, err)
	}
	return m
}
