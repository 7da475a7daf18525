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

type AttendanceStore struct {
	db database.Querier
}

func NewAttendanceStore(db database.Querier) *AttendanceStore {
	return &AttendanceStore{db: db}
}

func (s *AttendanceStore) WithTx(tx *database.Tx) *AttendanceStore {
	return &AttendanceStore{db: tx}
}

const attendanceCols = `id, activity_id, user_id, present, marked_by, marked_at`

func scanAttendance(sc scanner) (*model.Attendance, error) {
	var a model.Attendance
	if err := sc.Scan(&a.ID, &a.ActivityID, &a.UserID, &a.Present, &a.MarkedBy, &a.MarkedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AttendanceStore) Get(ctx context.Context, activityID, userID int64) (*model.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendances WHERE activity_id = ? AND user_id = ?`,
		activityID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// Mark records or overwrites a member's attendance.
func (s *AttendanceStore) Mark(ctx context.Context, activityID, userID int64, present bool, markedBy int64, now time.Time) (*model.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`INSERT INTO attendances (activity_id, user_id, present, marked_by, marked_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (activity_id, user_id) DO UPDATE SET
		   present = excluded.present,
		   marked_by = excluded.marked_by,
		   marked_at = excluded.marked_at
		 RETURNING `+attendanceCols,
		activityID, userID, present, markedBy, now,
	))
	if err != nil {
		return nil, fmt.Errorf("mark attendance: %w", err)
	}
	return a, nil
}

func (s *AttendanceStore) ListByActivity(ctx context.Context, activityID int64) ([]model.Attendance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceCols+` FROM attendances WHERE activity_id = ? ORDER BY user_id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
