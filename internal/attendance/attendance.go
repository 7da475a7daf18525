// Package attendance records who showed up to an activity and charges the
// no-show penalty against the points ledger.
package attendance

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/points"
	"github.com/dukerupert/huddle/internal/store"
	"github.com/dukerupert/huddle/internal/telemetry"
)

// NoShowPenalty is deducted when a member is marked absent.
const NoShowPenalty = 100

// Authorizer reports global organizer or administrator roles.
type Authorizer interface {
	IsModerator(ctx context.Context, userID int64) bool
}

type Service struct {
	db          *database.DB
	community   *store.CommunityStore
	memberships *store.MembershipStore
	attendance  *store.AttendanceStore
	points      *points.Service
	authz       Authorizer
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(db *database.DB, pts *points.Service, authz Authorizer, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		community:   store.NewCommunityStore(db),
		memberships: store.NewMembershipStore(db),
		attendance:  store.NewAttendanceStore(db),
		points:      pts,
		authz:       authz,
		logger:      logger.With("component", "attendance"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type Mark struct {
	UserID  int64 `json:"user_id"`
	Present bool  `json:"present"`
}

type MarkResult struct {
	model.Attendance
	// Penalized reports that this mark deducted the no-show penalty.
	Penalized bool `json:"penalized"`
}

func (s *Service) activity(ctx context.Context, activityID int64) (*model.ActivityRecord, error) {
	a, err := s.community.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("activity %d not found", activityID)
	}
	return a, nil
}

// canManage reports whether userID may mark attendance: a global moderator,
// the activity's creator, or one of its organizers.
func (s *Service) canManage(ctx context.Context, userID int64, a *model.ActivityRecord) (bool, error) {
	if s.authz.IsModerator(ctx, userID) || a.CreatedBy == userID {
		return true, nil
	}
	m, err := s.memberships.Get(ctx, userID, model.Activity(a.ID))
	if err != nil {
		return false, err
	}
	return m != nil && m.IsActive && m.Role == model.RoleOrganizer, nil
}

// MarkAttendance records attendance for a batch of members in one
// transaction. A member newly marked absent loses NoShowPenalty points;
// marking the same absence again charges nothing.
func (s *Service) MarkAttendance(ctx context.Context, actorID, activityID int64, marks []Mark) (out []MarkResult, err error) {
	ctx, span := telemetry.Start(ctx, "attendance.mark",
		attribute.Int64("activity_id", activityID),
		attribute.Int("marks", len(marks)),
	)
	defer func() { telemetry.End(span, err) }()

	if len(marks) == 0 {
		return nil, apperr.Validation("attendees is required")
	}
	seen := make(map[int64]bool, len(marks))
	for _, mk := range marks {
		if mk.UserID <= 0 {
			return nil, apperr.Validation("user_id is required")
		}
		if seen[mk.UserID] {
			return nil, apperr.Validation("user %d is listed twice", mk.UserID)
		}
		seen[mk.UserID] = true
	}

	a, err := s.activity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canManage(ctx, actorID, a)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Forbidden("only organizers can mark attendance")
	}

	c := model.Activity(a.ID)
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		ms := s.memberships.WithTx(tx)
		as := s.attendance.WithTx(tx)
		out = make([]MarkResult, 0, len(marks))

		for _, mk := range marks {
			m, err := ms.Get(ctx, mk.UserID, c)
			if err != nil {
				return err
			}
			if m == nil || !m.IsActive {
				return apperr.NotFound("user %d is not a member of %s", mk.UserID, c)
			}
			prev, err := as.Get(ctx, a.ID, mk.UserID)
			if err != nil {
				return err
			}
			rec, err := as.Mark(ctx, a.ID, mk.UserID, mk.Present, actorID, now)
			if err != nil {
				return err
			}

			penalize := !mk.Present && (prev == nil || prev.Present)
			if penalize {
				actor := actorID
				_, err := s.points.DeductTx(ctx, tx, points.Change{
					UserID:    mk.UserID,
					Points:    NoShowPenalty,
					Reason:    "missed activity: " + a.Name,
					Context:   c,
					CreatedBy: &actor,
				})
				if err != nil {
					return err
				}
			}
			out = append(out, MarkResult{Attendance: *rec, Penalized: penalize})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range out {
		if r.Penalized {
			s.points.CheckLevel(ctx, r.UserID)
		}
	}
	s.logger.Info("attendance marked", "activity_id", a.ID, "by", actorID, "marks", len(out))
	return out, nil
}

// List returns the attendance recorded for an activity. Visible to its
// members and to organizers.
func (s *Service) List(ctx context.Context, viewerID, activityID int64) ([]model.Attendance, error) {
	a, err := s.activity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canManage(ctx, viewerID, a)
	if err != nil {
		return nil, err
	}
	if !allowed {
		m, err := s.memberships.Get(ctx, viewerID, model.Activity(a.ID))
		if err != nil {
			return nil, err
		}
		if m == nil || !m.IsActive {
			return nil, apperr.Forbidden("not a member of %s", model.Activity(a.ID))
		}
	}
	list, err := s.attendance.ListByActivity(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Attendance{}
	}
	return list, nil
}
