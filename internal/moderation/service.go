// Package moderation implements per-context membership standing: warnings,
// the automatic three-strike ban, unbans and the derived chat gate and
// semaphore color.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/events"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/points"
	"github.com/dukerupert/huddle/internal/sideeffect"
	"github.com/dukerupert/huddle/internal/store"
	"github.com/dukerupert/huddle/internal/telemetry"
)

const (
	// WarningPenalty is deducted from the target's points per warning.
	WarningPenalty = 100
	maxReasonLen   = 500
)

// Authorizer answers role questions about the acting user. Roles come from
// the authentication collaborator, not from this package's storage.
type Authorizer interface {
	// IsModerator reports a global organizer or administrator role.
	IsModerator(ctx context.Context, userID int64) bool
	// IsAdmin reports the administrator role.
	IsAdmin(ctx context.Context, userID int64) bool
}

type Service struct {
	db          *database.DB
	memberships *store.MembershipStore
	warnings    *store.WarningStore
	messages    *store.MessageStore
	users       *store.UserStore
	points      *points.Service
	publisher   events.Publisher
	authz       Authorizer
	runner      *sideeffect.Runner
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(db *database.DB, pts *points.Service, publisher events.Publisher, authz Authorizer, runner *sideeffect.Runner, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		memberships: store.NewMembershipStore(db),
		warnings:    store.NewWarningStore(db),
		messages:    store.NewMessageStore(db),
		users:       store.NewUserStore(db),
		points:      pts,
		publisher:   publisher,
		authz:       authz,
		runner:      runner,
		metrics:     m,
		logger:      logger.With("component", "moderation"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type WarningRequest struct {
	Context      model.Context
	TargetUserID int64
	IssuedBy     int64
	Reason       string
}

type WarningResult struct {
	Warning      model.Warning          `json:"warning"`
	MembershipID int64                  `json:"membership_id"`
	WarningCount int                    `json:"warning_count"`
	Status       model.MembershipStatus `json:"status"`
	// WasBanned reports that the membership is banned after this warning.
	WasBanned bool `json:"was_banned"`
	// NewlyBanned reports that this warning performed the ban.
	NewlyBanned bool `json:"newly_banned"`
}

type notice struct {
	kind model.MessageKind
	text string
}

// warningNotices builds the chat notices for a warning. The ban notice is
// only posted by the warning that performed the ban.
func warningNotices(username string, count int, newlyBanned bool) []notice {
	out := []notice{{
		kind: model.MessageWarning,
		text: fmt.Sprintf("%s received a warning (%d/%d).", username, count, model.BanThreshold),
	}}
	if newlyBanned {
		out = append(out, notice{
			kind: model.MessageBan,
			text: fmt.Sprintf("%s auto-banned after %d warnings.", username, model.BanThreshold),
		})
	}
	return out
}

func (r *WarningRequest) validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	switch {
	case r.Context.IsZero():
		return apperr.Validation("context is required")
	case r.TargetUserID <= 0:
		return apperr.Validation("target_user_id is required")
	case r.Reason == "":
		return apperr.Validation("reason is required")
	case len(r.Reason) > maxReasonLen:
		return apperr.Validation("reason must be at most %d characters", maxReasonLen)
	}
	return nil
}

// IssueWarning records a warning against a member, bumps their warning
// count (banning at the threshold) and deducts the warning penalty, all in
// one transaction. Notifications go out after commit and never fail the
// call.
func (s *Service) IssueWarning(ctx context.Context, req WarningRequest) (res *WarningResult, err error) {
	ctx, span := telemetry.Start(ctx, "moderation.issue_warning",
		attribute.String("context", req.Context.String()),
		attribute.Int64("target_user_id", req.TargetUserID),
	)
	defer func() { telemetry.End(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	allowed, err := s.canModerate(ctx, req.IssuedBy, req.Context)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Forbidden("only organizers can issue warnings")
	}

	var notices []notice
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		ms := s.memberships.WithTx(tx)

		m, err := ms.GetForUpdate(ctx, req.TargetUserID, req.Context)
		if err != nil {
			return err
		}
		if m == nil || !m.IsActive {
			return apperr.NotFound("user %d is not a member of %s", req.TargetUserID, req.Context)
		}
		target, err := s.users.WithTx(tx).GetByID(ctx, req.TargetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound("user %d not found", req.TargetUserID)
		}

		w, err := s.warnings.WithTx(tx).Create(ctx, req.Context, req.TargetUserID, req.IssuedBy, req.Reason, now)
		if err != nil {
			return err
		}

		count, status, err := ms.IncrementWarning(ctx, m.ID, model.BanThreshold, now)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user %d is not a member of %s", req.TargetUserID, req.Context)
		}
		if err != nil {
			return err
		}

		issuer := req.IssuedBy
		_, err = s.points.DeductTx(ctx, tx, points.Change{
			UserID:    req.TargetUserID,
			Points:    WarningPenalty,
			Reason:    "warning issued",
			Context:   req.Context,
			CreatedBy: &issuer,
		})
		if err != nil {
			return err
		}

		newlyBanned := m.Status != model.StatusBanned && status == model.StatusBanned
		notices = warningNotices(target.Username, count, newlyBanned)
		msgs := s.messages.WithTx(tx)
		for _, n := range notices {
			if _, err := msgs.Create(ctx, req.Context, nil, n.kind, n.text, now); err != nil {
				return err
			}
		}

		res = &WarningResult{
			Warning:      *w,
			MembershipID: m.ID,
			WarningCount: count,
			Status:       status,
			WasBanned:    status == model.StatusBanned,
			NewlyBanned:  newlyBanned,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WarningIssued(string(req.Context.Type()))
	if res.NewlyBanned {
		s.metrics.Banned(string(req.Context.Type()))
	}
	s.logger.Info("warning issued",
		"context", req.Context.String(),
		"target_user_id", req.TargetUserID,
		"issued_by", req.IssuedBy,
		"warning_count", res.WarningCount,
		"status", res.Status,
	)

	s.notify(ctx, "notify: warning", req.Context.Room(), notices, func(room string) []events.Message {
		out := []events.Message{{Type: events.TypeWarning, Room: room, Data: res, SentAt: s.now()}}
		if res.NewlyBanned {
			out = append(out, events.Message{Type: events.TypeBanned, Room: room, Data: res, SentAt: s.now()})
		}
		return out
	})

	return res, nil
}

// Unban returns a banned membership to ACTIVE. The warning count is kept,
// so a further warning bans again immediately. Administrators only.
func (s *Service) Unban(ctx context.Context, actorID, membershipID int64) (m *model.Membership, err error) {
	ctx, span := telemetry.Start(ctx, "moderation.unban", attribute.Int64("membership_id", membershipID))
	defer func() { telemetry.End(span, err) }()

	if !s.authz.IsAdmin(ctx, actorID) {
		return nil, apperr.Forbidden("only administrators can unban members")
	}

	var notices []notice
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		ms := s.memberships.WithTx(tx)

		cur, err := ms.GetByIDForUpdate(ctx, membershipID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.NotFound("membership %d not found", membershipID)
		}
		if err := ms.SetStatus(ctx, cur.ID, model.StatusActive, now); err != nil {
			return err
		}

		username := fmt.Sprintf("user %d", cur.UserID)
		if u, err := s.users.WithTx(tx).GetByID(ctx, cur.UserID); err != nil {
			return err
		} else if u != nil {
			username = u.Username
		}
		notices = []notice{{kind: model.MessageSystem, text: username + " has been unbanned."}}
		if _, err := s.messages.WithTx(tx).Create(ctx, cur.Context, nil, model.MessageSystem, notices[0].text, now); err != nil {
			return err
		}

		m, err = ms.GetByID(ctx, cur.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Unbanned()
	s.logger.Info("membership unbanned", "membership_id", m.ID, "user_id", m.UserID, "by", actorID)

	s.notify(ctx, "notify: unban", m.Context.Room(), notices, func(room string) []events.Message {
		return []events.Message{{Type: events.TypeUnbanned, Room: room, Data: m, SentAt: s.now()}}
	})
	return m, nil
}

func (s *Service) notify(ctx context.Context, name, room string, notices []notice, extra func(room string) []events.Message) {
	s.runner.Run(ctx, name, func(ctx context.Context) error {
		var errs []error
		for _, n := range notices {
			if err := s.publisher.EmitSystemMessage(ctx, room, n.text); err != nil {
				errs = append(errs, err)
			}
		}
		for _, msg := range extra(room) {
			if err := s.publisher.Publish(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.metrics.PublishFailed()
		}
		return errors.Join(errs...)
	})
}

// canModerate reports whether userID may moderate c: a global moderator
// role, or the organizer role in c itself.
func (s *Service) canModerate(ctx context.Context, userID int64, c model.Context) (bool, error) {
	if s.authz.IsModerator(ctx, userID) {
		return true, nil
	}
	m, err := s.memberships.Get(ctx, userID, c)
	if err != nil {
		return false, err
	}
	return m != nil && m.IsActive && m.Role == model.RoleOrganizer, nil
}

// StatusView is a member's standing as shown to clients.
type StatusView struct {
	MembershipID int64                  `json:"membership_id"`
	UserID       int64                  `json:"user_id"`
	Context      model.Context          `json:"context"`
	Role         string                 `json:"role"`
	WarningCount int                    `json:"warning_count"`
	Status       model.MembershipStatus `json:"status"`
	IsActive     bool                   `json:"is_active"`
	Semaphore    Color                  `json:"semaphore_color"`
	CanChat      bool                   `json:"can_chat"`
	LastChatAt   *time.Time             `json:"last_chat_at"`
}

func viewOf(m *model.Membership) StatusView {
	return StatusView{
		MembershipID: m.ID,
		UserID:       m.UserID,
		Context:      m.Context,
		Role:         m.Role,
		WarningCount: m.WarningCount,
		Status:       m.Status,
		IsActive:     m.IsActive,
		Semaphore:    Semaphore(m),
		CanChat:      CanChat(m),
		LastChatAt:   m.LastChatAt,
	}
}

// Status returns userID's standing in c. Members may read their own;
// moderators may read anyone's.
func (s *Service) Status(ctx context.Context, viewerID int64, c model.Context, userID int64) (*StatusView, error) {
	if c.IsZero() {
		return nil, apperr.Validation("context is required")
	}
	if viewerID != userID {
		allowed, err := s.canModerate(ctx, viewerID, c)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperr.Forbidden("not allowed to view this member's status")
		}
	}
	m, err := s.memberships.Get(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("user %d is not a member of %s", userID, c)
	}
	v := viewOf(m)
	return &v, nil
}

// Roster lists the active members of c with their standing. Visible to
// members of c and to moderators.
func (s *Service) Roster(ctx context.Context, viewerID int64, c model.Context) ([]StatusView, error) {
	if c.IsZero() {
		return nil, apperr.Validation("context is required")
	}
	if !s.authz.IsModerator(ctx, viewerID) {
		m, err := s.memberships.Get(ctx, viewerID, c)
		if err != nil {
			return nil, err
		}
		if m == nil || !m.IsActive {
			return nil, apperr.Forbidden("not a member of %s", c)
		}
	}
	list, err := s.memberships.ListByContext(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]StatusView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	return out, nil
}

// ListWarnings returns the warnings issued in c, newest first.
func (s *Service) ListWarnings(ctx context.Context, viewerID int64, c model.Context) ([]model.Warning, error) {
	if c.IsZero() {
		return nil, apperr.Validation("context is required")
	}
	allowed, err := s.canModerate(ctx, viewerID, c)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Forbidden("only organizers can list warnings")
	}
	list, err := s.warnings.ListByContext(ctx, c)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Warning{}
	}
	return list, nil
}
