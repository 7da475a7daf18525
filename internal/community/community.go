// Package community manages users, groups, activities and memberships, and
// reports the actions that feed the achievement engine.
package community

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/huddle/internal/achievement"
	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/store"
)

const maxNameLen = 120

// Triggers receives user actions that may unlock achievements.
type Triggers interface {
	Fire(ctx context.Context, event achievement.Event, userID int64)
}

type Service struct {
	db          *database.DB
	users       *store.UserStore
	community   *store.CommunityStore
	memberships *store.MembershipStore
	triggers    Triggers
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(db *database.DB, triggers Triggers, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		users:       store.NewUserStore(db),
		community:   store.NewCommunityStore(db),
		memberships: store.NewMembershipStore(db),
		triggers:    triggers,
		logger:      logger.With("component", "community"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) fire(ctx context.Context, userID int64, evs ...achievement.Event) {
	if s.triggers == nil {
		return
	}
	for _, ev := range evs {
		s.triggers.Fire(ctx, ev, userID)
	}
}

func joinedEvent(t model.ContextType) achievement.Event {
	if t == model.ContextActivity {
		return achievement.EventActivityJoined
	}
	return achievement.EventGroupJoined
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if len(name) > maxNameLen {
		return "", apperr.Validation("name must be at most %d characters", maxNameLen)
	}
	return name, nil
}

// RegisterUser creates a user. Usernames are unique.
func (s *Service) RegisterUser(ctx context.Context, username string) (*model.User, error) {
	username, err := cleanName(username)
	if err != nil {
		return nil, err
	}
	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("username %q is taken", username)
	}
	return s.users.Create(ctx, username, s.now())
}

func (s *Service) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

// CreateGroup creates a group and joins the creator as its organizer.
func (s *Service) CreateGroup(ctx context.Context, creatorID int64, name string) (*model.GroupRecord, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	var g *model.GroupRecord
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		g, err = s.community.WithTx(tx).CreateGroup(ctx, name, creatorID, now)
		if err != nil {
			return err
		}
		_, err = s.memberships.WithTx(tx).Join(ctx, creatorID, model.Group(g.ID), model.RoleOrganizer, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "group created", "group_id", g.ID, "created_by", creatorID)
	s.fire(ctx, creatorID, achievement.EventCreated, achievement.EventGroupJoined)
	return g, nil
}

// CreateActivity creates an activity and joins the creator as its organizer.
func (s *Service) CreateActivity(ctx context.Context, creatorID int64, name string) (*model.ActivityRecord, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	var a *model.ActivityRecord
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		now := s.now()
		a, err = s.community.WithTx(tx).CreateActivity(ctx, name, creatorID, now)
		if err != nil {
			return err
		}
		_, err = s.memberships.WithTx(tx).Join(ctx, creatorID, model.Activity(a.ID), model.RoleOrganizer, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "activity created", "activity_id", a.ID, "created_by", creatorID)
	s.fire(ctx, creatorID, achievement.EventCreated, achievement.EventActivityJoined)
	return a, nil
}

// Join adds userID to c. Rejoining reactivates the old membership with its
// warning count and ban intact.
func (s *Service) Join(ctx context.Context, userID int64, c model.Context) (*model.Membership, error) {
	if c.IsZero() {
		return nil, apperr.Validation("context is required")
	}
	ok, err := s.community.Exists(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("%s not found", c)
	}

	existing, err := s.memberships.Get(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive {
		return existing, nil
	}

	m, err := s.memberships.Join(ctx, userID, c, model.RoleMember, s.now())
	if err != nil {
		return nil, err
	}
	s.fire(ctx, userID, joinedEvent(c.Type()))
	return m, nil
}

// Leave soft-deletes the membership.
func (s *Service) Leave(ctx context.Context, userID int64, c model.Context) error {
	if c.IsZero() {
		return apperr.Validation("context is required")
	}
	m, err := s.memberships.Get(ctx, userID, c)
	if err != nil {
		return err
	}
	if m == nil || !m.IsActive {
		return apperr.NotFound("not a member of %s", c)
	}
	return s.memberships.Deactivate(ctx, m.ID, s.now())
}

// SetProfileImage stores an absolute http(s) image URL for the user.
func (s *Service) SetProfileImage(ctx context.Context, userID int64, imageURL string) (*model.User, error) {
	imageURL = strings.TrimSpace(imageURL)
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("profile image must be an http(s) URL")
	}
	user, err := s.users.SetProfileImage(ctx, userID, imageURL)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user %d not found", userID)
	}
	s.fire(ctx, userID, achievement.EventProfileUpdated)
	return user, nil
}
