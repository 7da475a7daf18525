// Package achievement unlocks catalog achievements in response to user
// actions and credits their point rewards.
package achievement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/points"
	"github.com/dukerupert/huddle/internal/sideeffect"
	"github.com/dukerupert/huddle/internal/store"
	"github.com/dukerupert/huddle/internal/telemetry"
)

type Engine struct {
	db           *database.DB
	achievements *store.AchievementStore
	memberships  *store.MembershipStore
	messages     *store.MessageStore
	users        *store.UserStore
	community    *store.CommunityStore
	points       *points.Service
	runner       *sideeffect.Runner
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewEngine builds the engine and registers it as pts's level observer so
// that every committed points change re-checks level achievements.
func NewEngine(db *database.DB, pts *points.Service, runner *sideeffect.Runner, m *metrics.Metrics, logger *slog.Logger) *Engine {
	e := &Engine{
		db:           db,
		achievements: store.NewAchievementStore(db),
		memberships:  store.NewMembershipStore(db),
		messages:     store.NewMessageStore(db),
		users:        store.NewUserStore(db),
		community:    store.NewCommunityStore(db),
		points:       pts,
		runner:       runner,
		metrics:      m,
		logger:       logger.With("component", "achievement"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	pts.SetLevelObserver(e.CheckLevel)
	return e
}

// Seed upserts the built-in catalog.
func (e *Engine) Seed(ctx context.Context) (int, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return 0, err
	}
	err = e.db.InTx(ctx, func(tx *database.Tx) error {
		as := e.achievements.WithTx(tx)
		for _, a := range catalog {
			if _, err := as.Upsert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(catalog), nil
}

func (e *Engine) Catalog(ctx context.Context) ([]model.Achievement, error) {
	list, err := e.achievements.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Achievement{}
	}
	return list, nil
}

// Award grants the achievement with the given title if the user does not
// already have it, crediting its reward in the same transaction. Unknown
// titles are logged and ignored.
func (e *Engine) Award(ctx context.Context, userID int64, title string) (bool, error) {
	a, err := e.achievements.GetByTitle(ctx, title)
	if err != nil {
		return false, err
	}
	if a == nil {
		e.logger.Warn("achievement missing from catalog", "title", title)
		return false, nil
	}
	return e.grant(ctx, userID, a)
}

func (e *Engine) grant(ctx context.Context, userID int64, a *model.Achievement) (granted bool, err error) {
	ctx, span := telemetry.Start(ctx, "achievement.grant",
		attribute.Int64("user_id", userID),
		attribute.String("title", a.Title),
	)
	defer func() { telemetry.End(span, err) }()

	err = e.db.InTx(ctx, func(tx *database.Tx) error {
		ok, err := e.achievements.WithTx(tx).Grant(ctx, userID, a.ID, e.now())
		if err != nil || !ok {
			return err
		}
		granted = true
		if a.PointsReward == 0 {
			return nil
		}
		_, err = e.points.AwardTx(ctx, tx, points.Change{
			UserID: userID,
			Points: a.PointsReward,
			Reason: "achievement unlocked: " + a.Title,
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("grant %q: %w", a.Title, err)
	}
	if !granted {
		return false, nil
	}

	e.metrics.AchievementEarned(a.Title)
	e.logger.Info("achievement unlocked", "user_id", userID, "title", a.Title, "reward", a.PointsReward)
	if a.PointsReward > 0 {
		e.points.CheckLevel(ctx, userID)
	}
	return true, nil
}

// Evaluate checks every rule bound to event and awards those whose
// condition holds. It returns the titles newly awarded.
func (e *Engine) Evaluate(ctx context.Context, event Event, userID int64) ([]string, error) {
	return e.evaluate(ctx, userID, func(r rule) bool { return r.event == event })
}

// CheckAll evaluates the whole trigger table.
func (e *Engine) CheckAll(ctx context.Context, userID int64) ([]string, error) {
	return e.evaluate(ctx, userID, func(rule) bool { return true })
}

func (e *Engine) evaluate(ctx context.Context, userID int64, match func(rule) bool) ([]string, error) {
	awarded := []string{}
	var errs []error
	for _, r := range rules {
		if !match(r) {
			continue
		}
		ok, err := r.met(ctx, e, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("check %q: %w", r.title, err))
			continue
		}
		if !ok {
			continue
		}
		granted, err := e.Award(ctx, userID, r.title)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if granted {
			awarded = append(awarded, r.title)
		}
	}
	return awarded, errors.Join(errs...)
}

// Fire evaluates event as a best-effort side effect of the caller's action.
func (e *Engine) Fire(ctx context.Context, event Event, userID int64) {
	e.runner.Run(ctx, "achievements: "+string(event), func(ctx context.Context) error {
		_, err := e.Evaluate(ctx, event, userID)
		return err
	})
}

// CheckLevel evaluates the level rules. It is the points level observer.
func (e *Engine) CheckLevel(ctx context.Context, userID int64) error {
	_, err := e.Evaluate(ctx, EventPointsChanged, userID)
	return err
}

// ManualAward grants an achievement by id, failing if it does not exist or
// the user already has it.
func (e *Engine) ManualAward(ctx context.Context, userID, achievementID int64) (*model.Achievement, error) {
	a, err := e.achievements.GetByID(ctx, achievementID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("achievement %d not found", achievementID)
	}
	granted, err := e.grant(ctx, userID, a)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, apperr.Conflict("user already has achievement %q", a.Title)
	}
	return a, nil
}

// State returns the user's points, level and earned achievements.
func (e *Engine) State(ctx context.Context, userID int64) (*model.GamificationState, error) {
	b, err := e.points.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, err := e.achievements.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if earned == nil {
		earned = []model.UserAchievement{}
	}
	return &model.GamificationState{
		UserID:              userID,
		Points:              b.Points,
		Level:               b.Level,
		ProgressToNextLevel: b.Progress,
		Achievements:        earned,
	}, nil
}
