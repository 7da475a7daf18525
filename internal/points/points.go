// Package points owns the points ledger and the cached balance and level
// derived from it.
package points

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/sideeffect"
	"github.com/dukerupert/huddle/internal/store"
	"github.com/dukerupert/huddle/internal/telemetry"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	maxReasonLen        = 255
)

// LevelObserver is told, after commit, that a user's balance changed.
type LevelObserver func(ctx context.Context, userID int64) error

type Service struct {
	db       *database.DB
	points   *store.PointsStore
	users    *store.UserStore
	runner   *sideeffect.Runner
	metrics  *metrics.Metrics
	logger   *slog.Logger
	observer LevelObserver
	now      func() time.Time
}

func NewService(db *database.DB, runner *sideeffect.Runner, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		points:  store.NewPointsStore(db),
		users:   store.NewUserStore(db),
		runner:  runner,
		metrics: m,
		logger:  logger.With("component", "points"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLevelObserver registers the hook run after every committed change.
func (s *Service) SetLevelObserver(fn LevelObserver) {
	s.observer = fn
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Change describes a points award or deduction. Points is a positive
// magnitude; the sign comes from the operation.
type Change struct {
	UserID    int64
	Points    int64
	Reason    string
	Context   model.Context
	CreatedBy *int64
}

type Result struct {
	Entry   model.PointsEntry   `json:"entry"`
	Balance model.PointsBalance `json:"balance"`
}

func (c *Change) validate() error {
	c.Reason = strings.TrimSpace(c.Reason)
	switch {
	case c.UserID <= 0:
		return apperr.Validation("user_id is required")
	case c.Points <= 0:
		return apperr.Validation("points must be a positive integer")
	case c.Reason == "":
		return apperr.Validation("reason is required")
	case len(c.Reason) > maxReasonLen:
		return apperr.Validation("reason must be at most %d characters", maxReasonLen)
	}
	return nil
}

// Award credits points in its own transaction.
func (s *Service) Award(ctx context.Context, c Change) (*Result, error) {
	return s.change(ctx, "points.award", c, 1)
}

// Deduct debits points in its own transaction. The balance is clamped at
// zero; the ledger records the full amount.
func (s *Service) Deduct(ctx context.Context, c Change) (*Result, error) {
	return s.change(ctx, "points.deduct", c, -1)
}

// AwardTx credits points inside the caller's transaction. The caller is
// responsible for calling CheckLevel after commit.
func (s *Service) AwardTx(ctx context.Context, tx *database.Tx, c Change) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, c, 1)
}

// DeductTx debits points inside the caller's transaction.
func (s *Service) DeductTx(ctx context.Context, tx *database.Tx, c Change) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, c, -1)
}

func (s *Service) change(ctx context.Context, op string, c Change, sign int64) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, op,
		attribute.Int64("user_id", c.UserID),
		attribute.Int64("points", c.Points),
	)
	defer func() { telemetry.End(span, err) }()

	if err := c.validate(); err != nil {
		return nil, err
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		res, err = s.apply(ctx, tx, c, sign)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.CheckLevel(ctx, c.UserID)
	return res, nil
}

// apply updates the balance first so that, on databases with row locks,
// ledger order matches the order balance updates were applied in.
func (s *Service) apply(ctx context.Context, tx *database.Tx, c Change, sign int64) (*Result, error) {
	now := s.now()
	delta := sign * c.Points

	u, err := s.users.WithTx(tx).GetByID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", c.UserID)
	}

	balance, err := s.points.WithTx(tx).ApplyDelta(ctx, c.UserID, delta, now)
	if err != nil {
		return nil, err
	}

	entry, err := s.points.WithTx(tx).Append(ctx, model.PointsEntry{
		UserID:    c.UserID,
		Points:    delta,
		Reason:    c.Reason,
		Context:   c.Context,
		CreatedBy: c.CreatedBy,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PointsChanged(delta)
	s.logger.Debug("points changed", "user_id", c.UserID, "delta", delta, "balance", balance.Points, "reason", c.Reason)
	return &Result{Entry: *entry, Balance: *balance}, nil
}

// CheckLevel runs the level observer as a best-effort side effect.
func (s *Service) CheckLevel(ctx context.Context, userID int64) {
	if s.observer == nil {
		return
	}
	s.runner.Run(ctx, "level check", func(ctx context.Context) error {
		return s.observer(ctx, userID)
	})
}

// Balance returns the user's cached balance. Users with no activity have a
// zero balance.
func (s *Service) Balance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	b, err := s.points.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &model.PointsBalance{UserID: userID}, nil
	}
	return b, nil
}

func (s *Service) Level(ctx context.Context, userID int64) (int, error) {
	b, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return b.Level, nil
}

// History returns a page of ledger entries, newest first. beforeID is the
// id of the last entry of the previous page, or 0.
func (s *Service) History(ctx context.Context, userID int64, limit int, beforeID int64) ([]model.PointsEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	entries, err := s.points.History(ctx, userID, limit, beforeID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.PointsEntry{}
	}
	return entries, nil
}
