package points

import (
	"context"
	"log/slog"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
)

// Mismatch describes a cached balance that disagrees with its ledger.
type Mismatch struct {
	UserID         int64 `json:"user_id"`
	CachedPoints   int64 `json:"cached_points"`
	ReplayedPoints int64 `json:"replayed_points"`
	CachedTotal    int64 `json:"cached_total"`
	LedgerTotal    int64 `json:"ledger_total"`
}

// Reconcile checks the cached balance against a replay of the ledger: the
// unclamped total must equal the ledger sum and the clamped points must
// equal clamping after every entry. A disagreement is a consistency error.
func (s *Service) Reconcile(ctx context.Context, userID int64) (*Mismatch, error) {
	b, err := s.points.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, clamped, err := s.points.Fold(ctx, userID)
	if err != nil {
		return nil, err
	}

	var cachedPoints, cachedTotal int64
	if b != nil {
		cachedPoints, cachedTotal = b.Points, b.LedgerTotal
	}
	if cachedPoints == clamped && cachedTotal == sum {
		return nil, nil
	}

	m := &Mismatch{
		UserID:         userID,
		CachedPoints:   cachedPoints,
		ReplayedPoints: clamped,
		CachedTotal:    cachedTotal,
		LedgerTotal:    sum,
	}
	s.metrics.LedgerMismatch()
	s.logger.LogAttrs(ctx, slog.LevelError, "points balance out of step with ledger",
		slog.Int64("user_id", userID),
		slog.Int64("cached_points", cachedPoints),
		slog.Int64("replayed_points", clamped),
		slog.Int64("cached_total", cachedTotal),
		slog.Int64("ledger_total", sum),
	)
	return m, apperr.Consistency("points balance for user %d does not match ledger", userID)
}

// ReconcileAll checks every user with points activity and returns the
// mismatches found. Only storage failures are returned as errors.
func (s *Service) ReconcileAll(ctx context.Context) (checked int, mismatches []Mismatch, err error) {
	ids, err := s.points.UserIDs(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return checked, mismatches, err
		}
		m, err := s.Reconcile(ctx, id)
		checked++
		if m != nil {
			mismatches = append(mismatches, *m)
			continue
		}
		if err != nil {
			return checked, mismatches, err
		}
	}
	return checked, mismatches, nil
}

// Repair rewrites the cached balance from the ledger.
func (s *Service) Repair(ctx context.Context, userID int64) error {
	return s.db.InTx(ctx, func(tx *database.Tx) error {
		ps := s.points.WithTx(tx)
		sum, clamped, err := ps.Fold(ctx, userID)
		if err != nil {
			return err
		}
		return ps.SetBalance(ctx, userID, clamped, sum, s.now())
	})
}
