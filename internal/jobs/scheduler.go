// Package jobs runs periodic maintenance: points ledger reconciliation and
// rate limiter cleanup.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/huddle/internal/points"
)

// Reconciler checks cached balances against the ledger.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, []points.Mismatch, error)
	Repair(ctx context.Context, userID int64) error
}

// Cleaner drops idle rate limiter state.
type Cleaner interface {
	Cleanup(idle time.Duration) int
}

type Config struct {
	ReconcileSchedule      string
	RepairMismatches       bool
	LimiterCleanupSchedule string
	LimiterIdle            time.Duration
}

type Scheduler struct {
	cron       *cron.Cron
	cfg        Config
	reconciler Reconciler
	cleaner    Cleaner
	logger     *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg Config, reconciler Reconciler, cleaner Cleaner, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "jobs")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		cfg:        cfg,
		reconciler: reconciler,
		cleaner:    cleaner,
		logger:     logger,
	}
}

// Start registers the configured jobs and starts the cron loop. Jobs with
// an empty schedule are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.ReconcileSchedule != "" && s.reconciler != nil {
		if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, s.reconcile); err != nil {
			return fmt.Errorf("schedule reconcile %q: %w", s.cfg.ReconcileSchedule, err)
		}
	}
	if s.cfg.LimiterCleanupSchedule != "" && s.cleaner != nil {
		if _, err := s.cron.AddFunc(s.cfg.LimiterCleanupSchedule, s.cleanup); err != nil {
			return fmt.Errorf("schedule limiter cleanup %q: %w", s.cfg.LimiterCleanupSchedule, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) reconcile() {
	s.RunReconcile(s.jobContext())
}

// RunReconcile checks every balance once and, when configured, repairs the
// ones that drifted. It returns the number of mismatches found.
func (s *Scheduler) RunReconcile(ctx context.Context) int {
	start := time.Now()
	checked, mismatches, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reconcile failed", "error", err, "checked", checked)
		return len(mismatches)
	}

	for _, m := range mismatches {
		if !s.cfg.RepairMismatches {
			continue
		}
		if err := s.reconciler.Repair(ctx, m.UserID); err != nil {
			s.logger.ErrorContext(ctx, "repair balance failed", "user_id", m.UserID, "error", err)
			continue
		}
		s.logger.WarnContext(ctx, "repaired balance", "user_id", m.UserID)
	}
	s.logger.InfoContext(ctx, "reconcile finished",
		"checked", checked, "mismatches", len(mismatches), "duration", time.Since(start))
	return len(mismatches)
}

func (s *Scheduler) cleanup() {
	if n := s.cleaner.Cleanup(s.cfg.LimiterIdle); n > 0 {
		s.logger.Debug("rate limiter cleanup", "removed", n)
	}
}
