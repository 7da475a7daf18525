package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/huddle/internal/achievement"
	"github.com/dukerupert/huddle/internal/community"
	"github.com/dukerupert/huddle/internal/config"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/points"
	"github.com/dukerupert/huddle/internal/sideeffect"
)

// core holds the storage and domain services shared by every command.
type core struct {
	db        *database.DB
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	runner    *sideeffect.Runner
	points    *points.Service
	engine    *achievement.Engine
	community *community.Service
}

func openDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.OpenWithOptions(ctx, cfg.Database.Driver, cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newCore opens the database, seeds the achievement catalog and builds the
// points and achievement services.
func newCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	runner := sideeffect.New(logger, m)
	pts := points.NewService(db, runner, m, logger)
	engine := achievement.NewEngine(db, pts, runner, m, logger)

	n, err := engine.Seed(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed achievements: %w", err)
	}
	if n > 0 {
		logger.Info("seeded achievement catalog", "added", n)
	}

	return &core{
		db:        db,
		registry:  reg,
		metrics:   m,
		runner:    runner,
		points:    pts,
		engine:    engine,
		community: community.NewService(db, engine, logger),
	}, nil
}

func (c *core) Close() error {
	return c.db.Close()
}
