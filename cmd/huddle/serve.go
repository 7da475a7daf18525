package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/huddle/internal/attendance"
	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/chat"
	"github.com/dukerupert/huddle/internal/config"
	"github.com/dukerupert/huddle/internal/events"
	"github.com/dukerupert/huddle/internal/jobs"
	"github.com/dukerupert/huddle/internal/middleware"
	"github.com/dukerupert/huddle/internal/moderation"
	"github.com/dukerupert/huddle/internal/server"
	"github.com/dukerupert/huddle/internal/telemetry"
	ws "github.com/dukerupert/huddle/internal/websocket"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, mustConfig(cmd))
		},
	}
}

func serveRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun(cfg)
	if err := cfg.RequireSecret(); err != nil {
		return err
	}
	ctx := cmd.Context()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	c, err := newCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	hub := ws.NewHub(logger, c.metrics)
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)

	var publisher events.Publisher = hub
	if cfg.Transport.Kind == config.TransportRedis {
		client, err := newRedisClient(ctx, cfg.Transport.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client, cfg.Transport.ChannelPrefix)
		g.Go(func() error {
			return events.Relay(gctx, client, cfg.Transport.ChannelPrefix, hub, logger.With("component", "relay"))
		})
		logger.Info("using redis transport", "prefix", cfg.Transport.ChannelPrefix)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	srv := server.New(server.Deps{
		DB:             c.db,
		Hub:            hub,
		Verifier:       tokens,
		Registry:       c.registry,
		Metrics:        c.metrics,
		Moderation:     moderation.NewService(c.db, c.points, publisher, auth.ContextAuthorizer{}, c.runner, c.metrics, logger),
		Points:         c.points,
		Achievements:   c.engine,
		Attendance:     attendance.NewService(c.db, c.points, auth.ContextAuthorizer{}, logger),
		Community:      c.community,
		Chat:           chat.NewService(c.db, publisher, c.engine, c.runner, c.metrics, logger),
		RateLimiter:    limiter,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	scheduler := jobs.NewScheduler(jobs.Config{
		ReconcileSchedule:      cfg.Jobs.ReconcileSchedule,
		RepairMismatches:       cfg.Jobs.RepairMismatches,
		LimiterCleanupSchedule: cfg.Jobs.LimiterCleanupSchedule,
		LimiterIdle:            cfg.Jobs.LimiterIdle,
	}, c.points, srv.RateLimiter(), logger)
	if err := scheduler.Start(gctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		logger.Info("huddle listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// Websocket handlers only return once their clients are cancelled.
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	return g.Wait()
}

func newRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

