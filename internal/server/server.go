package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/huddle/internal/achievement"
	"github.com/dukerupert/huddle/internal/attendance"
	"github.com/dukerupert/huddle/internal/chat"
	"github.com/dukerupert/huddle/internal/community"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/handler"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/middleware"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/moderation"
	"github.com/dukerupert/huddle/internal/points"
	ws "github.com/dukerupert/huddle/internal/websocket"
)

// Deps are the wired services the router exposes.
type Deps struct {
	DB             *database.DB
	Hub            *ws.Hub
	Verifier       middleware.Verifier
	Registry       *prometheus.Registry
	Metrics        *metrics.Metrics
	Moderation     *moderation.Service
	Points         *points.Service
	Achievements   *achievement.Engine
	Attendance     *attendance.Service
	Community      *community.Service
	Chat           *chat.Service
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	deps         Deps
	moderationH  *handler.ModerationHandler
	pointsH      *handler.PointsHandler
	achievementH *handler.AchievementHandler
	attendanceH  *handler.AttendanceHandler
	communityH   *handler.CommunityHandler
	chatH        *handler.ChatHandler
	logger       *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	return &Server{
		deps:         deps,
		moderationH:  handler.NewModerationHandler(deps.Moderation, logger.With("component", "moderation_handler")),
		pointsH:      handler.NewPointsHandler(deps.Points, logger.With("component", "points_handler")),
		achievementH: handler.NewAchievementHandler(deps.Achievements, logger.With("component", "achievement_handler")),
		attendanceH:  handler.NewAttendanceHandler(deps.Attendance, logger.With("component", "attendance_handler")),
		communityH:   handler.NewCommunityHandler(deps.Community, logger.With("component", "community_handler")),
		chatH:        handler.NewChatHandler(deps.Chat, logger.With("component", "chat_handler")),
		logger:       logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.deps.RateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	if s.deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /api/achievements", s.achievementH.Catalog)

	s.registerProtectedRoutes(mux)

	return middleware.RequestID(middleware.RequestLogger(s.logger.With("component", "http"), s.deps.Metrics)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	if err := s.deps.DB.PingContext(ctx); err != nil {
		s.logger.WarnContext(ctx, "health check: database unreachable", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.deps.Verifier)(h)
}

// limited is protected plus per-user rate limiting, for write routes that
// fan out to other users.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.deps.RateLimiter == nil {
		return s.protected(h)
	}
	return s.protected(middleware.RateLimit(s.deps.RateLimiter, middleware.UserOrIP)(h).ServeHTTP)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Moderation
	mux.Handle("POST /api/moderation/warnings", s.limited(s.moderationH.IssueWarning))
	mux.Handle("GET /api/moderation/warnings", s.protected(s.moderationH.ListWarnings))
	mux.Handle("GET /api/moderation/status", s.protected(s.moderationH.Status))
	mux.Handle("GET /api/moderation/roster", s.protected(s.moderationH.Roster))
	mux.Handle("PATCH /api/moderation/memberships/{id}/unban", s.protected(s.moderationH.Unban))

	// Points
	mux.Handle("POST /api/points/award", s.protected(s.pointsH.Award))
	mux.Handle("POST /api/points/deduct", s.protected(s.pointsH.Deduct))
	mux.Handle("GET /api/points/users/{id}/balance", s.protected(s.pointsH.Balance))
	mux.Handle("GET /api/points/users/{id}/history", s.protected(s.pointsH.History))

	// Achievements
	mux.Handle("GET /api/user/achievements", s.protected(s.achievementH.State))
	mux.Handle("POST /api/user/achievements", s.protected(s.achievementH.Award))
	mux.Handle("POST /api/user/achievements/check-all", s.protected(s.achievementH.CheckAll))

	// Community
	mux.Handle("GET /api/profile", s.protected(s.communityH.Me))
	mux.Handle("PUT /api/profile/image", s.protected(s.communityH.SetProfileImage))
	mux.Handle("POST /api/groups", s.protected(s.communityH.CreateGroup))
	mux.Handle("POST /api/groups/{id}/join", s.protected(s.communityH.Join(model.ContextGroup)))
	mux.Handle("POST /api/groups/{id}/leave", s.protected(s.communityH.Leave(model.ContextGroup)))
	mux.Handle("POST /api/activities", s.protected(s.communityH.CreateActivity))
	mux.Handle("POST /api/activities/{id}/join", s.protected(s.communityH.Join(model.ContextActivity)))
	mux.Handle("POST /api/activities/{id}/leave", s.protected(s.communityH.Leave(model.ContextActivity)))
	mux.Handle("POST /api/activities/{id}/attendance", s.protected(s.attendanceH.Mark))
	mux.Handle("GET /api/activities/{id}/attendance", s.protected(s.attendanceH.List))

	// Chat
	mux.Handle("POST /api/chat/{context_type}/{id}/messages", s.limited(s.chatH.Send))
	mux.Handle("GET /api/chat/{context_type}/{id}/messages", s.protected(s.chatH.List))

	// WebSocket
	mux.Handle("GET /ws", s.protected(ws.HandleWebSocket(s.deps.Hub, s.deps.Chat, s.deps.AllowedOrigins, s.logger)))
}
