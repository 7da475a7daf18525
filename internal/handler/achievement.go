package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/achievement"
	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/model"
)

type AchievementHandler struct {
	engine *achievement.Engine
	logger *slog.Logger
}

func NewAchievementHandler(engine *achievement.Engine, logger *slog.Logger) *AchievementHandler {
	return &AchievementHandler{engine: engine, logger: logger}
}

func (h *AchievementHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Catalog(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// State returns the caller's points, level and achievements.
func (h *AchievementHandler) State(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	state, err := h.engine.State(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type manualAwardRequest struct {
	UserID        int64 `json:"user_id" validate:"omitempty,gt=0"`
	AchievementID int64 `json:"achievement_id" validate:"required,gt=0"`
}

// Award grants an achievement by id. Moderators only; user_id defaults to
// the caller.
func (h *AchievementHandler) Award(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !auth.IsModerator(r.Context()) {
		writeError(w, r, h.logger, apperr.Forbidden("only organizers can award achievements"))
		return
	}
	var req manualAwardRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	target := req.UserID
	if target == 0 {
		target = actor.UserID
	}

	if _, err := h.engine.ManualAward(r.Context(), target, req.AchievementID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	state, err := h.engine.State(r.Context(), target)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// CheckAll re-evaluates every trigger for the caller and returns the
// resulting state.
func (h *AchievementHandler) CheckAll(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	awarded, err := h.engine.CheckAll(r.Context(), actor.UserID)
	if err != nil {
		// Partial failures still leave earlier grants committed.
		h.logger.WarnContext(r.Context(), "check-all incomplete", "user_id", actor.UserID, "error", err)
	}
	state, err := h.engine.State(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Awarded []string `json:"awarded"`
		*modelState
	}{Awarded: nonNil(awarded), modelState: state})
}

type modelState = model.GamificationState

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
