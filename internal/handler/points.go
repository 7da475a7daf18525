package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/points"
)

type PointsHandler struct {
	svc    *points.Service
	logger *slog.Logger
}

func NewPointsHandler(svc *points.Service, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{svc: svc, logger: logger}
}

type pointsRequest struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	Points      int64  `json:"points" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=255"`
	ContextType string `json:"context_type" validate:"required_with=ContextID"`
	ContextID   int64  `json:"context_id" validate:"required_with=ContextType"`
}

func (h *PointsHandler) Award(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.svc.Award)
}

func (h *PointsHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.svc.Deduct)
}

// change handles manual adjustments, which are restricted to moderators.
func (h *PointsHandler) change(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, c points.Change) (*points.Result, error)) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !auth.IsModerator(r.Context()) {
		writeError(w, r, h.logger, apperr.Forbidden("only organizers can adjust points"))
		return
	}
	var req pointsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var c model.Context
	if req.ContextType != "" {
		c, err = parseContext(req.ContextType, itoa(req.ContextID))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	res, err := apply(r.Context(), points.Change{
		UserID:    req.UserID,
		Points:    req.Points,
		Reason:    req.Reason,
		Context:   c,
		CreatedBy: &actor.UserID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// targetUser resolves the {id} path parameter and checks the caller may
// read that user's points.
func (h *PointsHandler) targetUser(r *http.Request) (int64, error) {
	actor, err := currentUser(r)
	if err != nil {
		return 0, err
	}
	id, err := parseIDParam(r)
	if err != nil {
		return 0, err
	}
	if id != actor.UserID && !auth.IsModerator(r.Context()) {
		return 0, apperr.Forbidden("not allowed to view another user's points")
	}
	return id, nil
}

func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := h.targetUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := h.targetUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rawLimit, err := queryInt64(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	before, err := queryInt64(r, "before", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit := clampLimit(rawLimit, points.DefaultHistoryLimit, points.MaxHistoryLimit)

	entries, err := h.svc.History(r.Context(), id, limit, before)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(entries, limit, func(e model.PointsEntry) int64 { return e.ID }))
}
