package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/moderation"
)

type ModerationHandler struct {
	svc    *moderation.Service
	logger *slog.Logger
}

func NewModerationHandler(svc *moderation.Service, logger *slog.Logger) *ModerationHandler {
	return &ModerationHandler{svc: svc, logger: logger}
}

type warningRequest struct {
	ContextType  string `json:"context_type" validate:"required"`
	ContextID    int64  `json:"context_id" validate:"required,gt=0"`
	TargetUserID int64  `json:"target_user_id" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"required,max=500"`
}

func (h *ModerationHandler) IssueWarning(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req warningRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := parseContext(req.ContextType, itoa(req.ContextID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.IssueWarning(r.Context(), moderation.WarningRequest{
		Context:      c,
		TargetUserID: req.TargetUserID,
		IssuedBy:     actor.UserID,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ModerationHandler) ListWarnings(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := queryContext(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.svc.ListWarnings(r.Context(), actor.UserID, c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Status reports a member's standing. user_id defaults to the caller.
func (h *ModerationHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := queryContext(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID, err := queryInt64(r, "user_id", actor.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.svc.Status(r.Context(), actor.UserID, c, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ModerationHandler) Roster(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := queryContext(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.svc.Roster(r.Context(), actor.UserID, c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.svc.Unban(r.Context(), actor.UserID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
