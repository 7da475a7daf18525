package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/chat"
	"github.com/dukerupert/huddle/internal/model"
)

type ChatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

type sendRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

func pathContext(r *http.Request) (model.Context, error) {
	return parseContext(r.PathValue("context_type"), r.PathValue("id"))
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := pathContext(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msg, err := h.svc.Send(r.Context(), actor.UserID, c, req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := pathContext(r)
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
	limit := clampLimit(rawLimit, chat.DefaultHistoryLimit, chat.MaxHistoryLimit)

	list, err := h.svc.History(r.Context(), actor.UserID, c, limit, before)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(list, limit, func(m model.Message) int64 { return m.ID }))
}
