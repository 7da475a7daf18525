package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/community"
	"github.com/dukerupert/huddle/internal/model"
)

type CommunityHandler struct {
	svc    *community.Service
	logger *slog.Logger
}

func NewCommunityHandler(svc *community.Service, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{svc: svc, logger: logger}
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *CommunityHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), actor.UserID, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *CommunityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.svc.CreateActivity(r.Context(), actor.UserID, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *CommunityHandler) context(r *http.Request, typ model.ContextType) (int64, model.Context, error) {
	actor, err := currentUser(r)
	if err != nil {
		return 0, model.Context{}, err
	}
	c, err := parseContext(string(typ), r.PathValue("id"))
	if err != nil {
		return 0, model.Context{}, err
	}
	return actor.UserID, c, nil
}

// Join returns a handler joining the {id} group or activity.
func (h *CommunityHandler) Join(typ model.ContextType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, c, err := h.context(r, typ)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		m, err := h.svc.Join(r.Context(), userID, c)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *CommunityHandler) Leave(typ model.ContextType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, c, err := h.context(r, typ)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if err := h.svc.Leave(r.Context(), userID, c); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type profileImageRequest struct {
	URL string `json:"url" validate:"required,http_url,max=2048"`
}

func (h *CommunityHandler) SetProfileImage(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req profileImageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.SetProfileImage(r.Context(), actor.UserID, req.URL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Me returns the caller's user record.
func (h *CommunityHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.User(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
