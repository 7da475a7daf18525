package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/attendance"
)

type AttendanceHandler struct {
	svc    *attendance.Service
	logger *slog.Logger
}

func NewAttendanceHandler(svc *attendance.Service, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, logger: logger}
}

type attendeeRequest struct {
	UserID  int64 `json:"user_id" validate:"required,gt=0"`
	Present *bool `json:"present" validate:"required"`
}

type markAttendanceRequest struct {
	Attendees []attendeeRequest `json:"attendees" validate:"required,min=1,dive"`
}

// Mark records attendance for the {id} activity.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
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
	var req markAttendanceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	marks := make([]attendance.Mark, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		marks = append(marks, attendance.Mark{UserID: a.UserID, Present: *a.Present})
	}

	res, err := h.svc.MarkAttendance(r.Context(), actor.UserID, id, marks)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
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
	list, err := h.svc.List(r.Context(), actor.UserID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
