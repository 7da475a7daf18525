package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/model"
)

// RoomAccess decides whether a user may subscribe to a room.
type RoomAccess interface {
	CanRead(ctx context.Context, userID int64, c model.Context) (bool, error)
}

// HandleWebSocket upgrades an authenticated request and subscribes it to the
// room named by the room query parameter, e.g. ?room=group_7.
func HandleWebSocket(hub *Hub, access RoomAccess, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := model.ParseRoom(r.URL.Query().Get("room"))
		if err != nil {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}
		ok, err := access.CanRead(r.Context(), userID, c)
		if err != nil {
			logger.ErrorContext(r.Context(), "websocket: check room access", "error", err, "room", c.Room())
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			logger.WarnContext(r.Context(), "websocket: accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, c.Room(), userID)
		if err := client.Run(r.Context()); err != nil {
			conn.Close(ws.StatusGoingAway, "server shutting down")
			return
		}
		conn.Close(ws.StatusNormalClosure, "")
	}
}
