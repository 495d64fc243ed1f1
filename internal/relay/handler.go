package relay

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"tradeacademy.io/support-desk/internal/logger"
)

// Handler upgrades HTTP requests to relay connections. Any client that
// completes the upgrade may join any room.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts browser origins from allowedOrigins ("*" allows any).
// Requests without an Origin header are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	id := uuid.NewString()
	log := logger.L.With(slog.String("conn_id", id), slog.String("remote_addr", r.RemoteAddr))
	client := newClient(id, h.hub, conn, log)
	if !h.hub.register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	log.Info("Relay connection opened")

	go client.writePump()
	go client.readPump()
}
