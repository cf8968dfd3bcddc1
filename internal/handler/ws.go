package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/devaloi/roomrelay/internal/client"
	"github.com/devaloi/roomrelay/internal/hub"
	"github.com/devaloi/roomrelay/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS handles WebSocket upgrade requests. An optional ?token= query
// parameter must verify; its username becomes the connection's claimed name.
func ServeWS(h *hub.Hub, tokens middleware.TokenVerifier, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var claimed string
		if token := r.URL.Query().Get("token"); token != "" {
			claims, err := tokens.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			claimed = claims.Username
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade error", "err", err)
			return
		}

		client.New(h, conn, claimed, log).Start()
	}
}
