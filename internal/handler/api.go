package handler

import (
	"net/http"
	"time"

	"github.com/devaloi/roomrelay/internal/hub"
)

// UserLister lists the usernames currently online.
type UserLister interface {
	ListUsernames() []string
}

// Health reports liveness, uptime in seconds and the number of online users.
func Health(h *hub.Hub, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"uptime":    time.Since(started).Seconds(),
			"users":     h.Online(),
		})
	}
}

// ListRooms returns every known room with member and message counts.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := h.ListRooms()
		if rooms == nil {
			writeError(w, http.StatusServiceUnavailable, "hub stopped")
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

// ListUsers returns the sorted usernames currently online.
func ListUsers(users UserLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := users.ListUsernames()
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": names})
	}
}
