package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devaloi/roomrelay/internal/auth"
	"github.com/devaloi/roomrelay/internal/hub"
	"github.com/devaloi/roomrelay/internal/middleware"
	"github.com/devaloi/roomrelay/internal/presence"
	"github.com/devaloi/roomrelay/internal/store"
	"github.com/devaloi/roomrelay/internal/upload"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Hub       *hub.Hub
	Presence  *presence.Directory
	Users     store.Users
	Tokens    *auth.Tokens
	Uploads   *upload.Store
	StaticDir string
	Started   time.Time
	Logger    *slog.Logger
}

// Routes wires every endpoint and wraps the mux in logging and CORS.
func Routes(d Deps) http.Handler {
	accounts := NewAccounts(d.Users, d.Tokens, d.Logger)
	guard := middleware.RequireToken(d.Tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", ServeWS(d.Hub, d.Tokens, d.Logger))
	mux.HandleFunc("GET /health", Health(d.Hub, d.Started))
	mux.Handle("GET /api/rooms", guard(ListRooms(d.Hub)))
	mux.HandleFunc("GET /api/users", ListUsers(d.Presence))
	mux.HandleFunc("POST /signup", accounts.Signup)
	mux.HandleFunc("POST /login", accounts.Login)
	mux.Handle("POST /verify-token", guard(http.HandlerFunc(accounts.VerifyToken)))
	mux.Handle("POST /update-account", guard(http.HandlerFunc(accounts.UpdateAccount)))
	mux.HandleFunc("POST /upload", Upload(d.Uploads, d.Logger))
	mux.Handle("GET "+upload.URLPrefix, http.StripPrefix(upload.URLPrefix, http.FileServer(http.Dir(d.Uploads.Dir()))))
	mux.Handle("GET /metrics", promhttp.Handler())
	if d.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(d.StaticDir)))
	}

	return middleware.Logging(d.Logger)(middleware.CORS(mux))
}
