package handlers

import (
	"net/http"

	"clanchat/internal/auth"
	"clanchat/internal/config"
	"clanchat/internal/metrics"
	"clanchat/internal/services"
	ws "clanchat/internal/websocket"

	"github.com/gorilla/mux"
)

type Deps struct {
	Auth          *auth.Service
	Clans         *services.ClanService
	Chat          *services.ChatService
	Notifications *services.NotificationService
	HubManager    *ws.Manager
	Metrics       *metrics.Metrics
	Media         config.MediaConfig
}

// NewRouter wires every REST route, the socket endpoint and the ops endpoints.
func NewRouter(d Deps) http.Handler {
	authHandlers := NewAuthHandlers(d.Auth)
	clanHandlers := NewClanHandlers(d.Clans)
	chatHandlers := NewChatHandlers(d.Chat)
	notificationHandlers := NewNotificationHandlers(d.Notifications)
	uploadHandlers := NewUploadHandlers(d.Media)
	wsHandlers := NewWebSocketHandlers(d.Auth, d.HubManager)

	r := mux.NewRouter()
	r.Use(Instrument(d.Metrics))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/register", authHandlers.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", authHandlers.Login).Methods(http.MethodPost)
	r.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	api := r.NewRoute().Subrouter()
	api.Use(RequireAuth(d.Auth))

	api.HandleFunc("/clans", clanHandlers.ListClans).Methods(http.MethodGet)
	api.HandleFunc("/clans", clanHandlers.CreateClan).Methods(http.MethodPost)
	api.HandleFunc("/clans/{id}/members", clanHandlers.GetMembers).Methods(http.MethodGet)
	api.HandleFunc("/clans/{id}/requests", clanHandlers.RequestToJoin).Methods(http.MethodPost)
	api.HandleFunc("/clans/{id}/requests/{userId}/accept", clanHandlers.AcceptRequest).Methods(http.MethodPost)
	api.HandleFunc("/clans/{id}/requests/{userId}/reject", clanHandlers.RejectRequest).Methods(http.MethodPost)

	api.HandleFunc("/rooms/{id}/messages", chatHandlers.History).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/messages", chatHandlers.PostMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", chatHandlers.DeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/reactions", chatHandlers.React).Methods(http.MethodPost)

	api.HandleFunc("/notifications", notificationHandlers.List).Methods(http.MethodGet)
	api.HandleFunc("/uploads", uploadHandlers.Upload).Methods(http.MethodPost)

	return Recover(CORS(r))
}

// Endpoints lists the routes for the startup banner.
var Endpoints = []string{
	"POST   /register",
	"POST   /login",
	"GET    /clans",
	"POST   /clans",
	"GET    /clans/{id}/members",
	"POST   /clans/{id}/requests",
	"POST   /clans/{id}/requests/{userId}/accept",
	"POST   /clans/{id}/requests/{userId}/reject",
	"GET    /rooms/{id}/messages",
	"POST   /rooms/{id}/messages",
	"DELETE /messages/{id}",
	"POST   /messages/{id}/reactions",
	"GET    /notifications",
	"POST   /uploads",
	"GET    /ws",
}
