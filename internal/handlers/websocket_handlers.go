package handlers

import (
	"net/http"

	"clanchat/internal/auth"
	ws "clanchat/internal/websocket"
	"clanchat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hubManager  *ws.Manager
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hubManager *ws.Manager) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		hubManager:  hubManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket opens the push channel. Rooms are bound afterwards with joinRoom events.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), tokenStr)
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	h.hubManager.Attach(conn, user)
}
