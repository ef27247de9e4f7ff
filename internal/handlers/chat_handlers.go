package handlers

import (
	"net/http"
	"strconv"

	"clanchat/internal/models"
	"clanchat/internal/services"

	"github.com/gorilla/mux"
)

type ChatHandlers struct {
	chatService *services.ChatService
}

func NewChatHandlers(chatService *services.ChatService) *ChatHandlers {
	return &ChatHandlers{chatService: chatService}
}

// History serves GET /rooms/{id}/messages?before=<id>&limit=<n>, oldest first.
func (h *ChatHandlers) History(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.chatService.History(r.Context(), mux.Vars(r)["id"], user.ID, q.Get("before"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *ChatHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var draft models.Draft
	if !decodeJSON(w, r, &draft) {
		return
	}

	msg, err := h.chatService.Post(r.Context(), mux.Vars(r)["id"], user, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if _, err := h.chatService.Delete(r.Context(), mux.Vars(r)["id"], user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandlers) React(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req models.ReactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reaction, err := h.chatService.React(r.Context(), mux.Vars(r)["id"], user.ID, req.Emoji)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reaction)
}
