package handlers

import (
	"net/http"

	"clanchat/internal/models"
	"clanchat/internal/services"
)

type NotificationHandlers struct {
	notificationService *services.NotificationService
}

func NewNotificationHandlers(notificationService *services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{notificationService: notificationService}
}

func (h *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	list, err := h.notificationService.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}
