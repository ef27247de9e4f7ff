package services

import (
	"context"

	"clanchat/internal/database"
	"clanchat/internal/models"
)

type NotificationService struct {
	db database.NotificationRepository
}

func NewNotificationService(db database.NotificationRepository) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) List(ctx context.Context, userID string) ([]*models.Notification, error) {
	return s.db.ListNotifications(ctx, userID)
}

func (s *NotificationService) MarkSeen(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.MarkNotificationsSeen(ctx, userID, ids)
}
