package models

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotifyJoinRequest     NotificationType = "clan_join_request"
	NotifyRequestPending  NotificationType = "request_pending"
	NotifyRequestAccepted NotificationType = "request_accepted"
	NotifyRequestRejected NotificationType = "request_rejected"
	NotifyGeneric         NotificationType = "generic"
)

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Content   string           `json:"content"`
	UserID    string           `json:"user_id,omitempty"`
	UserName  string           `json:"user_name,omitempty"`
	ClanID    string           `json:"clan_id,omitempty"`
	ClanName  string           `json:"clan_name,omitempty"`
	Seen      bool             `json:"seen"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationID is the canonical id shared by pushed and derived notifications.
func NotificationID(clanID, userID string, typ NotificationType) string {
	return fmt.Sprintf("%s:%s:%s", clanID, userID, typ)
}
