package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"clanchat/internal/models"
	"clanchat/internal/services"
	ws "clanchat/internal/websocket"
	"clanchat/pkg/logger"
)

// SocketEvents routes client push-channel events. Every event that changes
// stored state was already persisted over REST; these only relay.
type SocketEvents struct {
	chat          *services.ChatService
	clans         *services.ClanService
	notifications *services.NotificationService
	hubManager    *ws.Manager
}

func NewSocketEvents(chat *services.ChatService, clans *services.ClanService, notifications *services.NotificationService, hubManager *ws.Manager) *SocketEvents {
	return &SocketEvents{
		chat:          chat,
		clans:         clans,
		notifications: notifications,
		hubManager:    hubManager,
	}
}

func (s *SocketEvents) HandleEvent(ctx context.Context, c *ws.Client, env models.Envelope) error {
	switch env.Event {
	case models.EventJoinRoom:
		var p models.RoomPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if err := s.chat.CanJoinRoom(ctx, p.RoomID, c.UserID()); err != nil {
			return err
		}
		return s.hubManager.JoinRoom(ctx, c, p.RoomID)

	case models.EventLeaveRoom:
		var p models.RoomPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.hubManager.LeaveRoom(ctx, c, p.RoomID)

	case models.EventSendMessage:
		var p models.MessageRef
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.relayMessage(ctx, c, p)

	case models.EventDeleteMessage:
		var p models.MessageRef
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if err := requireBound(c, p.RoomID); err != nil {
			return err
		}
		gone, err := s.chat.Deleted(ctx, p.MessageID)
		if err != nil {
			return err
		}
		if !gone {
			return fmt.Errorf("%w: message %s is still stored", services.ErrInvalidInput, p.MessageID)
		}
		s.hubManager.BroadcastToRoom(p.RoomID, models.EventDeleteMessage, p, "")
		return nil

	case models.EventTyping:
		var p models.TypingPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if err := requireBound(c, p.RoomID); err != nil {
			return err
		}
		if !c.AllowTyping() {
			return nil
		}
		s.hubManager.BroadcastToRoom(p.RoomID, models.EventTyping,
			models.TypingPayload{RoomID: p.RoomID, UserID: c.UserID(), Name: c.Username()}, c.UserID())
		return nil

	case models.EventMessageRead:
		var p models.MessageReadPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		updates, err := s.chat.MarkRead(ctx, p.RoomID, c.UserID(), p.MessageIDs)
		for _, u := range updates {
			s.hubManager.BroadcastToRoom(p.RoomID, models.EventMessageStatusUpdate, u, "")
		}
		return err

	case models.EventMarkNotificationsSeen:
		var p models.NotificationIDsPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		if err := s.notifications.MarkSeen(ctx, c.UserID(), p.IDs); err != nil {
			return err
		}
		s.hubManager.SendToUser(c.UserID(), models.EventNotificationMarkedAsRead, p)
		return nil

	case models.EventAcceptRequest, models.EventRejectRequest:
		var p models.RequestActionPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		accepted := env.Event == models.EventAcceptRequest
		n, err := s.clans.DecisionNotification(ctx, p.ClanID, c.UserID(), p.UserID, accepted)
		if err != nil {
			return err
		}
		event := models.EventRequestRejected
		if accepted {
			event = models.EventRequestAccepted
		}
		s.hubManager.SendToUser(p.UserID, event, n)
		return nil
	}

	return fmt.Errorf("%w: unknown event %q", services.ErrInvalidInput, env.Event)
}

// relayMessage pushes a stored message to its room and promotes it to
// delivered once another member is online to receive it.
func (s *SocketEvents) relayMessage(ctx context.Context, c *ws.Client, p models.MessageRef) error {
	if err := requireBound(c, p.RoomID); err != nil {
		return err
	}
	msg, err := s.chat.Relayable(ctx, p.RoomID, p.MessageID, c.UserID())
	if err != nil {
		return err
	}
	s.hubManager.BroadcastToRoom(p.RoomID, models.EventMessage, msg, "")

	online, err := s.hubManager.OnlineUsers(ctx, p.RoomID)
	if err != nil {
		return err
	}
	for _, id := range online {
		if id == c.UserID() {
			continue
		}
		changed, err := s.chat.AdvanceStatus(ctx, msg.ID, models.StatusDelivered)
		if err != nil {
			return err
		}
		if changed {
			s.hubManager.BroadcastToRoom(p.RoomID, models.EventMessageStatusUpdate,
				models.StatusUpdatePayload{RoomID: p.RoomID, MessageID: msg.ID, Status: models.StatusDelivered}, "")
		}
		break
	}
	return nil
}

func requireBound(c *ws.Client, roomID string) error {
	if !c.InRoom(roomID) {
		return fmt.Errorf("%w: not joined to room %s", services.ErrForbidden, roomID)
	}
	return nil
}

func decodePayload(env models.Envelope, v interface{}) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		logger.Warn("Malformed %s payload: %v", env.Event, err)
		return fmt.Errorf("%w: malformed %s payload", services.ErrInvalidInput, env.Event)
	}
	return nil
}
