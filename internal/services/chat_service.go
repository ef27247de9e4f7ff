package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clanchat/internal/database"
	"clanchat/internal/models"

	"github.com/google/uuid"
)

type ChatService struct {
	db           database.Database
	pusher       Pusher
	historyLimit int
}

func NewChatService(db database.Database, pusher Pusher, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{db: db, pusher: pusherOrNop(pusher), historyLimit: historyLimit}
}

// CanJoinRoom reports whether userID may bind to the room. A room is a clan's chat.
func (s *ChatService) CanJoinRoom(ctx context.Context, roomID, userID string) error {
	_, err := requireMember(ctx, s.db, roomID, userID)
	return err
}

// History returns messages oldest first. beforeID pages backwards; limit <= 0 uses the default.
func (s *ChatService) History(ctx context.Context, roomID, userID, beforeID string, limit int) ([]*models.Message, error) {
	if err := s.CanJoinRoom(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.db.LoadMessages(ctx, roomID, beforeID, limit)
}

// Post stores a new message. The returned message carries the canonical id and timestamp.
func (s *ChatService) Post(ctx context.Context, roomID string, sender *models.User, draft models.Draft) (*models.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.CanJoinRoom(ctx, roomID, sender.ID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Text:      draft.Text,
		ImageURL:  draft.ImageURL,
		VoiceURL:  draft.VoiceURL,
		Sender:    models.Sender{ID: sender.ID, Name: sender.Username, Avatar: sender.Avatar},
		CreatedAt: time.Now().UTC(),
		Status:    models.StatusSent,
	}

	if draft.ReplyToID != "" {
		parent, err := s.db.GetMessage(ctx, draft.ReplyToID)
		if err != nil || parent.RoomID != roomID {
			return nil, fmt.Errorf("%w: reply target not in room", ErrInvalidInput)
		}
		msg.ReplyTo = &models.ReplyRef{ID: parent.ID, Text: parent.Text, SenderName: parent.Sender.Name}
	}

	if err := s.db.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// Delete removes a message. Only its sender may delete it.
func (s *ChatService) Delete(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender.ID != userID {
		return nil, fmt.Errorf("%w: not the sender", ErrForbidden)
	}
	if err := s.db.DeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return msg, nil
}

// React sets or (emoji == "") clears the caller's single reaction on a message,
// and tells the rest of the room.
func (s *ChatService) React(ctx context.Context, messageID, userID, emoji string) (*models.ReactionPayload, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.CanJoinRoom(ctx, msg.RoomID, userID); err != nil {
		return nil, err
	}

	if emoji == "" {
		err = s.db.ClearReaction(ctx, messageID, userID)
	} else {
		err = s.db.SetReaction(ctx, messageID, userID, emoji)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store reaction: %w", err)
	}

	payload := &models.ReactionPayload{RoomID: msg.RoomID, MessageID: messageID, MemberID: userID, Emoji: emoji}
	s.pusher.BroadcastToRoom(msg.RoomID, models.EventReactionUpdate, payload, userID)
	return payload, nil
}

// Relayable loads a stored message so a sendMessage push can be relayed. The push
// carries only ids; the stored copy is what the room receives.
func (s *ChatService) Relayable(ctx context.Context, roomID, messageID, senderID string) (*models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID != roomID || msg.Sender.ID != senderID {
		return nil, ErrForbidden
	}
	return msg, nil
}

// AdvanceStatus applies a forward transition; backward or repeated transitions return false.
func (s *ChatService) AdvanceStatus(ctx context.Context, messageID string, status models.MessageStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.db.AdvanceStatus(ctx, messageID, status)
}

// MarkRead promotes other members' messages in the room to read and returns the changes.
func (s *ChatService) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) ([]models.StatusUpdatePayload, error) {
	if err := s.CanJoinRoom(ctx, roomID, readerID); err != nil {
		return nil, err
	}
	var updates []models.StatusUpdatePayload
	for _, id := range messageIDs {
		msg, err := s.db.GetMessage(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return updates, err
		}
		if msg.RoomID != roomID || msg.Sender.ID == readerID {
			continue
		}
		changed, err := s.db.AdvanceStatus(ctx, id, models.StatusRead)
		if err != nil {
			return updates, err
		}
		if changed {
			updates = append(updates, models.StatusUpdatePayload{RoomID: roomID, MessageID: id, Status: models.StatusRead})
		}
	}
	return updates, nil
}

// Deleted reports whether a message is gone from storage, so its deletion may be relayed.
func (s *ChatService) Deleted(ctx context.Context, messageID string) (bool, error) {
	_, err := s.db.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return true, nil
	}
	return false, err
}
