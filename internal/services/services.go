package services

import (
	"context"
	"errors"

	"clanchat/internal/database"
	"clanchat/internal/models"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Pusher delivers push events to connected sockets.
type Pusher interface {
	SendToUser(userID string, event models.EventName, payload interface{})
	BroadcastToRoom(roomID string, event models.EventName, payload interface{}, exceptUserID string)
}

type nopPusher struct{}

func (nopPusher) SendToUser(string, models.EventName, interface{})              {}
func (nopPusher) BroadcastToRoom(string, models.EventName, interface{}, string) {}

func pusherOrNop(p Pusher) Pusher {
	if p == nil {
		return nopPusher{}
	}
	return p
}

// requireMember returns the caller's role in the clan, or ErrForbidden.
func requireMember(ctx context.Context, db database.MembershipRepository, clanID, userID string) (models.Role, error) {
	role, err := db.GetMemberRole(ctx, clanID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrForbidden
	}
	return role, err
}
