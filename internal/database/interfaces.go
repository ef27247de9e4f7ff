package database

import (
	"context"
	"errors"

	"clanchat/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type ClanRepository interface {
	CreateClan(ctx context.Context, name, leaderID string) (*models.Clan, error)
	GetClan(ctx context.Context, id string) (*models.Clan, error)
	// ListClans returns every clan with its members and pending requests.
	ListClans(ctx context.Context) ([]*models.Clan, error)
}

type MembershipRepository interface {
	AddMember(ctx context.Context, clanID, userID string, role models.Role) error
	RemoveMember(ctx context.Context, clanID, userID string) error
	// GetMemberRole returns ErrNotFound when the user is not in the clan.
	GetMemberRole(ctx context.Context, clanID, userID string) (models.Role, error)
	GetClanMembers(ctx context.Context, clanID string) ([]models.Member, error)
}

type JoinRequestRepository interface {
	// CreateJoinRequest returns ErrDuplicate while a request is already pending.
	CreateJoinRequest(ctx context.Context, clanID, userID string) (*models.JoinRequest, error)
	// ResolveJoinRequest moves a pending request to accepted or rejected.
	// Accepting also adds the user as a member in the same transaction.
	ResolveJoinRequest(ctx context.Context, clanID, userID string, status models.RequestStatus) error
	ListPendingRequests(ctx context.Context, clanID string) ([]models.JoinRequest, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// LoadMessages returns up to limit messages older than beforeID (all when empty),
	// oldest first, reactions included.
	LoadMessages(ctx context.Context, roomID, beforeID string, limit int) ([]*models.Message, error)
	// AdvanceStatus applies a forward status transition and reports whether it changed anything.
	AdvanceStatus(ctx context.Context, id string, status models.MessageStatus) (bool, error)
}

type ReactionRepository interface {
	SetReaction(ctx context.Context, messageID, memberID, emoji string) error
	ClearReaction(ctx context.Context, messageID, memberID string) error
}

type NotificationRepository interface {
	// SaveNotification upserts by (userID, n.ID); an upsert resets Seen to n.Seen.
	SaveNotification(ctx context.Context, userID string, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error)
	MarkNotificationsSeen(ctx context.Context, userID string, ids []string) error
	DeleteNotification(ctx context.Context, userID, id string) error
}

type Database interface {
	UserRepository
	ClanRepository
	MembershipRepository
	JoinRequestRepository
	MessageRepository
	ReactionRepository
	NotificationRepository
	Close() error
}
