package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clanchat/internal/database"
	"clanchat/internal/models"
	"clanchat/pkg/logger"
)

type ClanService struct {
	db     database.Database
	pusher Pusher
}

func NewClanService(db database.Database, pusher Pusher) *ClanService {
	return &ClanService{db: db, pusher: pusherOrNop(pusher)}
}

func (s *ClanService) CreateClan(ctx context.Context, req *models.CreateClanRequest, leaderID string) (*models.Clan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: clan name is required", ErrInvalidInput)
	}
	return s.db.CreateClan(ctx, name, leaderID)
}

func (s *ClanService) ListClans(ctx context.Context) ([]*models.Clan, error) {
	return s.db.ListClans(ctx)
}

// GetRoster returns the members of a clan; only members may read it.
func (s *ClanService) GetRoster(ctx context.Context, clanID, userID string) ([]models.Member, error) {
	if _, err := s.db.GetClan(ctx, clanID); err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.db, clanID, userID); err != nil {
		return nil, err
	}
	return s.db.GetClanMembers(ctx, clanID)
}

// RequestToJoin opens a pending request and notifies the requester and the clan's managers.
func (s *ClanService) RequestToJoin(ctx context.Context, clanID string, user *models.User) (*models.JoinRequest, error) {
	clan, err := s.db.GetClan(ctx, clanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.GetMemberRole(ctx, clanID, user.ID); err == nil {
		return nil, fmt.Errorf("already a member: %w", database.ErrDuplicate)
	}

	req, err := s.db.CreateJoinRequest(ctx, clanID, user.ID)
	if err != nil {
		return nil, err
	}
	req.UserName = user.Username

	// A new request supersedes any earlier decision.
	s.clearDecisions(ctx, clanID, user.ID, "")

	now := time.Now().UTC()
	pending := &models.Notification{
		ID:        models.NotificationID(clanID, user.ID, models.NotifyRequestPending),
		Type:      models.NotifyRequestPending,
		Content:   fmt.Sprintf("Your request to join %s is pending", clan.Name),
		UserID:    user.ID,
		UserName:  user.Username,
		ClanID:    clan.ID,
		ClanName:  clan.Name,
		CreatedAt: now,
	}
	s.store(ctx, user.ID, pending)
	s.pusher.SendToUser(user.ID, models.EventRequestPending, pending)

	incoming := &models.Notification{
		ID:        models.NotificationID(clanID, user.ID, models.NotifyJoinRequest),
		Type:      models.NotifyJoinRequest,
		Content:   fmt.Sprintf("%s wants to join %s", user.Username, clan.Name),
		UserID:    user.ID,
		UserName:  user.Username,
		ClanID:    clan.ID,
		ClanName:  clan.Name,
		CreatedAt: now,
	}
	managers, err := s.managers(ctx, clanID)
	if err != nil {
		return nil, err
	}
	for _, m := range managers {
		s.store(ctx, m.ID, incoming)
		s.pusher.SendToUser(m.ID, models.EventJoinRequestNotification, incoming)
	}

	return req, nil
}

// AcceptRequest admits a pending requester. Only leaders and co-leaders may decide.
func (s *ClanService) AcceptRequest(ctx context.Context, clanID, actorID, userID string) error {
	return s.resolve(ctx, clanID, actorID, userID, models.RequestAccepted)
}

func (s *ClanService) RejectRequest(ctx context.Context, clanID, actorID, userID string) error {
	return s.resolve(ctx, clanID, actorID, userID, models.RequestRejected)
}

func (s *ClanService) resolve(ctx context.Context, clanID, actorID, userID string, status models.RequestStatus) error {
	if err := s.requireManager(ctx, clanID, actorID); err != nil {
		return err
	}
	if err := s.db.ResolveJoinRequest(ctx, clanID, userID, status); err != nil {
		return err
	}

	// The request is handled; drop it from every manager's feed.
	managers, err := s.managers(ctx, clanID)
	if err != nil {
		return err
	}
	requestID := models.NotificationID(clanID, userID, models.NotifyJoinRequest)
	for _, m := range managers {
		if err := s.db.DeleteNotification(ctx, m.ID, requestID); err != nil {
			logger.Error("Error clearing join request notification for %s: %v", m.ID, err)
		}
	}
	if err := s.db.DeleteNotification(ctx, userID, models.NotificationID(clanID, userID, models.NotifyRequestPending)); err != nil {
		logger.Error("Error clearing pending notification for %s: %v", userID, err)
	}

	decision, err := s.decisionNotification(ctx, clanID, userID, status)
	if err != nil {
		return err
	}
	s.clearDecisions(ctx, clanID, userID, decision.Type)
	s.store(ctx, userID, decision)
	return nil
}

// clearDecisions drops userID's stored decision notifications for the clan, except keep.
func (s *ClanService) clearDecisions(ctx context.Context, clanID, userID string, keep models.NotificationType) {
	for _, typ := range []models.NotificationType{models.NotifyRequestAccepted, models.NotifyRequestRejected} {
		if typ == keep {
			continue
		}
		if err := s.db.DeleteNotification(ctx, userID, models.NotificationID(clanID, userID, typ)); err != nil {
			logger.Error("Error clearing %s notification for %s: %v", typ, userID, err)
		}
	}
}

// DecisionNotification returns the stored notification telling userID how actorID decided
// their request. It fails unless that decision is persisted and still current, so pushes
// never run ahead of the database.
func (s *ClanService) DecisionNotification(ctx context.Context, clanID, actorID, userID string, accepted bool) (*models.Notification, error) {
	if err := s.requireManager(ctx, clanID, actorID); err != nil {
		return nil, err
	}
	_, err := s.db.GetMemberRole(ctx, clanID, userID)
	switch {
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return nil, err
	case (err == nil) != accepted:
		return nil, fmt.Errorf("%w: decision no longer current", database.ErrNotFound)
	}
	typ := models.NotifyRequestRejected
	if accepted {
		typ = models.NotifyRequestAccepted
	}
	id := models.NotificationID(clanID, userID, typ)

	stored, err := s.db.ListNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, n := range stored {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: decision not persisted", database.ErrNotFound)
}

func (s *ClanService) decisionNotification(ctx context.Context, clanID, userID string, status models.RequestStatus) (*models.Notification, error) {
	clan, err := s.db.GetClan(ctx, clanID)
	if err != nil {
		return nil, err
	}
	n := &models.Notification{
		UserID:    userID,
		ClanID:    clan.ID,
		ClanName:  clan.Name,
		CreatedAt: time.Now().UTC(),
	}
	if status == models.RequestAccepted {
		n.Type = models.NotifyRequestAccepted
		n.Content = fmt.Sprintf("You have been accepted into %s", clan.Name)
	} else {
		n.Type = models.NotifyRequestRejected
		n.Content = fmt.Sprintf("Your request to join %s was declined", clan.Name)
	}
	n.ID = models.NotificationID(clanID, userID, n.Type)
	return n, nil
}

func (s *ClanService) requireManager(ctx context.Context, clanID, actorID string) error {
	role, err := requireMember(ctx, s.db, clanID, actorID)
	if err != nil {
		return err
	}
	if !role.CanManageRequests() {
		return fmt.Errorf("%w: only leaders can manage requests", ErrForbidden)
	}
	return nil
}

func (s *ClanService) managers(ctx context.Context, clanID string) ([]models.Member, error) {
	members, err := s.db.GetClanMembers(ctx, clanID)
	if err != nil {
		return nil, err
	}
	var out []models.Member
	for _, m := range members {
		if m.Role.CanManageRequests() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *ClanService) store(ctx context.Context, userID string, n *models.Notification) {
	if err := s.db.SaveNotification(ctx, userID, n); err != nil {
		logger.Error("Error saving notification %s for %s: %v", n.ID, userID, err)
	}
}
