package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clanchat/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryDB is an in-process Database. It backs tests and DATABASE_URL=memory.
type MemoryDB struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	usersByEmail  map[string]string
	clans         map[string]*models.Clan
	members       map[string]map[string]models.Role
	requests      map[string]map[string]*models.JoinRequest
	messages      map[string]*models.Message
	roomOrder     map[string][]string
	reactions     map[string]map[string]string
	notifications map[string]map[string]*models.Notification
	hashCost      int
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:         make(map[string]*models.User),
		usersByEmail:  make(map[string]string),
		clans:         make(map[string]*models.Clan),
		members:       make(map[string]map[string]models.Role),
		requests:      make(map[string]map[string]*models.JoinRequest),
		messages:      make(map[string]*models.Message),
		roomOrder:     make(map[string][]string),
		reactions:     make(map[string]map[string]string),
		notifications: make(map[string]map[string]*models.Notification),
		hashCost:      bcrypt.MinCost,
	}
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *db.users[id]
	return &u, nil
}

func (db *MemoryDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), db.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := db.usersByEmail[key]; exists {
		return nil, fmt.Errorf("failed to create user: %w", ErrDuplicate)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		Avatar:       req.Avatar,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	db.users[u.ID] = u
	db.usersByEmail[key] = u.ID
	out := *u
	return &out, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

func (db *MemoryDB) CreateClan(ctx context.Context, name, leaderID string) (*models.Clan, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, c := range db.clans {
		if c.Name == name {
			return nil, fmt.Errorf("failed to create clan: %w", ErrDuplicate)
		}
	}
	if _, ok := db.users[leaderID]; !ok {
		return nil, ErrNotFound
	}
	clan := &models.Clan{ID: uuid.NewString(), Name: name, LeaderID: leaderID, CreatedAt: time.Now().UTC()}
	db.clans[clan.ID] = clan
	db.members[clan.ID] = map[string]models.Role{leaderID: models.RoleLeader}
	out := *clan
	return &out, nil
}

func (db *MemoryDB) GetClan(ctx context.Context, id string) (*models.Clan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.clans[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (db *MemoryDB) ListClans(ctx context.Context) ([]*models.Clan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	clans := make([]*models.Clan, 0, len(db.clans))
	for id, c := range db.clans {
		out := *c
		out.Members = db.membersLocked(id)
		out.PendingRequests = db.pendingLocked(id)
		clans = append(clans, &out)
	}
	sort.Slice(clans, func(i, j int) bool { return clans[i].Name < clans[j].Name })
	return clans, nil
}

func (db *MemoryDB) AddMember(ctx context.Context, clanID, userID string, role models.Role) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.clans[clanID]; !ok {
		return ErrNotFound
	}
	db.members[clanID][userID] = role
	return nil
}

func (db *MemoryDB) RemoveMember(ctx context.Context, clanID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.members[clanID][userID]; !ok {
		return ErrNotFound
	}
	delete(db.members[clanID], userID)
	return nil
}

func (db *MemoryDB) GetMemberRole(ctx context.Context, clanID, userID string) (models.Role, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	role, ok := db.members[clanID][userID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (db *MemoryDB) GetClanMembers(ctx context.Context, clanID string) ([]models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if _, ok := db.clans[clanID]; !ok {
		return nil, ErrNotFound
	}
	return db.membersLocked(clanID), nil
}

func (db *MemoryDB) membersLocked(clanID string) []models.Member {
	var members []models.Member
	for userID, role := range db.members[clanID] {
		u := db.users[userID]
		members = append(members, models.Member{ID: userID, Name: u.Username, Avatar: u.Avatar, Role: role})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members
}

func (db *MemoryDB) pendingLocked(clanID string) []models.JoinRequest {
	var out []models.JoinRequest
	for _, r := range db.requests[clanID] {
		if r.Status == models.RequestPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (db *MemoryDB) CreateJoinRequest(ctx context.Context, clanID, userID string) (*models.JoinRequest, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.clans[clanID]; !ok {
		return nil, ErrNotFound
	}
	u, ok := db.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if db.requests[clanID] == nil {
		db.requests[clanID] = make(map[string]*models.JoinRequest)
	}
	if existing, ok := db.requests[clanID][userID]; ok && existing.Status == models.RequestPending {
		return nil, ErrDuplicate
	}
	req := &models.JoinRequest{
		ClanID:    clanID,
		UserID:    userID,
		UserName:  u.Username,
		Status:    models.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	db.requests[clanID][userID] = req
	out := *req
	return &out, nil
}

func (db *MemoryDB) ResolveJoinRequest(ctx context.Context, clanID, userID string, status models.RequestStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	req, ok := db.requests[clanID][userID]
	if !ok || req.Status != models.RequestPending {
		return ErrNotFound
	}
	req.Status = status
	if status == models.RequestAccepted {
		if _, member := db.members[clanID][userID]; !member {
			db.members[clanID][userID] = models.RoleMember
		}
	}
	return nil
}

func (db *MemoryDB) ListPendingRequests(ctx context.Context, clanID string) ([]models.JoinRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.pendingLocked(clanID), nil
}

func (db *MemoryDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.messages[msg.ID]; exists {
		return ErrDuplicate
	}
	stored := *msg
	stored.Reactions = nil
	db.messages[msg.ID] = &stored
	db.roomOrder[msg.RoomID] = append(db.roomOrder[msg.RoomID], msg.ID)
	return nil
}

func (db *MemoryDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return db.copyMessageLocked(m), nil
}

func (db *MemoryDB) copyMessageLocked(m *models.Message) *models.Message {
	out := *m
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	out.Reactions = nil
	members := make([]string, 0, len(db.reactions[m.ID]))
	for member := range db.reactions[m.ID] {
		members = append(members, member)
	}
	sort.Strings(members)
	for _, member := range members {
		out.Reactions = append(out.Reactions, models.Reaction{
			MemberID: member, Emoji: db.reactions[m.ID][member], MessageID: m.ID,
		})
	}
	return &out
}

func (db *MemoryDB) DeleteMessage(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.messages[id]
	if !ok {
		return ErrNotFound
	}
	delete(db.messages, id)
	delete(db.reactions, id)
	order := db.roomOrder[m.RoomID]
	for i, mid := range order {
		if mid == id {
			db.roomOrder[m.RoomID] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (db *MemoryDB) LoadMessages(ctx context.Context, roomID, beforeID string, limit int) ([]*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	order := db.roomOrder[roomID]
	end := len(order)
	if beforeID != "" {
		end = 0
		for i, id := range order {
			if id == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]*models.Message, 0, end-start)
	for _, id := range order[start:end] {
		out = append(out, db.copyMessageLocked(db.messages[id]))
	}
	return out, nil
}

func (db *MemoryDB) AdvanceStatus(ctx context.Context, id string, status models.MessageStatus) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	if !m.Status.CanAdvanceTo(status) {
		return false, nil
	}
	m.Status = status
	return true, nil
}

func (db *MemoryDB) SetReaction(ctx context.Context, messageID, memberID, emoji string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.messages[messageID]; !ok {
		return ErrNotFound
	}
	if db.reactions[messageID] == nil {
		db.reactions[messageID] = make(map[string]string)
	}
	db.reactions[messageID][memberID] = emoji
	return nil
}

func (db *MemoryDB) ClearReaction(ctx context.Context, messageID, memberID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.reactions[messageID], memberID)
	return nil
}

func (db *MemoryDB) SaveNotification(ctx context.Context, userID string, n *models.Notification) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if db.notifications[userID] == nil {
		db.notifications[userID] = make(map[string]*models.Notification)
	}
	stored := *n
	db.notifications[userID][n.ID] = &stored
	return nil
}

func (db *MemoryDB) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*models.Notification, 0, len(db.notifications[userID]))
	for _, n := range db.notifications[userID] {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *MemoryDB) MarkNotificationsSeen(ctx context.Context, userID string, ids []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, id := range ids {
		if n, ok := db.notifications[userID][id]; ok {
			n.Seen = true
		}
	}
	return nil
}

func (db *MemoryDB) DeleteNotification(ctx context.Context, userID, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.notifications[userID], id)
	return nil
}
