// Package notify keeps a user's notification feed: pushed events and entries
// derived from clan data, merged under one canonical id.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"clanchat/internal/client/optimistic"
	"clanchat/internal/client/socket"
	"clanchat/internal/models"
	"clanchat/pkg/logger"
)

type API interface {
	Clans(ctx context.Context) ([]*models.Clan, error)
	Notifications(ctx context.Context) ([]*models.Notification, error)
	AcceptRequest(ctx context.Context, clanID, userID string) error
	RejectRequest(ctx context.Context, clanID, userID string) error
}

type Socket interface {
	Emit(event models.EventName, payload interface{}) error
	Subscribe(event models.EventName, h socket.Handler) *socket.Subscription
}

// Feed is a per-user notification list, newest first.
type Feed struct {
	selfID string
	api    API
	sock   Socket

	mu       sync.RWMutex
	items    []*models.Notification
	subs     []*socket.Subscription
	onChange func()
}

func NewFeed(selfID string, api API, sock Socket) *Feed {
	return &Feed{selfID: selfID, api: api, sock: sock}
}

// OnChange registers fn to run after every change to the feed.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *Feed) changed() {
	f.mu.RLock()
	fn := f.onChange
	f.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Start subscribes to the notification events and loads the initial feed.
// Starting a started feed only refreshes it.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.subs == nil {
		upsert := func(event models.EventName) socket.Handler {
			return func(data json.RawMessage) { f.onNotification(event, data) }
		}
		f.subs = []*socket.Subscription{
			f.sock.Subscribe(models.EventJoinRequestNotification, upsert(models.EventJoinRequestNotification)),
			f.sock.Subscribe(models.EventRequestPending, upsert(models.EventRequestPending)),
			f.sock.Subscribe(models.EventRequestAccepted, upsert(models.EventRequestAccepted)),
			f.sock.Subscribe(models.EventRequestRejected, upsert(models.EventRequestRejected)),
			f.sock.Subscribe(models.EventNotificationMarkedAsRead, f.onMarkedAsRead),
		}
	}
	f.mu.Unlock()
	return f.Refresh(ctx)
}

func (f *Feed) Stop() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Refresh merges the stored notifications and the join requests derived from
// the clan list.
func (f *Feed) Refresh(ctx context.Context) error {
	stored, err := f.api.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	clans, err := f.api.Clans(ctx)
	if err != nil {
		return fmt.Errorf("load clans: %w", err)
	}
	batch := append(stored, Derive(clans, f.selfID)...)

	// Oldest first, so the newest ends up in front.
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].CreatedAt.Before(batch[j].CreatedAt) })
	f.mu.Lock()
	for _, n := range batch {
		f.upsertLocked(n)
	}
	f.mu.Unlock()
	f.changed()
	return nil
}

// Derive lists one join-request notification per pending request in every
// clan userID leads or co-leads.
func Derive(clans []*models.Clan, userID string) []*models.Notification {
	var out []*models.Notification
	for _, c := range clans {
		if !manages(c, userID) {
			continue
		}
		for _, r := range c.PendingRequests {
			if r.Status != "" && r.Status != models.RequestPending {
				continue
			}
			out = append(out, &models.Notification{
				ID:        models.NotificationID(c.ID, r.UserID, models.NotifyJoinRequest),
				Type:      models.NotifyJoinRequest,
				Content:   fmt.Sprintf("%s wants to join %s", r.UserName, c.Name),
				UserID:    r.UserID,
				UserName:  r.UserName,
				ClanID:    c.ID,
				ClanName:  c.Name,
				CreatedAt: r.CreatedAt,
			})
		}
	}
	return out
}

func manages(c *models.Clan, userID string) bool {
	if c.LeaderID == userID {
		return true
	}
	for _, m := range c.Members {
		if m.ID == userID {
			return m.Role.CanManageRequests()
		}
	}
	return false
}

// Upsert adds n in front, or replaces the entry with the same id in place.
// A seen entry stays seen. It reports whether n was new.
func (f *Feed) Upsert(n *models.Notification) bool {
	f.mu.Lock()
	added := f.upsertLocked(n)
	f.mu.Unlock()
	f.changed()
	return added
}

func (f *Feed) upsertLocked(n *models.Notification) bool {
	cp := *n
	if i := f.indexLocked(n.ID); i >= 0 {
		cp.Seen = cp.Seen || f.items[i].Seen
		f.items[i] = &cp
		return false
	}
	f.items = append([]*models.Notification{&cp}, f.items...)
	return true
}

func (f *Feed) indexLocked(id string) int {
	for i, n := range f.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Items returns a snapshot, newest first.
func (f *Feed) Items() []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Notification, len(f.items))
	for i, n := range f.items {
		out[i] = *n
	}
	return out
}

func (f *Feed) Get(id string) (models.Notification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i := f.indexLocked(id); i >= 0 {
		return *f.items[i], true
	}
	return models.Notification{}, false
}

// Unseen is the badge count.
func (f *Feed) Unseen() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, item := range f.items {
		if !item.Seen {
			n++
		}
	}
	return n
}

// MarkAllSeen flips every unseen entry and tells the user's other sessions.
func (f *Feed) MarkAllSeen() error {
	f.mu.Lock()
	var ids []string
	for _, n := range f.items {
		if !n.Seen {
			n.Seen = true
			ids = append(ids, n.ID)
		}
	}
	f.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	f.changed()
	return f.sock.Emit(models.EventMarkNotificationsSeen, models.NotificationIDsPayload{IDs: ids})
}

// MarkSeen flips the given entries locally. Unknown ids are ignored.
func (f *Feed) MarkSeen(ids []string) {
	f.mu.Lock()
	for _, id := range ids {
		if i := f.indexLocked(id); i >= 0 {
			f.items[i].Seen = true
		}
	}
	f.mu.Unlock()
	f.changed()
}

// Dismiss drops one entry and returns it with its position.
func (f *Feed) Dismiss(id string) (models.Notification, int, bool) {
	f.mu.Lock()
	i := f.indexLocked(id)
	if i < 0 {
		f.mu.Unlock()
		return models.Notification{}, -1, false
	}
	removed := *f.items[i]
	f.items = append(f.items[:i], f.items[i+1:]...)
	f.mu.Unlock()
	f.changed()
	return removed, i, true
}

func (f *Feed) restore(pos int, n models.Notification) {
	f.mu.Lock()
	if f.indexLocked(n.ID) < 0 {
		if pos > len(f.items) {
			pos = len(f.items)
		}
		f.items = append(f.items, nil)
		copy(f.items[pos+1:], f.items[pos:])
		f.items[pos] = &n
	}
	f.mu.Unlock()
	f.changed()
}

func (f *Feed) Clear() {
	f.mu.Lock()
	f.items = nil
	f.mu.Unlock()
	f.changed()
}

// Accept admits userID into clanID. The request disappears from the feed at
// once and comes back if the server refuses. The requester is told only after
// the server stored the decision.
func (f *Feed) Accept(ctx context.Context, clanID, userID string) error {
	return f.decide(ctx, clanID, userID, true)
}

func (f *Feed) Reject(ctx context.Context, clanID, userID string) error {
	return f.decide(ctx, clanID, userID, false)
}

func (f *Feed) decide(ctx context.Context, clanID, userID string, accept bool) error {
	id := models.NotificationID(clanID, userID, models.NotifyJoinRequest)
	call, event := f.api.RejectRequest, models.EventRejectRequest
	if accept {
		call, event = f.api.AcceptRequest, models.EventAcceptRequest
	}

	var removed models.Notification
	pos, had := -1, false
	err := optimistic.Run(ctx, optimistic.Tx{
		Apply: func() { removed, pos, had = f.Dismiss(id) },
		Inverse: func() {
			if had {
				f.restore(pos, removed)
			}
		},
	}, func(ctx context.Context) error {
		return call(ctx, clanID, userID)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}

	if err := f.sock.Emit(event, models.RequestActionPayload{ClanID: clanID, UserID: userID}); err != nil {
		return fmt.Errorf("decision stored but requester not notified: %w", err)
	}
	return nil
}

func (f *Feed) onNotification(event models.EventName, data json.RawMessage) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		logger.Warn("Dropping malformed %s event: %v", event, err)
		return
	}
	if n.ID == "" {
		logger.Warn("Dropping %s event without an id", event)
		return
	}
	if n.Type == models.NotifyRequestAccepted || n.Type == models.NotifyRequestRejected {
		f.Dismiss(models.NotificationID(n.ClanID, f.selfID, models.NotifyRequestPending))
	}
	f.Upsert(&n)
}

func (f *Feed) onMarkedAsRead(data json.RawMessage) {
	var p models.NotificationIDsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("Dropping malformed %s event: %v", models.EventNotificationMarkedAsRead, err)
		return
	}
	f.MarkSeen(p.IDs)
}
