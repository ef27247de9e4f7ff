package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"clanchat/internal/client/optimistic"
	"clanchat/internal/client/socket"
	"clanchat/internal/models"
	"clanchat/pkg/logger"

	"golang.org/x/time/rate"
)

// API is the REST surface a room needs.
type API interface {
	History(ctx context.Context, roomID, beforeID string, limit int) ([]*models.Message, error)
	PostMessage(ctx context.Context, roomID string, draft models.Draft) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	React(ctx context.Context, messageID, emoji string) error
	Roster(ctx context.Context, clanID string) ([]models.Member, error)
}

// Socket is the push channel a room binds to.
type Socket interface {
	Emit(event models.EventName, payload interface{}) error
	Subscribe(event models.EventName, h socket.Handler) *socket.Subscription
}

type Config struct {
	RoomID string
	Self   models.Sender
	API    API
	Socket Socket
	// PageSize bounds each history fetch; 0 uses 50.
	PageSize int
	// TypingDebounce is the minimum gap between outgoing typing events; 0 uses 500ms.
	TypingDebounce time.Duration
	Now            func() time.Time
}

var ErrClosed = errors.New("room is not open")

// Room is a client bound to one clan room.
type Room struct {
	cfg      Config
	store    *Store
	presence *Presence
	typing   *Typing
	limiter  *rate.Limiter

	mu      sync.Mutex
	open    bool
	subs    []*socket.Subscription
	hasMore bool
}

func NewRoom(cfg Config) *Room {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = 500 * time.Millisecond
	}
	return &Room{
		cfg:      cfg,
		store:    NewStore(),
		presence: NewPresence(),
		typing:   NewTyping(cfg.Self.ID, cfg.Now),
		limiter:  rate.NewLimiter(rate.Every(cfg.TypingDebounce), 1),
	}
}

func (r *Room) ID() string { return r.cfg.RoomID }
func (r *Room) Store() *Store { return r.store }
func (r *Room) Presence() *Presence { return r.presence }
func (r *Room) Typing() *Typing { return r.typing }
func (r *Room) Messages() []models.Message { return r.store.Messages() }
func (r *Room) Roster() []models.Member { return r.presence.Roster() }

// Open loads the roster and the newest history page, subscribes to the room's
// push events and announces the join. Opening an open room does nothing.
func (r *Room) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return nil
	}

	members, err := r.cfg.API.Roster(ctx, r.cfg.RoomID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	page, err := r.cfg.API.History(ctx, r.cfg.RoomID, "", r.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	// Nothing reaches a closed room, so state from an earlier Open is stale.
	r.presence.SetMembers(members)
	r.presence.Replace(nil)
	r.store.Reset(page)
	r.hasMore = len(page) == r.cfg.PageSize

	r.subs = []*socket.Subscription{
		r.cfg.Socket.Subscribe(models.EventMessage, r.onMessage),
		r.cfg.Socket.Subscribe(models.EventDeleteMessage, r.onDelete),
		r.cfg.Socket.Subscribe(models.EventMessageStatusUpdate, r.onStatus),
		r.cfg.Socket.Subscribe(models.EventTyping, r.onTyping),
		r.cfg.Socket.Subscribe(models.EventOnlineUsers, r.onOnline),
		r.cfg.Socket.Subscribe(models.EventUserJoined, r.onJoined),
		r.cfg.Socket.Subscribe(models.EventUserLeft, r.onLeft),
		r.cfg.Socket.Subscribe(models.EventReactionUpdate, r.onReaction),
	}
	r.open = true

	if err := r.cfg.Socket.Emit(models.EventJoinRoom, models.RoomPayload{RoomID: r.cfg.RoomID, UserID: r.cfg.Self.ID}); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// Close announces the leave and drops every subscription the room made.
func (r *Room) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil
	}
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
	r.open = false
	r.typing.Stop()

	if err := r.cfg.Socket.Emit(models.EventLeaveRoom, models.RoomPayload{RoomID: r.cfg.RoomID, UserID: r.cfg.Self.ID}); err != nil && !errors.Is(err, socket.ErrNotConnected) {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

func (r *Room) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// HasMore reports whether older history may exist.
func (r *Room) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// LoadOlder fetches the page before the oldest loaded message and puts it on top.
func (r *Room) LoadOlder(ctx context.Context) (int, error) {
	if !r.isOpen() {
		return 0, ErrClosed
	}
	if !r.HasMore() {
		return 0, nil
	}
	before := r.store.OldestID()
	page, err := r.cfg.API.History(ctx, r.cfg.RoomID, before, r.cfg.PageSize)
	if err != nil {
		return 0, fmt.Errorf("load older history: %w", err)
	}
	r.mu.Lock()
	r.hasMore = len(page) == r.cfg.PageSize
	r.mu.Unlock()
	return r.store.Prepend(page), nil
}

// Send posts a message, shows the stored copy, then tells the room. The
// returned message is non-nil whenever the server stored it.
func (r *Room) Send(ctx context.Context, draft models.Draft) (*models.Message, error) {
	if !r.isOpen() {
		return nil, ErrClosed
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	msg, err := r.cfg.API.PostMessage(ctx, r.cfg.RoomID, draft)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	r.store.Append(msg)

	if err := r.cfg.Socket.Emit(models.EventSendMessage, models.MessageRef{RoomID: r.cfg.RoomID, MessageID: msg.ID}); err != nil {
		return msg, fmt.Errorf("message stored but not relayed: %w", err)
	}
	return msg, nil
}

// Delete removes a message locally at once, and puts it back where it was if
// the server refuses.
func (r *Room) Delete(ctx context.Context, messageID string) error {
	if !r.isOpen() {
		return ErrClosed
	}
	var removed models.Message
	pos, had := -1, false
	err := optimistic.Run(ctx, optimistic.Tx{
		Apply: func() { removed, pos, had = r.store.Remove(messageID) },
		Inverse: func() {
			if had {
				r.store.Insert(pos, removed)
			}
		},
	}, func(ctx context.Context) error {
		return r.cfg.API.DeleteMessage(ctx, messageID)
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return r.cfg.Socket.Emit(models.EventDeleteMessage, models.MessageRef{RoomID: r.cfg.RoomID, MessageID: messageID})
}

// React sets the caller's reaction on a message; "" clears it. Reacting with
// the current emoji sets it again rather than toggling.
func (r *Room) React(ctx context.Context, messageID, emoji string) error {
	if !r.isOpen() {
		return ErrClosed
	}
	prev := ""
	err := optimistic.Run(ctx, optimistic.Tx{
		Apply:   func() { prev, _ = r.store.SetReaction(messageID, r.cfg.Self.ID, emoji) },
		Inverse: func() { r.store.SetReaction(messageID, r.cfg.Self.ID, prev) },
	}, func(ctx context.Context) error {
		return r.cfg.API.React(ctx, messageID, emoji)
	})
	if err != nil {
		return fmt.Errorf("react: %w", err)
	}
	return nil
}

// Tally groups a message's reactions for display.
func (r *Room) Tally(messageID string) []EmojiCount {
	return r.store.Tally(messageID)
}

// NotifyTyping emits a typing event unless one went out within the debounce interval.
func (r *Room) NotifyTyping() bool {
	if !r.isOpen() || !r.limiter.Allow() {
		return false
	}
	err := r.cfg.Socket.Emit(models.EventTyping, models.TypingPayload{RoomID: r.cfg.RoomID, UserID: r.cfg.Self.ID, Name: r.cfg.Self.Name})
	return err == nil
}

// MarkRead tells the room these messages were read.
func (r *Room) MarkRead(messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.cfg.Socket.Emit(models.EventMessageRead, models.MessageReadPayload{RoomID: r.cfg.RoomID, MessageIDs: messageIDs})
}

func decode(event models.EventName, data json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("Dropping malformed %s event: %v", event, err)
		return false
	}
	return true
}

func (r *Room) mine(roomID string) bool {
	return roomID == r.cfg.RoomID
}

func (r *Room) onMessage(data json.RawMessage) {
	var msg models.Message
	if !decode(models.EventMessage, data, &msg) || msg.ID == "" || !r.mine(msg.RoomID) {
		return
	}
	r.store.Append(&msg)
}

func (r *Room) onDelete(data json.RawMessage) {
	var p models.MessageRef
	if !decode(models.EventDeleteMessage, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.store.Remove(p.MessageID)
}

func (r *Room) onStatus(data json.RawMessage) {
	var p models.StatusUpdatePayload
	if !decode(models.EventMessageStatusUpdate, data, &p) || !r.mine(p.RoomID) {
		return
	}
	if err := r.store.SetStatus(p.MessageID, p.Status); err != nil {
		logger.Warn("Ignoring status update for %s: %v", p.MessageID, err)
	}
}

func (r *Room) onTyping(data json.RawMessage) {
	var p models.TypingPayload
	if !decode(models.EventTyping, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.typing.Observe(p)
}

func (r *Room) onOnline(data json.RawMessage) {
	var p models.OnlineUsersPayload
	if !decode(models.EventOnlineUsers, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.presence.Replace(p.UserIDs)
}

func (r *Room) onJoined(data json.RawMessage) {
	var p models.RoomPayload
	if !decode(models.EventUserJoined, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.presence.Join(p.UserID)
}

func (r *Room) onLeft(data json.RawMessage) {
	var p models.RoomPayload
	if !decode(models.EventUserLeft, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.presence.Leave(p.UserID)
}

func (r *Room) onReaction(data json.RawMessage) {
	var p models.ReactionPayload
	if !decode(models.EventReactionUpdate, data, &p) || !r.mine(p.RoomID) {
		return
	}
	r.store.SetReaction(p.MessageID, p.MemberID, p.Emoji)
}
