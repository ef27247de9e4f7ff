package websocket

import (
	"context"
	"sync"
	"time"

	"clanchat/internal/metrics"
	"clanchat/internal/models"
	"clanchat/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// EventHandler handles one client event. A returned error is reported back to
// the sending connection.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, env models.Envelope) error
}

type Options struct {
	Presence    PresenceStore
	Fanout      Fanout
	Metrics     *metrics.Metrics
	TypingRate  rate.Limit
	TypingBurst int
	// IdleTimeout is how long an empty room hub lingers before cleanup.
	IdleTimeout time.Duration
}

// Manager owns the room hubs and the per-user socket registry. It implements
// services.Pusher.
type Manager struct {
	mu       sync.Mutex
	hubs     map[string]*Hub
	users    map[string]map[*Client]struct{}
	opts     Options
	presence PresenceStore
	fanout   Fanout
	metrics  *metrics.Metrics
	handler  EventHandler
}

func NewManager(opts Options) *Manager {
	if opts.Presence == nil {
		opts.Presence = NewMemoryPresence()
	}
	if opts.Fanout == nil {
		opts.Fanout = NewLocalFanout()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.TypingRate <= 0 {
		opts.TypingRate = 2
	}
	if opts.TypingBurst <= 0 {
		opts.TypingBurst = 3
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &Manager{
		hubs:     make(map[string]*Hub),
		users:    make(map[string]map[*Client]struct{}),
		opts:     opts,
		presence: opts.Presence,
		fanout:   opts.Fanout,
		metrics:  opts.Metrics,
	}
}

// Handle sets the client event handler. Call before Start.
func (m *Manager) Handle(h EventHandler) {
	m.handler = h
}

// Start subscribes to the fanout and runs hub cleanup until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.fanout.Subscribe(ctx, m.deliver); err != nil {
		return err
	}
	go m.cleanupUnusedHubs(ctx)
	return nil
}

// Attach registers an upgraded connection for user and starts its pumps.
func (m *Manager) Attach(conn *websocket.Conn, user *models.User) *Client {
	c := newClient(m, conn, user)

	m.mu.Lock()
	if m.users[c.userID] == nil {
		m.users[c.userID] = make(map[*Client]struct{})
	}
	m.users[c.userID][c] = struct{}{}
	m.mu.Unlock()
	m.metrics.Sockets.Inc()

	logger.WithFields(map[string]interface{}{
		"user":    c.userID,
		"session": c.sessionID,
	}).Info("Socket connected")

	go c.WritePump()
	go c.ReadPump()
	return c
}

func (m *Manager) detach(c *Client) {
	for _, roomID := range c.Rooms() {
		if err := m.LeaveRoom(context.Background(), c, roomID); err != nil {
			logger.Error("Error leaving room %s on disconnect: %v", roomID, err)
		}
	}

	m.mu.Lock()
	if set, ok := m.users[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			m.metrics.Sockets.Dec()
		}
		if len(set) == 0 {
			delete(m.users, c.userID)
		}
	}
	m.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"user":    c.userID,
		"session": c.sessionID,
	}).Info("Socket disconnected")
}

func (m *Manager) dispatch(ctx context.Context, c *Client, env models.Envelope) {
	if m.handler == nil {
		return
	}
	if err := m.handler.HandleEvent(ctx, c, env); err != nil {
		logger.Warn("Event %s from user %s refused: %v", env.Event, c.userID, err)
		c.SendEvent(models.EventError, models.ErrorPayload{Event: env.Event, Message: err.Error()})
	}
}

// GetHubForRoom returns the room's hub, starting it if needed.
func (m *Manager) GetHubForRoom(roomID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hubLocked(roomID)
}

func (m *Manager) hubLocked(roomID string) *Hub {
	hub, exists := m.hubs[roomID]
	if !exists {
		hub = NewHub(roomID)
		m.hubs[roomID] = hub
		m.metrics.Rooms.Inc()
		go hub.Run()
	}
	return hub
}

// JoinRoom binds c to a room. The first connection of a user announces
// userJoined to the room; the joining connection always gets the online set.
func (m *Manager) JoinRoom(ctx context.Context, c *Client, roomID string) error {
	if c.addRoom(roomID) {
		m.mu.Lock()
		hub := m.hubLocked(roomID)
		hub.size++
		m.mu.Unlock()
		hub.register(c)

		first, err := m.presence.Add(ctx, roomID, c.userID)
		if err != nil {
			return err
		}
		if first {
			m.BroadcastToRoom(roomID, models.EventUserJoined, models.RoomPayload{RoomID: roomID, UserID: c.userID}, c.userID)
		}
	}

	online, err := m.presence.Online(ctx, roomID)
	if err != nil {
		return err
	}
	c.SendEvent(models.EventOnlineUsers, models.OnlineUsersPayload{RoomID: roomID, UserIDs: online})
	return nil
}

func (m *Manager) LeaveRoom(ctx context.Context, c *Client, roomID string) error {
	if !c.removeRoom(roomID) {
		return nil
	}

	m.mu.Lock()
	hub := m.hubs[roomID]
	if hub != nil {
		hub.size--
		if hub.size == 0 {
			hub.idleSince = time.Now()
		}
	}
	m.mu.Unlock()
	if hub != nil {
		hub.unregister(c)
	}

	last, err := m.presence.Remove(ctx, roomID, c.userID)
	if err != nil {
		return err
	}
	if last {
		m.BroadcastToRoom(roomID, models.EventUserLeft, models.RoomPayload{RoomID: roomID, UserID: c.userID}, c.userID)
	}
	return nil
}

func (m *Manager) OnlineUsers(ctx context.Context, roomID string) ([]string, error) {
	return m.presence.Online(ctx, roomID)
}

func (m *Manager) SendToUser(userID string, event models.EventName, payload interface{}) {
	m.publish(Delivery{UserID: userID}, event, payload)
}

func (m *Manager) BroadcastToRoom(roomID string, event models.EventName, payload interface{}, exceptUserID string) {
	m.publish(Delivery{RoomID: roomID, Except: exceptUserID}, event, payload)
}

func (m *Manager) publish(d Delivery, event models.EventName, payload interface{}) {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	d.Frame = frame
	m.metrics.EventsOut.WithLabelValues(string(event)).Inc()
	if err := m.fanout.Publish(context.Background(), d); err != nil {
		logger.Error("Error publishing %s event: %v", event, err)
	}
}

func (m *Manager) deliver(d Delivery) {
	if d.RoomID != "" {
		m.mu.Lock()
		hub := m.hubs[d.RoomID]
		m.mu.Unlock()
		if hub != nil {
			hub.broadcast(outbound{frame: d.Frame, except: d.Except})
		}
		return
	}

	m.mu.Lock()
	targets := make([]*Client, 0, len(m.users[d.UserID]))
	for c := range m.users[d.UserID] {
		targets = append(targets, c)
	}
	m.mu.Unlock()
	for _, c := range targets {
		c.Send(d.Frame)
	}
}

func (m *Manager) cleanupUnusedHubs(ctx context.Context) {
	interval := m.opts.IdleTimeout / 6
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.removeIdleHubs(time.Now())
		}
	}
}

func (m *Manager) removeIdleHubs(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for roomID, hub := range m.hubs {
		if hub.size == 0 && now.Sub(hub.idleSince) >= m.opts.IdleTimeout {
			hub.ShutdownHub()
			delete(m.hubs, roomID)
			m.metrics.Rooms.Dec()
			removed++
			logger.Debug("Cleaned up unused hub for room %s", roomID)
		}
	}
	return removed
}

// Shutdown closes every connection and stops every hub.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var clients []*Client
	for _, set := range m.users {
		for c := range set {
			clients = append(clients, c)
		}
	}
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	for _, hub := range hubs {
		hub.ShutdownHub()
	}
	m.metrics.Rooms.Sub(float64(len(hubs)))
}
