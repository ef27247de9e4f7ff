package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"clanchat/internal/models"
	"clanchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Client is one push-channel connection. A user may hold several.
type Client struct {
	manager   *Manager
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	userID    string
	username  string
	sessionID string
	typing    *rate.Limiter

	mu    sync.Mutex
	rooms map[string]bool
}

func newClient(m *Manager, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		manager:   m,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		userID:    user.ID,
		username:  user.Username,
		sessionID: uuid.NewString(),
		typing:    rate.NewLimiter(m.opts.TypingRate, m.opts.TypingBurst),
		rooms:     make(map[string]bool),
	}
}

func (c *Client) UserID() string    { return c.userID }
func (c *Client) Username() string  { return c.username }
func (c *Client) SessionID() string { return c.sessionID }

// AllowTyping reports whether a typing event from this connection may be relayed.
func (c *Client) AllowTyping() bool {
	return c.typing.Allow()
}

func (c *Client) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *Client) addRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[roomID] {
		return false
	}
	c.rooms[roomID] = true
	return true
}

func (c *Client) removeRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rooms[roomID] {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Send queues a frame without blocking. A connection whose buffer is full is
// closed; it returns false in that case or when already closed.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn("Send buffer full for user %s (session %s), closing", c.userID, c.sessionID)
		go c.Close()
		return false
	}
}

// SendEvent queues a single event for this connection only.
func (c *Client) SendEvent(event models.EventName, payload interface{}) bool {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return false
	}
	c.manager.metrics.EventsOut.WithLabelValues(string(event)).Inc()
	return c.Send(frame)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
		c.conn.Close()
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.manager.detach(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			logger.Warn("Dropping malformed frame from user %s", c.userID)
			continue
		}
		c.manager.metrics.EventsIn.WithLabelValues(string(env.Event)).Inc()
		c.manager.dispatch(context.Background(), c, env)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
