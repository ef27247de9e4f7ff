package websocket

import (
	"sync"
	"time"

	"clanchat/pkg/logger"
)

type outbound struct {
	frame  []byte
	except string
}

// Hub fans frames out to the local sockets bound to one room. Its client set
// is only touched by the Run goroutine.
type Hub struct {
	roomID     string
	clients    map[*Client]bool
	Broadcast  chan outbound
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// guarded by Manager.mu
	size      int
	idleSince time.Time
}

func NewHub(roomID string) *Hub {
	return &Hub{
		roomID:     roomID,
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan outbound),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		idleSince:  time.Now(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.Register:
			h.clients[client] = true
			logger.Debug("User %s bound to room %s", client.username, h.roomID)

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				logger.Debug("User %s left room %s", client.username, h.roomID)
			}

		case msg := <-h.Broadcast:
			h.broadcastToAll(msg)
		}
	}
}

func (h *Hub) broadcastToAll(msg outbound) {
	for client := range h.clients {
		if msg.except != "" && client.userID == msg.except {
			continue
		}
		if !client.Send(msg.frame) {
			delete(h.clients, client)
		}
	}
}

func (h *Hub) register(c *Client) {
	select {
	case h.Register <- c:
	case <-h.done:
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcast(msg outbound) {
	select {
	case h.Broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) ShutdownHub() {
	h.stopOnce.Do(func() { close(h.done) })
}
