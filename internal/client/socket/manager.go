// Package socket owns the client's single push-channel connection.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"clanchat/internal/models"
	"clanchat/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("socket not connected")
	// ErrUserMismatch is returned when a concurrent Initialize connected a different user.
	ErrUserMismatch = errors.New("socket connected for another user")
)

// Conn is the part of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a connection for userID.
type DialFunc func(ctx context.Context, userID string) (Conn, error)

// WebsocketDialer dials url (a ws:// or wss:// push endpoint) with gorilla/websocket.
func WebsocketDialer(url string) DialFunc {
	return func(ctx context.Context, userID string) (Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
			}
			return nil, err
		}
		return conn, nil
	}
}

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// Subscription is returned by Subscribe; Unsubscribe is safe to call more than once.
type Subscription struct {
	m     *Manager
	event models.EventName
	id    uint64
	once  sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.m.mu.Lock()
		defer s.m.mu.Unlock()
		delete(s.m.subs[s.event], s.id)
		if len(s.m.subs[s.event]) == 0 {
			delete(s.m.subs, s.event)
		}
	})
}

// Manager keeps at most one live connection, keyed by user. Inbound events are
// dispatched from a single goroutine in arrival order.
type Manager struct {
	dial DialFunc

	mu     sync.Mutex
	conn   Conn
	userID string
	subs   map[models.EventName]map[uint64]Handler
	nextID uint64

	writeMu sync.Mutex
	errs    chan error
}

func NewManager(dial DialFunc) *Manager {
	return &Manager{
		dial: dial,
		subs: make(map[models.EventName]map[uint64]Handler),
		errs: make(chan error, 16),
	}
}

// Initialize connects for userID unless that user is already connected.
// A live connection for a different user is closed first.
func (m *Manager) Initialize(ctx context.Context, userID string) error {
	m.mu.Lock()
	if m.conn != nil && m.userID == userID {
		m.mu.Unlock()
		return nil
	}
	prev := m.conn
	m.conn = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	conn, err := m.dial(ctx, userID)
	if err != nil {
		err = fmt.Errorf("connect: %w", err)
		m.report(err)
		return err
	}

	m.mu.Lock()
	if m.conn != nil {
		// lost a race with another Initialize; keep the winner
		winner := m.userID
		m.mu.Unlock()
		conn.Close()
		if winner != userID {
			return fmt.Errorf("%w: connected as %s", ErrUserMismatch, winner)
		}
		return nil
	}
	m.conn = conn
	m.userID = userID
	m.mu.Unlock()

	go m.readLoop(conn)
	return nil
}

// Disconnect closes the connection. Subscriptions stay registered.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.userID = ""
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// UserID returns the user of the live connection, or "".
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Errors delivers connection failures. Errors are dropped when nobody reads.
func (m *Manager) Errors() <-chan error {
	return m.errs
}

func (m *Manager) report(err error) {
	logger.Error("Socket error: %v", err)
	select {
	case m.errs <- err:
	default:
	}
}

func (m *Manager) Subscribe(event models.EventName, h Handler) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if m.subs[event] == nil {
		m.subs[event] = make(map[uint64]Handler)
	}
	m.subs[event][m.nextID] = h
	return &Subscription{m: m, event: event, id: m.nextID}
}

// Subscribers reports how many handlers are registered for event.
func (m *Manager) Subscribers(event models.EventName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[event])
}

func (m *Manager) Emit(event models.EventName, payload interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		err = fmt.Errorf("emit %s: %w", event, err)
		m.report(err)
		return err
	}
	return nil
}

func (m *Manager) current(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn == conn
}

func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if m.current(conn) {
				m.mu.Lock()
				m.conn = nil
				m.userID = ""
				m.mu.Unlock()
				m.report(fmt.Errorf("connection lost: %w", err))
			}
			return
		}
		if !m.current(conn) {
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		logger.Warn("Dropping malformed push frame")
		return
	}

	m.mu.Lock()
	ids := make([]uint64, 0, len(m.subs[env.Event]))
	for id := range m.subs[env.Event] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.subs[env.Event][id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		m.safeCall(env.Event, h, env.Data)
	}
}

// safeCall keeps one failing handler from stopping dispatch.
func (m *Manager) safeCall(event models.EventName, h Handler, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Handler for %s panicked: %v", event, rec)
		}
	}()
	h(data)
}

var _ Conn = (*websocket.Conn)(nil)
