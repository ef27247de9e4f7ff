// Package sockettest provides an in-memory push-channel connection for tests
// of code built on socket.Manager.
package sockettest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"clanchat/internal/client/socket"
	"clanchat/internal/models"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("sockettest: connection closed")

const syncEvent models.EventName = "sockettest.sync"

// Conn is a scripted connection. Frames pushed by the test are read by the
// manager; frames the manager writes are recorded.
type Conn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	sent    []models.Envelope
	readErr error
}

func NewConn() *Conn {
	return &Conn{in: make(chan []byte), closed: make(chan struct{}), readErr: ErrClosed}
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.in:
		return websocket.TextMessage, frame, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return 0, nil, c.readErr
	}
}

func (c *Conn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Fail drops the connection as the network would.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.Close()
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Push delivers a server event and returns after its handlers have run.
func (c *Conn) Push(event models.EventName, payload interface{}) error {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.PushRaw(frame)
}

// PushRaw delivers an arbitrary frame, malformed or not.
func (c *Conn) PushRaw(frame []byte) error {
	if err := c.feed(frame); err != nil {
		return err
	}
	// The reader takes the next frame only after dispatching the previous one.
	marker, _ := models.NewEnvelope(syncEvent, nil)
	return c.feed(marker)
}

func (c *Conn) feed(frame []byte) error {
	select {
	case c.in <- frame:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-time.After(2 * time.Second):
		return errors.New("sockettest: nobody is reading")
	}
}

// Sent returns every envelope written so far.
func (c *Conn) Sent() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Envelope(nil), c.sent...)
}

// SentEvents returns the event names written so far, in order.
func (c *Conn) SentEvents() []models.EventName {
	var out []models.EventName
	for _, env := range c.Sent() {
		out = append(out, env.Event)
	}
	return out
}

// Last decodes the data of the most recent written event into v.
func (c *Conn) Last(event models.EventName, v interface{}) bool {
	sent := c.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Event == event {
			return json.Unmarshal(sent[i].Data, v) == nil
		}
	}
	return false
}

// Dialer hands out a fresh Conn per dial and remembers them.
type Dialer struct {
	mu    sync.Mutex
	Err   error
	conns []*Conn
	users []string
}

func (d *Dialer) Dial(ctx context.Context, userID string) (socket.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	d.users = append(d.users, userID)
	return c, nil
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conn returns the most recently dialed connection.
func (d *Dialer) Conn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// NewManager returns a socket.Manager dialing through d.
func NewManager(d *Dialer) *socket.Manager {
	return socket.NewManager(d.Dial)
}
