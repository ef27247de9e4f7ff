package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clanchat/internal/models"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roomHandler binds on joinRoom/leaveRoom and refuses everything else.
type roomHandler struct {
	m *Manager
}

func (h roomHandler) HandleEvent(ctx context.Context, c *Client, env models.Envelope) error {
	var p models.RoomPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return err
	}
	switch env.Event {
	case models.EventJoinRoom:
		return h.m.JoinRoom(ctx, c, p.RoomID)
	case models.EventLeaveRoom:
		return h.m.LeaveRoom(ctx, c, p.RoomID)
	}
	return errors.New("unsupported")
}

func newTestManager(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	m := NewManager(Options{})
	m.Handle(roomHandler{m: m})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id := r.URL.Query().Get("user")
		m.Attach(conn, &models.User{ID: id, Username: "name-" + id})
	}))
	t.Cleanup(func() {
		m.Shutdown()
		srv.Close()
		cancel()
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event models.EventName, payload interface{}) {
	t.Helper()
	frame, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// next reads frames until one carries event.
func next(t *testing.T, conn *websocket.Conn, event models.EventName) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env models.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, roomID, userID string) models.OnlineUsersPayload {
	t.Helper()
	emit(t, conn, models.EventJoinRoom, models.RoomPayload{RoomID: roomID, UserID: userID})
	var online models.OnlineUsersPayload
	require.NoError(t, json.Unmarshal(next(t, conn, models.EventOnlineUsers), &online))
	return online
}

func TestJoinAnnouncesPresence(t *testing.T) {
	_, srv := newTestManager(t)
	a := dial(t, srv, "u1")
	b := dial(t, srv, "u2")

	online := join(t, a, "clan-42", "u1")
	assert.Equal(t, []string{"u1"}, online.UserIDs)

	online = join(t, b, "clan-42", "u2")
	assert.Equal(t, []string{"u1", "u2"}, online.UserIDs)

	var joined models.RoomPayload
	require.NoError(t, json.Unmarshal(next(t, a, models.EventUserJoined), &joined))
	assert.Equal(t, "u2", joined.UserID)

	b.Close()
	var left models.RoomPayload
	require.NoError(t, json.Unmarshal(next(t, a, models.EventUserLeft), &left))
	assert.Equal(t, "u2", left.UserID)
}

func TestBroadcastSkipsExcludedUser(t *testing.T) {
	m, srv := newTestManager(t)
	a := dial(t, srv, "u1")
	b := dial(t, srv, "u2")
	join(t, a, "r", "u1")
	join(t, b, "r", "u2")

	m.BroadcastToRoom("r", models.EventTyping, models.TypingPayload{RoomID: "r", UserID: "u1", Name: "x"}, "u1")
	m.BroadcastToRoom("r", models.EventDeleteMessage, models.MessageRef{RoomID: "r", MessageID: "m1"}, "")

	var typing models.TypingPayload
	require.NoError(t, json.Unmarshal(next(t, b, models.EventTyping), &typing))
	assert.Equal(t, "u1", typing.UserID)

	// a never sees its own typing frame; the next room frame it reads is the delete.
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := a.ReadMessage()
		require.NoError(t, err)
		var env models.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		require.NotEqual(t, models.EventTyping, env.Event)
		if env.Event == models.EventDeleteMessage {
			break
		}
	}
}

func TestSendToUserReachesEveryConnection(t *testing.T) {
	m, srv := newTestManager(t)
	first := dial(t, srv, "u1")
	second := dial(t, srv, "u1")
	other := dial(t, srv, "u2")

	// make sure all three are attached before pushing
	join(t, first, "r", "u1")
	join(t, second, "r", "u1")
	join(t, other, "r", "u2")

	m.SendToUser("u1", models.EventNotificationMarkedAsRead, models.NotificationIDsPayload{IDs: []string{"n1"}})
	for _, conn := range []*websocket.Conn{first, second} {
		var p models.NotificationIDsPayload
		require.NoError(t, json.Unmarshal(next(t, conn, models.EventNotificationMarkedAsRead), &p))
		assert.Equal(t, []string{"n1"}, p.IDs)
	}
}

func TestSecondConnectionDoesNotReannounce(t *testing.T) {
	m, srv := newTestManager(t)
	a := dial(t, srv, "u1")
	join(t, a, "r", "u1")

	b := dial(t, srv, "u1")
	online := join(t, b, "r", "u1")
	assert.Equal(t, []string{"u1"}, online.UserIDs)

	b.Close()
	require.Eventually(t, func() bool {
		ids, err := m.OnlineUsers(context.Background(), "r")
		return err == nil && len(ids) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefusedEventAnswersWithError(t *testing.T) {
	_, srv := newTestManager(t)
	a := dial(t, srv, "u1")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	emit(t, a, models.EventSendMessage, models.MessageRef{RoomID: "r", MessageID: "m"})

	var p models.ErrorPayload
	require.NoError(t, json.Unmarshal(next(t, a, models.EventError), &p))
	assert.Equal(t, models.EventSendMessage, p.Event)

	// still usable after both
	online := join(t, a, "r", "u1")
	assert.Equal(t, []string{"u1"}, online.UserIDs)
}

func TestIdleHubsAreRemoved(t *testing.T) {
	m, srv := newTestManager(t)
	a := dial(t, srv, "u1")
	join(t, a, "r", "u1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Rooms))

	assert.Equal(t, 0, m.removeIdleHubs(time.Now().Add(time.Hour)))

	emit(t, a, models.EventLeaveRoom, models.RoomPayload{RoomID: "r", UserID: "u1"})
	require.Eventually(t, func() bool {
		return m.removeIdleHubs(time.Now().Add(time.Hour)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.metrics.Rooms))
}

func TestMemoryPresenceCountsConnections(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()

	first, _ := p.Add(ctx, "r", "u1")
	again, _ := p.Add(ctx, "r", "u1")
	assert.True(t, first)
	assert.False(t, again)

	last, _ := p.Remove(ctx, "r", "u1")
	assert.False(t, last)
	last, _ = p.Remove(ctx, "r", "u1")
	assert.True(t, last)

	last, _ = p.Remove(ctx, "r", "ghost")
	assert.False(t, last)

	ids, err := p.Online(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLocalFanoutNeedsSubscriber(t *testing.T) {
	f := NewLocalFanout()
	assert.Error(t, f.Publish(context.Background(), Delivery{RoomID: "r"}))

	var got Delivery
	require.NoError(t, f.Subscribe(context.Background(), func(d Delivery) { got = d }))
	require.NoError(t, f.Publish(context.Background(), Delivery{RoomID: "r", Frame: []byte("x")}))
	assert.Equal(t, "r", got.RoomID)
}
