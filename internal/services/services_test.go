package services

import (
	"context"
	"sync"
	"testing"

	"clanchat/internal/database"
	"clanchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	Target  string
	Event   models.EventName
	Payload interface{}
	Except  string
}

type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
}

func (p *recordingPusher) SendToUser(userID string, event models.EventName, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{Target: userID, Event: event, Payload: payload})
}

func (p *recordingPusher) BroadcastToRoom(roomID string, event models.EventName, payload interface{}, except string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{Target: roomID, Event: event, Payload: payload, Except: except})
}

func (p *recordingPusher) byEvent(event models.EventName) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db     *database.MemoryDB
	pusher *recordingPusher
	clans  *ClanService
	chat   *ChatService
	leader *models.User
	joiner *models.User
	clan   *models.Clan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{db: database.NewMemoryDB(), pusher: &recordingPusher{}}
	f.clans = NewClanService(f.db, f.pusher)
	f.chat = NewChatService(f.db, f.pusher, 50)

	var err error
	f.leader, err = f.db.CreateUser(ctx, &models.RegisterRequest{Username: "lead", Email: "lead@example.com", Password: "password123"})
	require.NoError(t, err)
	f.joiner, err = f.db.CreateUser(ctx, &models.RegisterRequest{Username: "joiner", Email: "joiner@example.com", Password: "password123"})
	require.NoError(t, err)
	f.clan, err = f.clans.CreateClan(ctx, &models.CreateClanRequest{Name: " X "}, f.leader.ID)
	require.NoError(t, err)
	return f
}

func TestCreateClanRequiresName(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "X", f.clan.Name)

	_, err := f.clans.CreateClan(context.Background(), &models.CreateClanRequest{Name: "  "}, f.leader.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJoinRequestNotifiesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	require.NoError(t, err)

	pending := f.pusher.byEvent(models.EventRequestPending)
	require.Len(t, pending, 1)
	assert.Equal(t, f.joiner.ID, pending[0].Target)

	incoming := f.pusher.byEvent(models.EventJoinRequestNotification)
	require.Len(t, incoming, 1)
	assert.Equal(t, f.leader.ID, incoming[0].Target)
	n := incoming[0].Payload.(*models.Notification)
	assert.Equal(t, models.NotificationID(f.clan.ID, f.joiner.ID, models.NotifyJoinRequest), n.ID)

	stored, err := f.db.ListNotifications(ctx, f.leader.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	_, err = f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestAcceptRequestRequiresManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	require.NoError(t, err)

	err = f.clans.AcceptRequest(ctx, f.clan.ID, f.joiner.ID, f.joiner.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.clans.AcceptRequest(ctx, f.clan.ID, f.leader.ID, f.joiner.ID))

	roster, err := f.clans.GetRoster(ctx, f.clan.ID, f.joiner.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	leaderFeed, err := f.db.ListNotifications(ctx, f.leader.ID)
	require.NoError(t, err)
	assert.Empty(t, leaderFeed)

	n, err := f.clans.DecisionNotification(ctx, f.clan.ID, f.leader.ID, f.joiner.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyRequestAccepted, n.Type)

	_, err = f.clans.DecisionNotification(ctx, f.clan.ID, f.leader.ID, f.joiner.ID, false)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRejectRequestKeepsUserOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	require.NoError(t, err)
	require.NoError(t, f.clans.RejectRequest(ctx, f.clan.ID, f.leader.ID, f.joiner.ID))

	_, err = f.clans.GetRoster(ctx, f.clan.ID, f.joiner.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, f.clans.RejectRequest(ctx, f.clan.ID, f.leader.ID, f.joiner.ID), database.ErrNotFound)
}

func TestLaterDecisionReplacesEarlierOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rejectedID := models.NotificationID(f.clan.ID, f.joiner.ID, models.NotifyRequestRejected)
	acceptedID := models.NotificationID(f.clan.ID, f.joiner.ID, models.NotifyRequestAccepted)

	_, err := f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	require.NoError(t, err)
	require.NoError(t, f.clans.RejectRequest(ctx, f.clan.ID, f.leader.ID, f.joiner.ID))

	_, err = f.clans.RequestToJoin(ctx, f.clan.ID, f.joiner)
	require.NoError(t, err)
	_, err = f.clans.DecisionNotification(ctx, f.clan.ID, f.leader.ID, f.joiner.ID, false)
	assert.ErrorIs(t, err, database.ErrNotFound, "pending request has no decision yet")

	require.NoError(t, f.clans.AcceptRequest(ctx, f.clan.ID, f.leader.ID, f.joiner.ID))

	_, err = f.clans.DecisionNotification(ctx, f.clan.ID, f.leader.ID, f.joiner.ID, false)
	assert.ErrorIs(t, err, database.ErrNotFound)
	n, err := f.clans.DecisionNotification(ctx, f.clan.ID, f.leader.ID, f.joiner.ID, true)
	require.NoError(t, err)
	assert.Equal(t, acceptedID, n.ID)

	stored, err := f.db.ListNotifications(ctx, f.joiner.ID)
	require.NoError(t, err)
	var ids []string
	for _, n := range stored {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, acceptedID)
	assert.NotContains(t, ids, rejectedID)
}

func TestPostHistoryAndReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.chat.Post(ctx, f.clan.ID, f.joiner, models.Draft{Text: "let me in"})
	assert.ErrorIs(t, err, ErrForbidden)

	first, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, first.Status)
	assert.NotEmpty(t, first.ID)

	reply, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "again", ReplyToID: first.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "hello", reply.ReplyTo.Text)
	assert.Equal(t, "lead", reply.ReplyTo.SenderName)

	history, err := f.chat.History(ctx, f.clan.ID, f.leader.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
}

func TestDeleteOnlyBySender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.AddMember(ctx, f.clan.ID, f.joiner.ID, models.RoleMember))

	msg, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "mine"})
	require.NoError(t, err)

	_, err = f.chat.Delete(ctx, msg.ID, f.joiner.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	deleted, err := f.chat.Delete(ctx, msg.ID, f.leader.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clan.ID, deleted.RoomID)
}

func TestReactBroadcastsToRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "react to me"})
	require.NoError(t, err)

	_, err = f.chat.React(ctx, msg.ID, f.leader.ID, "👍")
	require.NoError(t, err)
	_, err = f.chat.React(ctx, msg.ID, f.leader.ID, "")
	require.NoError(t, err)

	updates := f.pusher.byEvent(models.EventReactionUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, f.leader.ID, updates[0].Except)
	assert.Equal(t, "", updates[1].Payload.(*models.ReactionPayload).Emoji)

	stored, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Reactions)

	_, err = f.chat.React(ctx, msg.ID, f.joiner.ID, "👍")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMarkReadSkipsOwnMessagesAndRegressions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.AddMember(ctx, f.clan.ID, f.joiner.ID, models.RoleMember))

	theirs, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "a"})
	require.NoError(t, err)
	own, err := f.chat.Post(ctx, f.clan.ID, f.joiner, models.Draft{Text: "b"})
	require.NoError(t, err)

	updates, err := f.chat.MarkRead(ctx, f.clan.ID, f.joiner.ID, []string{theirs.ID, own.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, theirs.ID, updates[0].MessageID)

	changed, err := f.chat.AdvanceStatus(ctx, theirs.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.chat.AdvanceStatus(ctx, theirs.ID, models.MessageStatus("seen"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRelayableChecksOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.chat.Post(ctx, f.clan.ID, f.leader, models.Draft{Text: "x"})
	require.NoError(t, err)

	got, err := f.chat.Relayable(ctx, f.clan.ID, msg.ID, f.leader.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	_, err = f.chat.Relayable(ctx, f.clan.ID, msg.ID, f.joiner.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNotificationServiceMarkSeen(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryDB()
	svc := NewNotificationService(db)
	require.NoError(t, db.SaveNotification(ctx, "u1", &models.Notification{ID: "a", Type: models.NotifyGeneric}))

	require.NoError(t, svc.MarkSeen(ctx, "u1", nil))
	require.NoError(t, svc.MarkSeen(ctx, "u1", []string{"a"}))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Seen)
}
