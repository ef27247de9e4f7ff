package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clanchat/internal/client/socket/sockettest"
	"clanchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errServer = errors.New("server said no")

type fakeAPI struct {
	mu       sync.Mutex
	clans    []*models.Clan
	stored   []*models.Notification
	fail     bool
	accepted []string
	rejected []string
}

func (a *fakeAPI) Clans(context.Context) ([]*models.Clan, error) { return a.clans, nil }

func (a *fakeAPI) Notifications(context.Context) ([]*models.Notification, error) {
	return a.stored, nil
}

func (a *fakeAPI) AcceptRequest(_ context.Context, clanID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errServer
	}
	a.accepted = append(a.accepted, clanID+"/"+userID)
	return nil
}

func (a *fakeAPI) RejectRequest(_ context.Context, clanID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errServer
	}
	a.rejected = append(a.rejected, clanID+"/"+userID)
	return nil
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func clanX() *models.Clan {
	return &models.Clan{
		ID:       "X",
		Name:     "Clan X",
		LeaderID: "lead",
		Members:  []models.Member{{ID: "lead", Role: models.RoleLeader}, {ID: "co", Role: models.RoleCoLeader}, {ID: "m", Role: models.RoleMember}},
		PendingRequests: []models.JoinRequest{
			{ClanID: "X", UserID: "u7", UserName: "Sam", Status: models.RequestPending, CreatedAt: t0},
			{ClanID: "X", UserID: "u8", UserName: "Kit", Status: models.RequestPending, CreatedAt: t0.Add(time.Minute)},
		},
	}
}

type feedFixture struct {
	api  *fakeAPI
	conn *sockettest.Conn
	feed *Feed
}

func startFeed(t *testing.T, selfID string, api *fakeAPI) *feedFixture {
	t.Helper()
	dialer := &sockettest.Dialer{}
	manager := sockettest.NewManager(dialer)
	require.NoError(t, manager.Initialize(context.Background(), selfID))
	t.Cleanup(manager.Disconnect)

	feed := NewFeed(selfID, api, manager)
	require.NoError(t, feed.Start(context.Background()))
	t.Cleanup(feed.Stop)
	return &feedFixture{api: api, conn: dialer.Conn(), feed: feed}
}

func TestDeriveOnlyForManagers(t *testing.T) {
	clans := []*models.Clan{clanX()}

	assert.Len(t, Derive(clans, "lead"), 2)
	assert.Len(t, Derive(clans, "co"), 2)
	assert.Empty(t, Derive(clans, "m"))
	assert.Empty(t, Derive(clans, "stranger"))

	n := Derive(clans, "lead")[0]
	assert.Equal(t, "X:u7:clan_join_request", n.ID)
	assert.Equal(t, models.NotifyJoinRequest, n.Type)
	assert.Equal(t, "Sam", n.UserName)
}

func TestRefreshIsIdempotentAndNewestFirst(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})

	require.NoError(t, f.feed.Refresh(context.Background()))
	items := f.feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "X:u8:clan_join_request", items[0].ID)
	assert.Equal(t, 2, f.feed.Unseen())
}

func TestUpsertNeverUnseesAnEntry(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})
	require.NoError(t, f.feed.MarkAllSeen())
	assert.Zero(t, f.feed.Unseen())

	require.NoError(t, f.feed.Refresh(context.Background()))
	assert.Zero(t, f.feed.Unseen())

	// The same request pushed again stays seen.
	require.NoError(t, f.conn.Push(models.EventJoinRequestNotification, Derive([]*models.Clan{clanX()}, "lead")[0]))
	assert.Zero(t, f.feed.Unseen())
	assert.Len(t, f.feed.Items(), 2)
}

func TestUnseenTracksEveryChange(t *testing.T) {
	f := startFeed(t, "me", &fakeAPI{})

	for i, id := range []string{"a", "b", "c"} {
		f.feed.Upsert(&models.Notification{ID: id, Type: models.NotifyGeneric, CreatedAt: t0})
		assert.Equal(t, i+1, f.feed.Unseen())
	}

	f.feed.MarkSeen([]string{"b", "missing"})
	assert.Equal(t, 2, f.feed.Unseen())

	f.feed.Dismiss("a")
	assert.Equal(t, 1, f.feed.Unseen())

	f.feed.Clear()
	assert.Zero(t, f.feed.Unseen())
	assert.Empty(t, f.feed.Items())
}

func TestMarkAllSeenSyncsOtherSessions(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})

	require.NoError(t, f.feed.MarkAllSeen())
	var p models.NotificationIDsPayload
	require.True(t, f.conn.Last(models.EventMarkNotificationsSeen, &p))
	assert.ElementsMatch(t, []string{"X:u7:clan_join_request", "X:u8:clan_join_request"}, p.IDs)

	// Nothing left to flip, nothing emitted.
	before := len(f.conn.Sent())
	require.NoError(t, f.feed.MarkAllSeen())
	assert.Len(t, f.conn.Sent(), before)
}

func TestMarkedAsReadFromAnotherSession(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})

	require.NoError(t, f.conn.Push(models.EventNotificationMarkedAsRead, models.NotificationIDsPayload{IDs: []string{"X:u7:clan_join_request"}}))
	assert.Equal(t, 1, f.feed.Unseen())

	n, ok := f.feed.Get("X:u7:clan_join_request")
	require.True(t, ok)
	assert.True(t, n.Seen)
}

func TestAcceptRemovesRequestAndDecrementsUnseen(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})
	require.Equal(t, 2, f.feed.Unseen())

	require.NoError(t, f.feed.Accept(context.Background(), "X", "u7"))

	_, ok := f.feed.Get("X:u7:clan_join_request")
	assert.False(t, ok)
	assert.Equal(t, 1, f.feed.Unseen())
	assert.Equal(t, []string{"X/u7"}, f.api.accepted)

	var p models.RequestActionPayload
	require.True(t, f.conn.Last(models.EventAcceptRequest, &p))
	assert.Equal(t, models.RequestActionPayload{ClanID: "X", UserID: "u7"}, p)
}

func TestRejectFailureRestoresRequest(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{clans: []*models.Clan{clanX()}})
	f.api.fail = true
	order := f.feed.Items()

	err := f.feed.Reject(context.Background(), "X", "u7")
	assert.ErrorIs(t, err, errServer)
	assert.Equal(t, order, f.feed.Items())
	assert.Equal(t, 2, f.feed.Unseen())
	assert.NotContains(t, f.conn.SentEvents(), models.EventRejectRequest)
}

func TestDecisionPushReplacesPending(t *testing.T) {
	f := startFeed(t, "u7", &fakeAPI{})

	pending := &models.Notification{ID: models.NotificationID("X", "u7", models.NotifyRequestPending), Type: models.NotifyRequestPending, ClanID: "X", UserID: "u7", CreatedAt: t0}
	require.NoError(t, f.conn.Push(models.EventRequestPending, pending))
	assert.Equal(t, 1, f.feed.Unseen())

	accepted := &models.Notification{ID: models.NotificationID("X", "u7", models.NotifyRequestAccepted), Type: models.NotifyRequestAccepted, ClanID: "X", UserID: "u7", CreatedAt: t0}
	require.NoError(t, f.conn.Push(models.EventRequestAccepted, accepted))

	items := f.feed.Items()
	require.Len(t, items, 1)
	assert.Equal(t, models.NotifyRequestAccepted, items[0].Type)

	require.NoError(t, f.conn.PushRaw([]byte(`{"event":"requestRejectedNotification","data":{"id":""}}`)))
	assert.Len(t, f.feed.Items(), 1)
}

func TestStopSilencesFeed(t *testing.T) {
	f := startFeed(t, "lead", &fakeAPI{})
	f.feed.Stop()
	require.NoError(t, f.conn.Push(models.EventJoinRequestNotification, &models.Notification{ID: "late"}))
	assert.Empty(t, f.feed.Items())
}
