package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"clanchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, db *MemoryDB, name string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), &models.RegisterRequest{
		Username: name, Email: name + "@example.com", Password: "password123",
	})
	require.NoError(t, err)
	return u
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	u := seedUser(t, db, "ann")

	byEmail, err := db.GetUserByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.NotEmpty(t, byEmail.PasswordHash)

	byID, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordHash)

	_, err = db.CreateUser(ctx, &models.RegisterRequest{Username: "x", Email: "ann@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = db.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJoinRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	leader := seedUser(t, db, "lead")
	joiner := seedUser(t, db, "joiner")

	clan, err := db.CreateClan(ctx, "X", leader.ID)
	require.NoError(t, err)

	role, err := db.GetMemberRole(ctx, clan.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLeader, role)

	_, err = db.CreateJoinRequest(ctx, clan.ID, joiner.ID)
	require.NoError(t, err)
	_, err = db.CreateJoinRequest(ctx, clan.ID, joiner.ID)
	assert.ErrorIs(t, err, ErrDuplicate)

	clans, err := db.ListClans(ctx)
	require.NoError(t, err)
	require.Len(t, clans, 1)
	require.Len(t, clans[0].PendingRequests, 1)
	assert.Equal(t, "joiner", clans[0].PendingRequests[0].UserName)

	require.NoError(t, db.ResolveJoinRequest(ctx, clan.ID, joiner.ID, models.RequestAccepted))
	assert.ErrorIs(t, db.ResolveJoinRequest(ctx, clan.ID, joiner.ID, models.RequestRejected), ErrNotFound)

	members, err := db.GetClanMembers(ctx, clan.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	pending, err := db.ListPendingRequests(ctx, clan.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryMessagesPaging(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	u := seedUser(t, db, "ann")

	for i := 1; i <= 5; i++ {
		require.NoError(t, db.SaveMessage(ctx, &models.Message{
			ID: fmt.Sprintf("m%d", i), RoomID: "clan-42", Text: fmt.Sprintf("hi %d", i),
			Sender: models.Sender{ID: u.ID, Name: u.Username}, Status: models.StatusSent,
			CreatedAt: time.Now(),
		}))
	}

	latest, err := db.LoadMessages(ctx, "clan-42", "", 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"m3", "m4", "m5"}, ids(latest))

	older, err := db.LoadMessages(ctx, "clan-42", "m3", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(older))

	require.NoError(t, db.DeleteMessage(ctx, "m4"))
	latest, err = db.LoadMessages(ctx, "clan-42", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3", "m5"}, ids(latest))
	assert.ErrorIs(t, db.DeleteMessage(ctx, "m4"), ErrNotFound)
}

func TestMemoryStatusAndReactions(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	require.NoError(t, db.SaveMessage(ctx, &models.Message{ID: "m1", RoomID: "r", Text: "x", Status: models.StatusSent}))

	changed, err := db.AdvanceStatus(ctx, "m1", models.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.AdvanceStatus(ctx, "m1", models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, db.SetReaction(ctx, "m1", "u1", "👍"))
	require.NoError(t, db.SetReaction(ctx, "m1", "u1", "🔥"))
	require.NoError(t, db.SetReaction(ctx, "m1", "u2", "👍"))

	m, err := db.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, m.Status)
	assert.Equal(t, []models.Reaction{
		{MemberID: "u1", Emoji: "🔥", MessageID: "m1"},
		{MemberID: "u2", Emoji: "👍", MessageID: "m1"},
	}, m.Reactions)

	require.NoError(t, db.ClearReaction(ctx, "m1", "u1"))
	m, err = db.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, m.Reactions, 1)
}

func TestMemoryNotifications(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()

	n := &models.Notification{ID: "X:u1:clan_join_request", Type: models.NotifyJoinRequest, Content: "u1 wants in"}
	require.NoError(t, db.SaveNotification(ctx, "lead", n))
	require.NoError(t, db.MarkNotificationsSeen(ctx, "lead", []string{n.ID, "unknown"}))

	list, err := db.ListNotifications(ctx, "lead")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Seen)

	require.NoError(t, db.DeleteNotification(ctx, "lead", n.ID))
	list, err = db.ListNotifications(ctx, "lead")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func ids(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
