package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"clanchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string) *models.Message {
	return &models.Message{ID: id, RoomID: "clan-42", Text: "text " + id, Status: models.StatusSent}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreAppendIsIdempotent(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Append(msg("m1")))
	assert.False(t, s.Append(msg("m1")))
	assert.True(t, s.Append(msg("m2")))
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Messages()))
}

func TestStorePrependSkipsKnownIDs(t *testing.T) {
	s := NewStore()
	s.Append(msg("m3"))
	s.Append(msg("m4"))

	added := s.Prepend([]*models.Message{msg("m1"), msg("m2"), msg("m3")})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(s.Messages()))
	assert.Equal(t, "m1", s.OldestID())
}

func TestStoreRemoveAndInsertRestorePosition(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		s.Append(msg(id))
	}

	removed, pos, ok := s.Remove("b")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []string{"a", "c"}, ids(s.Messages()))

	s.Insert(pos, removed)
	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Messages()))

	s.Insert(0, removed)
	assert.Equal(t, 3, s.Len(), "insert of a present id is a no-op")
}

func TestStoreRemoveMissingIsNoop(t *testing.T) {
	s := NewStore()
	s.Append(msg("a"))
	_, _, ok := s.Remove("zzz")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStoreStatusOnlyMovesForward(t *testing.T) {
	s := NewStore()
	s.Append(msg("m1"))

	require.NoError(t, s.SetStatus("m1", models.StatusRead))
	err := s.SetStatus("m1", models.StatusDelivered)
	assert.ErrorIs(t, err, ErrStatusRegression)

	got, _ := s.Get("m1")
	assert.Equal(t, models.StatusRead, got.Status)

	assert.NoError(t, s.SetStatus("unknown", models.StatusRead))
	assert.Error(t, s.SetStatus("m1", "lost"))
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Append(msg("m1"))
	s.SetReaction("m1", "u1", "👍")

	snap := s.Messages()
	snap[0].Text = "changed"
	snap[0].Reactions[0].Emoji = "🔥"

	got, _ := s.Get("m1")
	assert.Equal(t, "text m1", got.Text)
	assert.Equal(t, "👍", s.Reaction("m1", "u1"))
}

func TestReactionsOnePerMember(t *testing.T) {
	s := NewStore()
	s.Append(msg("m1"))

	prev, ok := s.SetReaction("m1", "u1", "👍")
	require.True(t, ok)
	assert.Empty(t, prev)

	prev, _ = s.SetReaction("m1", "u1", "🔥")
	assert.Equal(t, "👍", prev)
	s.SetReaction("m1", "u2", "🔥")
	s.SetReaction("m1", "u3", "😂")

	assert.Equal(t, []EmojiCount{{"🔥", 2}, {"😂", 1}}, s.Tally("m1"))

	prev, _ = s.SetReaction("m1", "u1", "")
	assert.Equal(t, "🔥", prev)
	assert.Empty(t, s.Reaction("m1", "u1"))
	assert.Equal(t, []EmojiCount{{"🔥", 1}, {"😂", 1}}, s.Tally("m1"))

	_, ok = s.SetReaction("nope", "u1", "👍")
	assert.False(t, ok)
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(msg(fmt.Sprintf("m%d", i%10)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func TestPresenceRoster(t *testing.T) {
	p := NewPresence()
	p.SetMembers([]models.Member{{ID: "u1", Name: "Ann"}, {ID: "u2", Name: "Bo"}})
	p.Replace([]string{"u1"})

	roster := p.Roster()
	require.Len(t, roster, 2)
	assert.True(t, roster[0].Online)
	assert.False(t, roster[1].Online)

	p.Join("u2")
	p.Leave("u1")
	assert.False(t, p.IsOnline("u1"))
	assert.True(t, p.IsOnline("u2"))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTypingWindowResets(t *testing.T) {
	clock := newFakeClock()
	typing := NewTyping("me", clock.Now)
	defer typing.Stop()

	typing.Observe(models.TypingPayload{RoomID: "r", UserID: "u2", Name: "Bo"})
	assert.Equal(t, "Bo", typing.Current())

	clock.Advance(800 * time.Millisecond)
	typing.Observe(models.TypingPayload{RoomID: "r", UserID: "u2", Name: "Bo"})

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, "Bo", typing.Current(), "second event restarts the window")

	clock.Advance(600 * time.Millisecond)
	assert.Empty(t, typing.Current())
}

func TestTypingIgnoresSelf(t *testing.T) {
	typing := NewTyping("me", newFakeClock().Now)
	typing.Observe(models.TypingPayload{RoomID: "r", UserID: "me", Name: "Me"})
	assert.Empty(t, typing.Current())
}

func TestTypingExpiresWithRealClock(t *testing.T) {
	typing := NewTyping("me", nil)
	changes := make(chan string, 4)
	typing.OnChange(func(name string) { changes <- name })

	typing.Observe(models.TypingPayload{RoomID: "r", UserID: "u2", Name: "Bo"})
	assert.Equal(t, "Bo", <-changes)

	select {
	case name := <-changes:
		assert.Empty(t, name)
	case <-time.After(3 * time.Second):
		t.Fatal("typing label never expired")
	}
	assert.Empty(t, typing.Current())
}

func TestStoreResetReplacesEverything(t *testing.T) {
	s := NewStore()
	s.Append(msg("old"))
	s.Reset([]*models.Message{msg("a"), msg("b"), msg("a")})
	assert.Equal(t, []string{"a", "b"}, ids(s.Messages()))
}

func TestTypingExpiryFollowsInjectedClock(t *testing.T) {
	clock := newFakeClock()
	typing := NewTyping("me", clock.Now)
	defer typing.Stop()
	changes := make(chan string, 4)
	typing.OnChange(func(name string) { changes <- name })

	typing.Observe(models.TypingPayload{RoomID: "r", UserID: "u2", Name: "Bo"})
	require.Equal(t, "Bo", <-changes)

	// The timer fires while the injected clock still sits inside the window.
	time.Sleep(1300 * time.Millisecond)
	assert.Empty(t, changes)
	assert.Equal(t, "Bo", typing.Current())

	clock.Advance(TypingWindow)
	select {
	case name := <-changes:
		assert.Empty(t, name)
	case <-time.After(3 * time.Second):
		t.Fatal("typing label never expired")
	}
}
