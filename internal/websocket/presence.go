package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"
)

// PresenceStore counts open connections per (room, user). A user is online in
// a room while the count is above zero.
type PresenceStore interface {
	// Add reports whether this was the user's first connection in the room.
	Add(ctx context.Context, roomID, userID string) (bool, error)
	// Remove reports whether this was the user's last connection in the room.
	Remove(ctx context.Context, roomID, userID string) (bool, error)
	Online(ctx context.Context, roomID string) ([]string, error)
}

type MemoryPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]int
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]int)}
}

func (p *MemoryPresence) Add(ctx context.Context, roomID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rooms[roomID] == nil {
		p.rooms[roomID] = make(map[string]int)
	}
	p.rooms[roomID][userID]++
	return p.rooms[roomID][userID] == 1, nil
}

func (p *MemoryPresence) Remove(ctx context.Context, roomID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.rooms[roomID][userID]
	if !ok {
		return false, nil
	}
	if n > 1 {
		p.rooms[roomID][userID] = n - 1
		return false, nil
	}
	delete(p.rooms[roomID], userID)
	if len(p.rooms[roomID]) == 0 {
		delete(p.rooms, roomID)
	}
	return true, nil
}

func (p *MemoryPresence) Online(ctx context.Context, roomID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.rooms[roomID]))
	for id := range p.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// RedisPresence keeps the counts in one hash per room so every server
// instance sees the same online set.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func presenceKey(roomID string) string {
	return "presence:room:" + roomID
}

func (p *RedisPresence) Add(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := p.client.HIncrBy(ctx, presenceKey(roomID), userID, 1).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *RedisPresence) Remove(ctx context.Context, roomID, userID string) (bool, error) {
	key := presenceKey(roomID)
	n, err := p.client.HIncrBy(ctx, key, userID, -1).Result()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := p.client.HDel(ctx, key, userID).Err(); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (p *RedisPresence) Online(ctx context.Context, roomID string) ([]string, error) {
	ids, err := p.client.HKeys(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
