package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"clanchat/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Delivery is one frame addressed either to a room or to a user.
type Delivery struct {
	RoomID string `json:"room,omitempty"`
	UserID string `json:"user,omitempty"`
	Except string `json:"except,omitempty"`
	Frame  []byte `json:"frame"`
}

// Fanout carries deliveries to every server instance holding sockets.
type Fanout interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe registers the local delivery function. It returns once the
	// subscription is live.
	Subscribe(ctx context.Context, deliver func(Delivery)) error
}

// LocalFanout delivers in-process; used when no Redis is configured.
type LocalFanout struct {
	mu      sync.RWMutex
	deliver func(Delivery)
}

func NewLocalFanout() *LocalFanout {
	return &LocalFanout{}
}

func (f *LocalFanout) Publish(ctx context.Context, d Delivery) error {
	f.mu.RLock()
	deliver := f.deliver
	f.mu.RUnlock()
	if deliver == nil {
		return fmt.Errorf("fanout has no subscriber")
	}
	deliver(d)
	return nil
}

func (f *LocalFanout) Subscribe(ctx context.Context, deliver func(Delivery)) error {
	f.mu.Lock()
	f.deliver = deliver
	f.mu.Unlock()
	return nil
}

const channelPrefix = "clanchat:"

// RedisFanout relays deliveries over Redis pub/sub. Local sockets receive
// their frames through the subscription too, so every instance sees the
// same order.
type RedisFanout struct {
	client *redis.Client
}

func NewRedisFanout(client *redis.Client) *RedisFanout {
	return &RedisFanout{client: client}
}

func channelFor(d Delivery) string {
	if d.RoomID != "" {
		return channelPrefix + "room:" + d.RoomID
	}
	return channelPrefix + "user:" + d.UserID
}

func (f *RedisFanout) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, channelFor(d), data).Err()
}

func (f *RedisFanout) Subscribe(ctx context.Context, deliver func(Delivery)) error {
	pubsub := f.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to fanout: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Channel, channelPrefix) {
					continue
				}
				var d Delivery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					logger.Error("Failed to unmarshal fanout payload on %s: %v", msg.Channel, err)
					continue
				}
				deliver(d)
			}
		}
	}()
	return nil
}
