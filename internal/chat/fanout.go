package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis channel shared by relay instances.
const DefaultChannel = "swapmeet:relay"

// Delivery addresses one outbound frame. Exactly one of Room, Owner or
// All selects the audience; Except excludes a single connection.
type Delivery struct {
	Room   string          `json:"room,omitempty"`
	Owner  int64           `json:"owner,omitempty"`
	All    bool            `json:"all,omitempty"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Fanout carries deliveries to every relay instance, including this one.
type Fanout interface {
	Start(deliver func(Delivery)) error
	Publish(ctx context.Context, d Delivery) error
	Close() error
}

// LocalFanout delivers in-process.
type LocalFanout struct {
	mu      sync.RWMutex
	deliver func(Delivery)
}

func NewLocalFanout() *LocalFanout { return &LocalFanout{} }

func (f *LocalFanout) Start(deliver func(Delivery)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliver = deliver
	return nil
}

func (f *LocalFanout) Publish(_ context.Context, d Delivery) error {
	f.mu.RLock()
	deliver := f.deliver
	f.mu.RUnlock()
	if deliver == nil {
		return fmt.Errorf("fanout not started")
	}
	deliver(d)
	return nil
}

func (f *LocalFanout) Close() error { return nil }

// RedisFanout publishes deliveries on a Redis channel and delivers what
// arrives on the subscription, so rooms span every subscribed instance.
type RedisFanout struct {
	rdb     *redis.Client
	channel string
	log     logrus.FieldLogger

	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisFanout(rdb *redis.Client, channel string, log logrus.FieldLogger) *RedisFanout {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFanout{rdb: rdb, channel: channel, log: log, done: make(chan struct{})}
}

// Start subscribes and waits for the subscription to be confirmed so no
// publish made after Start returns is missed.
func (f *RedisFanout) Start(deliver func(Delivery)) error {
	ctx := context.Background()
	f.pubsub = f.rdb.Subscribe(ctx, f.channel)
	if _, err := f.pubsub.Receive(ctx); err != nil {
		f.pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	ch := f.pubsub.Channel()
	go func() {
		defer close(f.done)
		for msg := range ch {
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				f.log.WithError(err).Warn("relay: dropping malformed delivery")
				continue
			}
			deliver(d)
		}
	}()

	f.log.WithField("channel", f.channel).Info("relay: redis fan-out subscribed")
	return nil
}

func (f *RedisFanout) Publish(ctx context.Context, d Delivery) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", f.channel, err)
	}
	return nil
}

func (f *RedisFanout) Close() error {
	if f.pubsub == nil {
		return nil
	}
	err := f.pubsub.Close()
	<-f.done
	return err
}
