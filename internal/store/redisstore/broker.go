package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/realtime"
)

const channelPrefix = "staffchat:"

// Broker fans realtime events out over Redis pub/sub so every API node sees
// every event.
type Broker struct {
	store  *Store
	buffer int
	log    *zap.Logger
}

func NewBroker(s *Store, buffer int, log *zap.Logger) *Broker {
	return &Broker{store: s, buffer: buffer, log: common.OrNop(log)}
}

func channel(topic string) string { return channelPrefix + topic }

func (b *Broker) Publish(ctx context.Context, topic string, ev realtime.Event) error {
	ev.Topic = topic
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.store.rdb.Publish(ctx, channel(topic), body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (realtime.Subscription, error) {
	ps := b.store.rdb.Subscribe(ctx, channel(topic))
	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	sub := realtime.NewSub(b.buffer, ps.Close)
	go b.pump(topic, ps.Channel(), sub)
	return sub, nil
}

func (b *Broker) pump(topic string, in <-chan *redis.Message, sub *realtime.Sub) {
	for m := range in {
		ev, err := decodeEvent(m.Payload)
		if err != nil {
			b.log.Warn("redis: bad event payload", zap.String("topic", topic), zap.Error(err))
			continue
		}
		if !sub.Deliver(ev) {
			b.log.Debug("redis: subscriber behind, event dropped", zap.String("topic", topic))
		}
	}
}

func decodeEvent(payload string) (realtime.Event, error) {
	var ev realtime.Event
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}

// Close releases the underlying client.
func (b *Broker) Close() error {
	return b.store.Close()
}
