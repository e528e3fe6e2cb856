package realtime

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("realtime: broker closed")

// MemoryBroker is an in-process Broker for single-node deployments and tests.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Sub]struct{}
	buffer int
	closed bool
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*Sub]struct{}), buffer: buffer}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Topic = topic

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for s := range b.subs[topic] {
		s.Deliver(ev)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var s *Sub
	s = NewSub(b.buffer, func() error {
		b.remove(topic, s)
		return nil
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Sub]struct{})
	}
	b.subs[topic][s] = struct{}{}
	return s, nil
}

func (b *MemoryBroker) remove(topic string, s *Sub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Subscribers reports the live subscriber count for topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close ends every live subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Sub
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[string]map[*Sub]struct{})
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}
