package realtime

import (
	"context"
	"sync"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// Broker fans events out to live subscribers. Delivery is best effort: a
// subscriber that falls behind loses events instead of stalling publishers.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription is the cancellation handle of one Subscribe call. Close is
// idempotent and closes C.
type Subscription interface {
	C() <-chan Event
	Close() error
}

const DefaultBuffer = 64

// Sub is the channel-backed Subscription shared by the broker backends.
type Sub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	stop   func() error
}

// NewSub returns a subscription whose Close runs stop once before closing C.
func NewSub(buffer int, stop func() error) *Sub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Sub{ch: make(chan Event, buffer), stop: stop}
}

func (s *Sub) C() <-chan Event { return s.ch }

// Deliver hands ev to the subscriber without blocking. It reports false when
// the event was dropped.
func (s *Sub) Deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Sub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		return stop()
	}
	return nil
}
