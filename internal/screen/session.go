package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/realtime"
)

// Client frame types.
const (
	FrameInput = "input"
	FrameSend  = "send"
)

var (
	ErrUnknownFrame = errors.New("screen: unknown frame type")
	ErrClosed       = errors.New("screen: session closed")
)

// Frame is one message from the client.
type Frame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Ledger interface {
	Send(ctx context.Context, sender, receiver, text string) (*chat.Message, error)
	OpenConversation(ctx context.Context, reader, counterpart string) (int64, error)
}

type Typing interface {
	InputChanged(ctx context.Context, uid, text string) error
	Exit(ctx context.Context, uid string) error
}

type Presence interface {
	SetPresence(ctx context.Context, uid string, online bool) error
}

type Deps struct {
	Chat     Ledger
	Broker   realtime.Broker
	Typing   Typing
	Presence Presence
	Log      *zap.Logger
	// Buffer sizes the outbound event queue; events beyond it are dropped.
	Buffer int
}

// Session is one open chat screen: viewer looking at their conversation
// with counterpart. It owns every subscription it makes and releases them
// in Close.
type Session struct {
	deps        Deps
	log         *zap.Logger
	viewer      string
	counterpart string
	sessionID   string

	out    chan realtime.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   []realtime.Subscription
	opened bool
	closed bool
}

func New(deps Deps, viewer, counterpart string) (*Session, error) {
	if viewer == counterpart {
		return nil, chat.ErrSelfConversation
	}
	sid, err := chat.SessionID(viewer, counterpart)
	if err != nil {
		return nil, err
	}
	buf := deps.Buffer
	if buf <= 0 {
		buf = realtime.DefaultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:        deps,
		log:         common.OrNop(deps.Log).With(zap.String("viewer", viewer), zap.String("session", sid)),
		viewer:      viewer,
		counterpart: counterpart,
		sessionID:   sid,
		out:         make(chan realtime.Event, buf),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Events delivers what the client should render. It is closed by Close.
func (s *Session) Events() <-chan realtime.Event { return s.out }

func (s *Session) SessionID() string { return s.sessionID }

// Open subscribes to the conversation and the counterpart's user topic,
// marks the viewer online and reads whatever is waiting. On error the
// caller still owns the session and must Close it.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = true
	s.mu.Unlock()

	for _, topic := range []string{realtime.ChatTopic(s.sessionID), realtime.UserTopic(s.counterpart)} {
		sub, err := s.deps.Broker.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		if !s.track(sub) {
			_ = sub.Close()
			return ErrClosed
		}
		go s.forward(sub)
	}

	if err := s.setPresence(ctx, true); err != nil {
		return err
	}
	if _, err := s.deps.Chat.OpenConversation(ctx, s.viewer, s.counterpart); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	return nil
}

func (s *Session) track(sub realtime.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.subs = append(s.subs, sub)
	s.wg.Add(1)
	return true
}

func (s *Session) forward(sub realtime.Subscription) {
	defer s.wg.Done()
	for ev := range sub.C() {
		if !s.wants(ev) {
			continue
		}
		if ev.Kind == realtime.KindMessage && s.addressedToViewer(ev) {
			// the viewer is looking at the conversation
			if _, err := s.deps.Chat.OpenConversation(s.ctx, s.viewer, s.counterpart); err != nil && s.ctx.Err() == nil {
				s.log.Warn("mark read on arrival failed", zap.Error(err))
			}
		}
		select {
		case s.out <- ev:
		default:
			s.log.Debug("client behind, event dropped", zap.String("kind", ev.Kind))
		}
	}
}

// wants filters the counterpart's user topic down to what a chat screen
// renders.
func (s *Session) wants(ev realtime.Event) bool {
	switch ev.Kind {
	case realtime.KindMessage, realtime.KindRead, realtime.KindTyping, realtime.KindPresence:
		return true
	}
	return false
}

func (s *Session) addressedToViewer(ev realtime.Event) bool {
	var m chat.Message
	if err := ev.Decode(&m); err != nil {
		return false
	}
	return m.ReceiverID == s.viewer
}

// Handle applies one client frame.
func (s *Session) Handle(ctx context.Context, f Frame) error {
	if s.isClosed() {
		return ErrClosed
	}
	switch f.Type {
	case FrameInput:
		return s.deps.Typing.InputChanged(ctx, s.viewer, f.Text)
	case FrameSend:
		if _, err := s.deps.Chat.Send(ctx, s.viewer, s.counterpart, f.Text); err != nil {
			return err
		}
		// the composer is cleared after a send
		return s.deps.Typing.InputChanged(ctx, s.viewer, "")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the screen down: every subscription is cancelled, the
// viewer's typing flag is cleared and the viewer goes offline. Every step
// runs even if an earlier one fails. Calling Close again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	opened := s.opened
	s.mu.Unlock()

	var result *multierror.Error
	s.cancel()
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	s.wg.Wait()
	close(s.out)

	if err := s.deps.Typing.Exit(ctx, s.viewer); err != nil {
		result = multierror.Append(result, fmt.Errorf("clear typing: %w", err))
	}
	if opened {
		if err := s.setPresence(ctx, false); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Session) setPresence(ctx context.Context, online bool) error {
	if s.deps.Presence == nil {
		return nil
	}
	if err := s.deps.Presence.SetPresence(ctx, s.viewer, online); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	ev, err := realtime.NewEvent(realtime.UserTopic(s.viewer), realtime.KindPresence, realtime.PresenceState{UID: s.viewer, Online: online})
	if err != nil {
		return err
	}
	if err := s.deps.Broker.Publish(ctx, ev.Topic, ev); err != nil {
		s.log.Warn("publish presence failed", zap.Error(err))
	}
	return nil
}
