package typing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/common"
)

// DefaultIdle is how long a user stays Typing after the last input change.
const DefaultIdle = 2 * time.Second

type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	if s == Typing {
		return "typing"
	}
	return "idle"
}

// FlagWriter persists a user's typing flag.
type FlagWriter interface {
	SetTyping(ctx context.Context, uid string, typing bool) error
}

type entry struct {
	mu    sync.Mutex
	state State
	timer *time.Timer
	gen   uint64
}

// Tracker debounces input changes into typing flag writes. The flag is
// written on every Idle/Typing transition and never in between, so a burst
// of keystrokes costs one write.
type Tracker struct {
	idle   time.Duration
	writer FlagWriter
	log    *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewTracker(w FlagWriter, idle time.Duration, log *zap.Logger) *Tracker {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Tracker{
		idle:    idle,
		writer:  w,
		log:     common.OrNop(log),
		entries: make(map[string]*entry),
	}
}

func (t *Tracker) entry(uid string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[uid]
	if !ok {
		e = &entry{}
		t.entries[uid] = e
	}
	return e
}

// InputChanged records the current composer text for uid. Non-blank text
// moves the user to Typing and restarts the idle countdown; blank text
// moves them to Idle at once.
func (t *Tracker) InputChanged(ctx context.Context, uid, text string) error {
	e := t.entry(uid)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++

	if strings.TrimSpace(text) == "" {
		if e.state == Idle {
			return nil
		}
		e.state = Idle
		return t.writer.SetTyping(ctx, uid, false)
	}

	gen := e.gen
	if t.isClosed() {
		return nil
	}
	e.timer = time.AfterFunc(t.idle, func() { t.expire(uid, e, gen) })
	if e.state == Typing {
		return nil
	}
	e.state = Typing
	return t.writer.SetTyping(ctx, uid, true)
}

func (t *Tracker) expire(uid string, e *entry, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// superseded by a later input change
	if e.gen != gen || e.state != Typing {
		return
	}
	e.state = Idle
	e.timer = nil
	if err := t.writer.SetTyping(context.Background(), uid, false); err != nil {
		t.log.Warn("typing: clear on idle failed", zap.String("uid", uid), zap.Error(err))
	}
}

// Exit cancels any countdown and clears the flag whatever the state.
func (t *Tracker) Exit(ctx context.Context, uid string) error {
	e := t.entry(uid)
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.state = Idle
	err := t.writer.SetTyping(ctx, uid, false)
	e.mu.Unlock()

	t.mu.Lock()
	if t.entries[uid] == e {
		delete(t.entries, uid)
	}
	t.mu.Unlock()
	return err
}

func (t *Tracker) State(uid string) State {
	t.mu.Lock()
	e, ok := t.entries[uid]
	t.mu.Unlock()
	if !ok {
		return Idle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close stops every pending countdown. Flags already written stay as they
// are; callers wanting them cleared call Exit per user first.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	all := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.mu.Unlock()

	for _, e := range all {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
		e.mu.Unlock()
	}
}
