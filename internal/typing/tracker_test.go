package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/staffchat/internal/realtime"
)

type flagLog struct {
	mu     sync.Mutex
	writes []bool
}

func (f *flagLog) SetTyping(ctx context.Context, uid string, typing bool) error {
	_ = ctx
	_ = uid
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, typing)
	return nil
}

func (f *flagLog) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func equal(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInputChanged_TypingThenIdleAfterWindow(t *testing.T) {
	w := &flagLog{}
	tr := NewTracker(w, 40*time.Millisecond, nil)
	defer tr.Close()
	ctx := context.Background()

	if err := tr.InputChanged(ctx, "U", "h"); err != nil {
		t.Fatalf("input: %v", err)
	}
	if tr.State("U") != Typing {
		t.Fatalf("expected typing")
	}
	waitFor(t, func() bool { return tr.State("U") == Idle })
	if got := w.snapshot(); !equal(got, []bool{true, false}) {
		t.Fatalf("unexpected writes %v", got)
	}
}

func TestInputChanged_EmptyClearsImmediately(t *testing.T) {
	w := &flagLog{}
	tr := NewTracker(w, time.Hour, nil)
	defer tr.Close()
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "U", "h")
	_ = tr.InputChanged(ctx, "U", "   ")
	if tr.State("U") != Idle {
		t.Fatalf("expected idle")
	}
	if got := w.snapshot(); !equal(got, []bool{true, false}) {
		t.Fatalf("unexpected writes %v", got)
	}
	// blank input while idle writes nothing
	_ = tr.InputChanged(ctx, "U", "")
	if got := w.snapshot(); len(got) != 2 {
		t.Fatalf("unexpected writes %v", got)
	}
}

func TestInputChanged_Debounces(t *testing.T) {
	w := &flagLog{}
	tr := NewTracker(w, 150*time.Millisecond, nil)
	defer tr.Close()
	ctx := context.Background()

	// keep typing past the window; each change restarts the countdown
	for i := 0; i < 6; i++ {
		_ = tr.InputChanged(ctx, "U", "hello"[:1+i%4])
		time.Sleep(30 * time.Millisecond)
	}
	if tr.State("U") != Typing {
		t.Fatalf("countdown should have been restarted")
	}
	if got := w.snapshot(); !equal(got, []bool{true}) {
		t.Fatalf("expected a single write while typing, got %v", got)
	}
	waitFor(t, func() bool { return tr.State("U") == Idle })
}

func TestExit_AlwaysClears(t *testing.T) {
	w := &flagLog{}
	tr := NewTracker(w, 30*time.Millisecond, nil)
	defer tr.Close()
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "U", "h")
	if err := tr.Exit(ctx, "U"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	// exit while idle still writes false
	if err := tr.Exit(ctx, "U"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if got := w.snapshot(); !equal(got, []bool{true, false, false}) {
		t.Fatalf("countdown fired after exit or exit skipped a write: %v", got)
	}
}

func TestPublishingWriter(t *testing.T) {
	broker := realtime.NewMemoryBroker(4)
	defer broker.Close()
	sub, _ := broker.Subscribe(context.Background(), realtime.UserTopic("U"))

	w := NewPublishingWriter(&flagLog{}, broker)
	if err := w.SetTyping(context.Background(), "U", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	ev := <-sub.C()
	var st realtime.TypingState
	if ev.Kind != realtime.KindTyping || ev.Decode(&st) != nil || !st.Typing || st.UID != "U" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
