package redisstore

import (
	"encoding/json"
	"testing"

	"github.com/suPer8Hu/staffchat/internal/realtime"
)

func TestDecodeEvent_RoundTripsPayload(t *testing.T) {
	ev, err := realtime.NewEvent("user.A", realtime.KindTyping, map[string]any{"uid": "B", "typing": true})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	body, _ := json.Marshal(ev)

	got, err := decodeEvent(string(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Topic != "user.A" || got.Kind != realtime.KindTyping {
		t.Fatalf("unexpected event %+v", got)
	}
	var p struct {
		UID    string `json:"uid"`
		Typing bool   `json:"typing"`
	}
	if err := got.Decode(&p); err != nil || p.UID != "B" || !p.Typing {
		t.Fatalf("payload lost: %+v err=%v", p, err)
	}
}

func TestDecodeEvent_RejectsGarbage(t *testing.T) {
	if _, err := decodeEvent("not json"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestChannelIsNamespaced(t *testing.T) {
	if got := channel(realtime.ChatTopic("A_B")); got != "staffchat:chat.A_B" {
		t.Fatalf("unexpected channel %q", got)
	}
}
