package realtime

import (
	"encoding/json"
	"time"
)

// Event kinds.
const (
	KindMessage  = "message"
	KindRead     = "read"
	KindSummary  = "summary"
	KindTyping   = "typing"
	KindPresence = "presence"
)

type Event struct {
	Topic string          `json:"topic"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

func NewEvent(topic, kind string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Topic: topic, Kind: kind, Data: b, At: time.Now().UTC()}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ChatTopic carries message and read events for one conversation.
func ChatTopic(sessionID string) string { return "chat." + sessionID }

// UserTopic carries summary, typing and presence events owned by one user.
func UserTopic(uid string) string { return "user." + uid }

// TypingState is the payload of a typing event.
type TypingState struct {
	UID    string `json:"uid"`
	Typing bool   `json:"typing"`
}

// PresenceState is the payload of a presence event.
type PresenceState struct {
	UID    string `json:"uid"`
	Online bool   `json:"online"`
}
