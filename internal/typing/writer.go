package typing

import (
	"context"

	"github.com/suPer8Hu/staffchat/internal/realtime"
)

// PublishingWriter stores the flag through next and then announces it on the
// user's topic so open chat screens see the change.
type PublishingWriter struct {
	next   FlagWriter
	notify realtime.Publisher
}

func NewPublishingWriter(next FlagWriter, notify realtime.Publisher) *PublishingWriter {
	return &PublishingWriter{next: next, notify: notify}
}

func (w *PublishingWriter) SetTyping(ctx context.Context, uid string, typing bool) error {
	if err := w.next.SetTyping(ctx, uid, typing); err != nil {
		return err
	}
	if w.notify == nil {
		return nil
	}
	ev, err := realtime.NewEvent(realtime.UserTopic(uid), realtime.KindTyping, realtime.TypingState{UID: uid, Typing: typing})
	if err != nil {
		return err
	}
	return w.notify.Publish(ctx, ev.Topic, ev)
}
