package natsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/realtime"
)

const subjectPrefix = "staffchat"

// Broker carries realtime events over core NATS subjects. Events are not
// persisted: a subscriber only sees what is published while it is live.
type Broker struct {
	nc     *nats.Conn
	buffer int
	log    *zap.Logger
}

// Connect dials url and returns a ready broker.
func Connect(url string, buffer int, log *zap.Logger) (*Broker, error) {
	log = common.OrNop(log)
	nc, err := nats.Connect(url,
		nats.Name("staffchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Broker{nc: nc, buffer: buffer, log: log}, nil
}

func subject(topic string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, topic)
}

func (b *Broker) Publish(ctx context.Context, topic string, ev realtime.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Topic = topic
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.nc.Publish(subject(topic), data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", subject(topic), err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (realtime.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ns *nats.Subscription
	sub := realtime.NewSub(b.buffer, func() error {
		if ns == nil {
			return nil
		}
		return ns.Unsubscribe()
	})
	ns, err := b.nc.Subscribe(subject(topic), func(m *nats.Msg) {
		var ev realtime.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.log.Warn("nats: bad event payload", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		sub.Deliver(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to '%s': %w", subject(topic), err)
	}
	// make sure the server registered interest before returning
	if err := b.nc.Flush(); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

// Close drains in-flight messages and closes the connection.
func (b *Broker) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
