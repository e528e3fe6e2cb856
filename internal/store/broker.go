// Package store picks the realtime backend named in the configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/config"
	"github.com/suPer8Hu/staffchat/internal/realtime"
	"github.com/suPer8Hu/staffchat/internal/store/natsstore"
	"github.com/suPer8Hu/staffchat/internal/store/redisstore"
)

func NewBroker(ctx context.Context, cfg config.Config, logger *zap.Logger) (realtime.Broker, error) {
	switch cfg.RealtimeBackend {
	case "", "memory":
		return realtime.NewMemoryBroker(realtime.DefaultBuffer), nil
	case "redis":
		s := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.NewBroker(s, realtime.DefaultBuffer, logger), nil
	case "nats":
		return natsstore.Connect(cfg.NatsURL, realtime.DefaultBuffer, logger)
	default:
		return nil, fmt.Errorf("unsupported REALTIME_BACKEND=%q", cfg.RealtimeBackend)
	}
}
