package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/config"
	"github.com/suPer8Hu/staffchat/internal/db"
	"github.com/suPer8Hu/staffchat/internal/directory"
	"github.com/suPer8Hu/staffchat/internal/httpapi"
	"github.com/suPer8Hu/staffchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/staffchat/internal/store"
	"github.com/suPer8Hu/staffchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/staffchat/internal/typing"
)

func main() {
	cfg := config.Load()

	logger, err := common.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	broker, err := store.NewBroker(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("realtime broker", zap.Error(err))
	}
	defer broker.Close()

	users := directory.NewRepo(gdb)

	opts := []chat.Option{
		chat.WithNotifier(broker),
		chat.WithLogger(logger),
		chat.WithRetryPolicy(retryPolicy(cfg)),
	}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			// sends still work; failed summary writes are only logged
			logger.Warn("rabbitmq unavailable, summary repairs disabled", zap.Error(err))
		} else {
			defer pub.Close()
			opts = append(opts, chat.WithRepairQueue(pub))
		}
	}
	chatSvc := chat.NewService(chat.NewRepo(gdb), users, opts...)

	tracker := typing.NewTracker(typing.NewPublishingWriter(users, broker), cfg.TypingIdle, logger)
	defer tracker.Close()

	r := httpapi.NewRouter(handlers.Deps{
		Cfg:     cfg,
		Log:     logger,
		Users:   users,
		ChatSvc: chatSvc,
		Typing:  tracker,
		Broker:  broker,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.HTTPAddr), zap.String("realtime", cfg.RealtimeBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func retryPolicy(cfg config.Config) chat.RetryPolicy {
	p := chat.DefaultRetryPolicy()
	p.Attempts = cfg.LedgerRetryAttempts
	return p
}
