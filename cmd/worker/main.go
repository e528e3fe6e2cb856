package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/config"
	"github.com/suPer8Hu/staffchat/internal/db"
	"github.com/suPer8Hu/staffchat/internal/directory"
	"github.com/suPer8Hu/staffchat/internal/store"
	"github.com/suPer8Hu/staffchat/internal/store/rabbitmq"
)

const (
	maxAttempts = 5
	baseDelay   = 2 * time.Second
)

func main() {
	cfg := config.Load()

	logger, err := common.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// rebuilt summaries are pushed to open inboxes like any other update
	broker, err := store.NewBroker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("realtime broker", zap.Error(err))
	}
	defer broker.Close()

	retries, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("rabbit publisher", zap.Error(err))
	}
	defer retries.Close()

	policy := chat.DefaultRetryPolicy()
	policy.Attempts = cfg.LedgerRetryAttempts
	svc := chat.NewService(chat.NewRepo(gdb), directory.NewRepo(gdb),
		chat.WithNotifier(broker),
		chat.WithLogger(logger),
		chat.WithRetryPolicy(policy),
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	logger.Info("repair worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := logger.With(zap.Int("worker", workerID))
			for d := range jobs {
				handleDelivery(ctx, svc, retries, d, wlog)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, svc *chat.Service, retries *rabbitmq.Publisher, d amqp.Delivery, logger *zap.Logger) {
	job, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		logger.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	logger = logger.With(zap.String("owner", job.OwnerID), zap.String("counterpart", job.CounterpartID))

	start := time.Now()
	rc, err := svc.RebuildSummary(ctx, job.OwnerID, job.CounterpartID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			logger.Warn("ack failed", zap.Error(err))
		}
		var unread int64
		if rc != nil {
			unread = rc.UnreadCount
		}
		logger.Info("summary rebuilt", zap.Int64("unread", unread), zap.Duration("cost", time.Since(start)))
		return
	}

	if ctx.Err() != nil {
		// shutting down; let another consumer take it
		_ = d.Nack(false, true)
		return
	}

	attempt := rabbitmq.Attempt(d.Headers) + 1
	delay, retry := retryDelay(err, attempt)
	if !retry {
		logger.Error("repair failed, dead-lettering", zap.Int("attempt", attempt), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if perr := retries.Retry(ctx, d.Body, attempt, delay); perr != nil {
		logger.Error("schedule retry failed", zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	logger.Warn("repair failed, retrying later", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	_ = d.Ack(false)
}

// retryDelay reports how long to park a failed job before its next attempt.
// Malformed jobs and jobs that used up maxAttempts are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if chat.IsPermanent(err) || attempt >= maxAttempts {
		return 0, false
	}
	return baseDelay << (attempt - 1), true
}
