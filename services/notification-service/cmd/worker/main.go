package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	pkgdb "github.com/floroz/procura/pkg/database"
	"github.com/floroz/procura/services/notification-service/internal/adapters/cache"
	"github.com/floroz/procura/services/notification-service/internal/adapters/database"
	"github.com/floroz/procura/services/notification-service/internal/adapters/events"
	"github.com/floroz/procura/services/notification-service/internal/config"
	"github.com/floroz/procura/services/notification-service/internal/domain/inbox"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("notification consumer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Notification consumer stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Postgres
	pool, err := pkgdb.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("Postgres Connected")

	if cfg.MigrateOnStart {
		if err := pkgdb.Migrate(pool, cfg.MigrationsDir); err != nil {
			return err
		}
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Redis Connected")

	// 3. Dependencies
	svc := inbox.NewService(
		database.NewInboxRepository(pool),
		pkgdb.NewPostgresTransactionManager(pool, 5*time.Second),
		cache.NewRedisBroadcaster(rdb),
		clockwork.NewRealClock(),
		logger,
	)

	// 4. RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	// 5. Start Consumer
	consumer := events.NewNotificationConsumer(amqpConn, svc, logger)
	logger.Info("Starting notification consumer...")
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
