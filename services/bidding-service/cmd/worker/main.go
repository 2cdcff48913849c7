package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	pkgdb "github.com/floroz/procura/pkg/database"
	pkgevents "github.com/floroz/procura/pkg/events"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/cache"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/database"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/events"
	"github.com/floroz/procura/services/bidding-service/internal/closure"
	"github.com/floroz/procura/services/bidding-service/internal/config"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// The worker runs only the closure scheduler. Run it when API replicas have
// SCHEDULER_ENABLED=false.
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("closure worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pkgdb.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("Postgres Connected")

	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	publisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, pkgevents.NotificationsExchange)
	if err != nil {
		return fmt.Errorf("failed to create RabbitMQ publisher: %w", err)
	}
	defer publisher.Close()
	logger.Info("RabbitMQ Connected")

	var recorder closure.StateRecorder
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed, sweep state will not be shared", "error", err)
		} else {
			recorder = cache.NewRedisSweepState(rdb)
		}
	}

	clock := clockwork.NewRealClock()
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	projectRepo := database.NewPostgresProjectRepository(pool)
	sink := events.NewNotificationSink(publisher, pkgevents.NotificationsExchange, clock)

	engine := lifecycle.NewEngine(
		txManager,
		projectRepo,
		database.NewPostgresBidRepository(pool),
		sink,
		database.NewPostgresRatingRepository(pool),
		clock,
		logger,
	).WithNotifyTimeout(cfg.NotifyTimeout)

	sweeper := closure.NewSweeper(projectRepo, engine, clock, cfg.SweepBatchSize, logger)
	scheduler := closure.NewScheduler(sweeper, recorder, clock, cfg.SweepInterval, cfg.InstanceID, logger)

	logger.Info("Starting closure scheduler...", "instance_id", cfg.InstanceID, "interval", cfg.SweepInterval)
	return scheduler.Run(ctx)
}
