package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/procura/pkg/auth"
	pkgdb "github.com/floroz/procura/pkg/database"
	pkgevents "github.com/floroz/procura/pkg/events"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/api"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/cache"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/database"
	"github.com/floroz/procura/services/bidding-service/internal/adapters/events"
	"github.com/floroz/procura/services/bidding-service/internal/closure"
	"github.com/floroz/procura/services/bidding-service/internal/config"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("bidding api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

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
		logger.Info("Migrations applied", "dir", cfg.MigrationsDir)
	}

	// 2. RabbitMQ
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

	// 3. Redis is optional; without it sweep state stays local
	var (
		recorder closure.StateRecorder
		sweeps   api.SweepStates
	)
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed, sweep state will not be shared", "error", err)
		} else {
			state := cache.NewRedisSweepState(rdb)
			recorder, sweeps = state, state
			logger.Info("Redis Connected")
		}
	}

	// 4. Domain wiring
	clock := clockwork.NewRealClock()
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	projectRepo := database.NewPostgresProjectRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	ratingRepo := database.NewPostgresRatingRepository(pool)
	sink := events.NewNotificationSink(publisher, pkgevents.NotificationsExchange, clock)

	engine := lifecycle.NewEngine(txManager, projectRepo, bidRepo, sink, ratingRepo, clock, logger).
		WithNotifyTimeout(cfg.NotifyTimeout)

	// 5. Closure scheduler
	var schedCtl api.SchedulerControl
	if cfg.SchedulerEnabled {
		sweeper := closure.NewSweeper(projectRepo, engine, clock, cfg.SweepBatchSize, logger)
		scheduler := closure.NewScheduler(sweeper, recorder, clock, cfg.SweepInterval, cfg.InstanceID, logger)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
		schedCtl = scheduler
	}

	// 6. Auth
	publicKey, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read JWT public key: %w", err)
	}
	signer, err := auth.NewSignerFromPublicKey(publicKey, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to load JWT public key: %w", err)
	}

	handler := api.NewHandler(engine, engine.Overrides(), schedCtl, sweeps, ratingRepo, logger)

	// Use h2c for HTTP/2 without TLS
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(handler.Routes(auth.Middleware(signer)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Bidding Service API", "addr", cfg.HTTPAddr, "instance_id", cfg.InstanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
