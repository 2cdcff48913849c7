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
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/procura/pkg/auth"
	pkgdb "github.com/floroz/procura/pkg/database"
	"github.com/floroz/procura/services/notification-service/internal/adapters/api"
	"github.com/floroz/procura/services/notification-service/internal/adapters/database"
	"github.com/floroz/procura/services/notification-service/internal/config"
	"github.com/floroz/procura/services/notification-service/internal/domain/inbox"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("notification api stopped", "error", err)
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

	// 1. Load JWT Public Key for token validation
	publicKeyPEM, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read public key %q: %w", cfg.JWTPublicKeyPath, err)
	}
	signer, err := auth.NewSignerFromPublicKey(publicKeyPEM, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	logger.Info("JWT public key loaded", "path", cfg.JWTPublicKeyPath)

	// 2. Postgres
	pool, err := pkgdb.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("Postgres Connected")

	// 3. Dependencies. The API never consumes, so it needs no broadcaster.
	svc := inbox.NewService(
		database.NewInboxRepository(pool),
		pkgdb.NewPostgresTransactionManager(pool, 5*time.Second),
		nil,
		clockwork.NewRealClock(),
		logger,
	)
	handler := api.NewHandler(svc, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(handler.Routes(auth.Middleware(signer)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Notification Service API", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
