package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/floroz/procura/pkg/database"
	pkgevents "github.com/floroz/procura/pkg/events"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	repo        Repository
	txManager   database.TransactionManager
	broadcaster Broadcaster
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewService(
	repo Repository,
	txManager database.TransactionManager,
	broadcaster Broadcaster,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		txManager:   txManager,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
	}
}

// ProcessNotification stores and pushes one delivered notification.
// Redelivered events are acknowledged without side effects.
func (s *Service) ProcessNotification(ctx context.Context, n *pkgevents.Notification) error {
	// 1. Start Transaction
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// 2. Check Idempotency
	isProcessed, err := s.repo.IsEventProcessed(ctx, tx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to check idempotency: %w", err)
	}
	if isProcessed {
		s.logger.Debug("notification already processed", "event_id", n.ID)
		return nil
	}

	// 3. Only user notifications have an inbox; role broadcasts are live only
	if n.TargetType == pkgevents.TargetUser {
		userID, err := uuid.Parse(n.Target)
		if err != nil {
			return fmt.Errorf("invalid user target %q: %w", n.Target, err)
		}
		if err := s.repo.StoreNotification(ctx, tx, &Notification{
			ID:         n.ID,
			UserID:     userID,
			Kind:       n.Kind,
			Payload:    n.Payload,
			OccurredAt: n.OccurredAt,
		}); err != nil {
			return fmt.Errorf("failed to store notification: %w", err)
		}
	}

	// 4. Push to live subscribers
	msg, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := s.broadcaster.Publish(ctx, Channel(n), msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	// 5. Mark Event as Processed
	if err := s.repo.MarkEventProcessed(ctx, tx, n.ID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	// 6. Commit
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListInbox returns the newest notifications of a user
func (s *Service) ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks a notification of userID as read. Marking twice is harmless.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	n, err := s.repo.MarkRead(ctx, userID, notificationID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
