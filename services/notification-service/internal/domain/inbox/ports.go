package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository stores user notifications and the ids of handled events
type Repository interface {
	IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error)
	MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error
	StoreNotification(ctx context.Context, tx pgx.Tx, n *Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, at time.Time) (int64, error)
}

// Broadcaster pushes an encoded notification to live subscribers
type Broadcaster interface {
	Publish(ctx context.Context, channel string, message []byte) error
}
