package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/procura/services/notification-service/internal/domain/inbox"
)

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

func (r *InboxRepository) IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE event_id = $1`
	var exists int
	err := tx.QueryRow(ctx, query, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

func (r *InboxRepository) MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	query := `INSERT INTO processed_events (event_id) VALUES ($1)`
	if _, err := tx.Exec(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// StoreNotification inserts a notification. The event id doubles as the
// notification id, so a replay cannot create a second row.
func (r *InboxRepository) StoreNotification(ctx context.Context, tx pgx.Tx, n *inbox.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `
		INSERT INTO notifications (id, user_id, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, n.ID, n.UserID, n.Kind, body, n.OccurredAt); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (r *InboxRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*inbox.Notification, error) {
	query := `
		SELECT id, user_id, kind, payload, occurred_at, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*inbox.Notification
	for rows.Next() {
		var (
			n    inbox.Notification
			body []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &body, &n.OccurredAt, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(body, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", n.ID, err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// MarkRead keeps the first read time
func (r *InboxRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, notificationID, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return tag.RowsAffected(), nil
}
