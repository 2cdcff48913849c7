package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	pkgevents "github.com/floroz/procura/pkg/events"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// EventPublisher defines the interface for publishing events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// NotificationSink implements lifecycle.NotificationSink by publishing
// notification envelopes to the notifications exchange
type NotificationSink struct {
	publisher EventPublisher
	exchange  string
	clock     clockwork.Clock
}

// NewNotificationSink creates a new RabbitMQ backed notification sink
func NewNotificationSink(publisher EventPublisher, exchange string, clock clockwork.Clock) *NotificationSink {
	return &NotificationSink{
		publisher: publisher,
		exchange:  exchange,
		clock:     clock,
	}
}

// NotifyUser publishes a notification addressed to one user
func (s *NotificationSink) NotifyUser(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	return s.publish(ctx, &pkgevents.Notification{
		ID:         uuid.New(),
		Kind:       kind,
		TargetType: pkgevents.TargetUser,
		Target:     userID.String(),
		Payload:    payload,
		OccurredAt: s.clock.Now(),
	})
}

// BroadcastToRole publishes a notification for every user holding role
func (s *NotificationSink) BroadcastToRole(ctx context.Context, role lifecycle.Role, kind string, payload map[string]any) error {
	return s.publish(ctx, &pkgevents.Notification{
		ID:         uuid.New(),
		Kind:       kind,
		TargetType: pkgevents.TargetRole,
		Target:     string(role),
		Payload:    payload,
		OccurredAt: s.clock.Now(),
	})
}

func (s *NotificationSink) publish(ctx context.Context, n *pkgevents.Notification) error {
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.exchange, n.RoutingKey(), body); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.Kind, err)
	}
	return nil
}
