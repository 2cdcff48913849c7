package events

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/procura/pkg/events"
)

const (
	QueueName  = "notification_dispatch"
	BindingKey = "notify.#"
)

// Processor handles one decoded notification
type Processor interface {
	ProcessNotification(ctx context.Context, n *pkgevents.Notification) error
}

// NotificationConsumer consumes notification envelopes and hands them to the inbox service
type NotificationConsumer struct {
	conn      *amqp.Connection
	processor Processor
	logger    *slog.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(conn *amqp.Connection, processor Processor, logger *slog.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		conn:      conn,
		processor: processor,
		logger:    logger,
	}
}

// Run starts the consumer loop
func (c *NotificationConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Setup Exchange & Queue
	if setupErr := setupRabbitMQ(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		QueueName, // queue
		"",        // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for notifications...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *NotificationConsumer) handle(ctx context.Context, d amqp.Delivery) {
	n, err := pkgevents.UnmarshalNotification(d.Body)
	if err != nil {
		c.logger.Error("Failed to unmarshal notification", "routing_key", d.RoutingKey, "error", err)
		// an envelope that cannot be decoded never will be
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to Nack message", "error", nackErr)
		}
		return
	}

	if err := c.processor.ProcessNotification(ctx, n); err != nil {
		c.logger.Error("Failed to process notification", "event_id", n.ID, "kind", n.Kind, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("Failed to Ack message", "error", ackErr)
		return
	}
	c.logger.Info("Dispatched notification", "event_id", n.ID, "kind", n.Kind, "target_type", n.TargetType)
}

func setupRabbitMQ(ch *amqp.Channel) error {
	if err := pkgevents.DeclareExchange(ch, pkgevents.NotificationsExchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		QueueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return err
	}

	return ch.QueueBind(q.Name, BindingKey, pkgevents.NotificationsExchange, false, nil)
}
