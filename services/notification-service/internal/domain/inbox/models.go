package inbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgevents "github.com/floroz/procura/pkg/events"
)

// ErrNotificationNotFound is returned when a notification does not exist in the caller's inbox
var ErrNotificationNotFound = errors.New("notification not found")

// Notification is a stored user notification
type Notification struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
	ReadAt     *time.Time     `json:"read_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Channel returns the Pub/Sub channel a notification is pushed on
func Channel(n *pkgevents.Notification) string {
	return fmt.Sprintf("notifications:%s:%s", n.TargetType, n.Target)
}
