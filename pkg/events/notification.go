package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// TargetType says whether a notification addresses one user or every user holding a role
type TargetType string

const (
	TargetUser TargetType = "user"
	TargetRole TargetType = "role"
)

// Notification is the envelope exchanged between the bidding service and the
// notification dispatcher. Payload values must be representable by structpb
// (strings, numbers, bools, nested maps and slices).
type Notification struct {
	ID         uuid.UUID      `json:"id"`
	Kind       string         `json:"kind"`
	TargetType TargetType     `json:"target_type"`
	Target     string         `json:"target"` // user id or role name
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RoutingKey is the topic routing key, e.g. "notify.user.bid.won"
func (n *Notification) RoutingKey() string {
	return fmt.Sprintf("notify.%s.%s", n.TargetType, n.Kind)
}

// Marshal encodes the notification as a protobuf Struct
func (n *Notification) Marshal() ([]byte, error) {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	msg, err := structpb.NewStruct(map[string]any{
		"id":          n.ID.String(),
		"kind":        n.Kind,
		"target_type": string(n.TargetType),
		"target":      n.Target,
		"payload":     payload,
		"occurred_at": n.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build notification struct: %w", err)
	}
	return proto.Marshal(msg)
}

// UnmarshalNotification decodes a notification produced by Marshal
func UnmarshalNotification(body []byte) (*Notification, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	fields := msg.GetFields()

	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid notification id: %w", err)
	}

	kind := fields["kind"].GetStringValue()
	if kind == "" {
		return nil, errors.New("notification kind is empty")
	}

	targetType := TargetType(fields["target_type"].GetStringValue())
	if targetType != TargetUser && targetType != TargetRole {
		return nil, fmt.Errorf("invalid notification target type %q", targetType)
	}

	target := fields["target"].GetStringValue()
	switch targetType {
	case TargetUser:
		if _, err := uuid.Parse(target); err != nil {
			return nil, fmt.Errorf("invalid notification user target %q: %w", target, err)
		}
	case TargetRole:
		if target == "" {
			return nil, errors.New("notification role target is empty")
		}
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, fields["occurred_at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid notification timestamp: %w", err)
	}

	return &Notification{
		ID:         id,
		Kind:       kind,
		TargetType: targetType,
		Target:     target,
		Payload:    fields["payload"].GetStructValue().AsMap(),
		OccurredAt: occurredAt,
	}, nil
}
