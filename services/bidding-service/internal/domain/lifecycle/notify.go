package lifecycle

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// notification is one message for the sink, addressed to a user or a role
type notification struct {
	userID  uuid.UUID
	role    Role
	kind    string
	payload map[string]any
}

func userNotification(userID uuid.UUID, kind string, payload map[string]any) notification {
	return notification{userID: userID, kind: kind, payload: payload}
}

func roleNotification(role Role, kind string, payload map[string]any) notification {
	return notification{role: role, kind: kind, payload: payload}
}

func projectPayload(p *Project) map[string]any {
	return map[string]any{
		"project_id": p.ID.String(),
		"title":      p.Title,
		"status":     string(p.Status),
	}
}

// bidPayload copies base and adds the bid fields. The amount travels as a
// decimal string since the envelope stores numbers as doubles.
func bidPayload(base map[string]any, b *Bid) map[string]any {
	payload := make(map[string]any, len(base)+2)
	for k, v := range base {
		payload[k] = v
	}
	payload["bid_id"] = b.ID.String()
	payload["amount"] = strconv.FormatInt(b.Amount, 10)
	return payload
}

// pendingBidderNotifications builds one notification per pending bid of the project
func (e *Engine) pendingBidderNotifications(ctx context.Context, projectID uuid.UUID, kind string, payload map[string]any) []notification {
	pending, err := e.bids.ListBidsByStatus(ctx, projectID, BidPending)
	if err != nil {
		e.logger.Error("failed to list pending bids for notification",
			"project_id", projectID,
			"kind", kind,
			"error", err,
		)
		return nil
	}
	notes := make([]notification, 0, len(pending))
	for _, b := range pending {
		notes = append(notes, userNotification(b.BidderID, kind, bidPayload(payload, b)))
	}
	return notes
}

// dispatch delivers notes after the transition has committed. It runs on a
// context detached from the caller with its own timeout, and only logs
// delivery failures.
func (e *Engine) dispatch(ctx context.Context, notes []notification) {
	if len(notes) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(e.notifyConcurrency)
	for _, n := range notes {
		g.Go(func() error {
			var err error
			if n.role != "" {
				err = e.notifier.BroadcastToRole(ctx, n.role, n.kind, n.payload)
			} else {
				err = e.notifier.NotifyUser(ctx, n.userID, n.kind, n.payload)
			}
			if err != nil {
				e.logger.Warn("failed to deliver notification",
					"kind", n.kind,
					"user_id", n.userID,
					"role", n.role,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
