package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Overrides are privileged transitions that skip the regular preconditions.
// Only admins may call them and every call needs a reason.
type Overrides struct {
	e *Engine
}

// Overrides returns the privileged transition family
func (e *Engine) Overrides() *Overrides {
	return &Overrides{e: e}
}

func (o *Overrides) authorize(ctx context.Context, op string, projectID uuid.UUID, actor Actor, reason string) (*Project, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrAccessDenied
	}
	if strings.TrimSpace(reason) == "" {
		return nil, validationError("override reason is required")
	}

	p, err := o.e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	o.e.logger.Warn("override requested",
		"op", op,
		"project_id", projectID,
		"from", p.Status,
		"actor_id", actor.ID,
		"reason", reason,
		"override", true,
	)
	return p, nil
}

// ForceClose closes bidding immediately, also from draft
func (o *Overrides) ForceClose(ctx context.Context, projectID uuid.UUID, actor Actor, reason string) (*TransitionResult, error) {
	p, err := o.authorize(ctx, "force_close", projectID, actor, reason)
	if err != nil {
		return nil, err
	}
	if p.Status.IsClosed() {
		return noop(p, ErrAlreadyClosed, PathOverride), nil
	}
	if p.Status != ProjectDraft && p.Status != ProjectBidding {
		return nil, invalidTransition("force_close", p.Status)
	}
	return o.e.closeProject(ctx, "force_close", projectID, []ProjectStatus{ProjectDraft, ProjectBidding}, actor, PathOverride)
}

// ForceComplete completes an awarded project without a rating
func (o *Overrides) ForceComplete(ctx context.Context, projectID uuid.UUID, actor Actor, reason string) (*TransitionResult, error) {
	p, err := o.authorize(ctx, "force_complete", projectID, actor, reason)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectAwarded {
		return nil, invalidTransition("force_complete", p.Status)
	}
	return o.e.completeProject(ctx, "force_complete", projectID, actor, PathOverride)
}

// ResetToDraft returns a project to draft from any other state. Award
// fields are cleared and won or lost bids go back to pending in the same
// transaction. A project already in draft is a no-op.
func (o *Overrides) ResetToDraft(ctx context.Context, projectID uuid.UUID, actor Actor, reason string) (*TransitionResult, error) {
	p, err := o.authorize(ctx, "reset_to_draft", projectID, actor, reason)
	if err != nil {
		return nil, err
	}
	if p.Status == ProjectDraft {
		return noop(p, ErrAlreadyDraft, PathOverride), nil
	}

	var reverted int64
	err = o.e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := o.e.projects.ResetProject(ctx, tx, projectID)
		if err != nil {
			return fmt.Errorf("failed to reset project: %w", err)
		}
		if n == 0 {
			return errConflict
		}

		reverted, err = o.e.bids.ResetBids(ctx, tx, projectID)
		if err != nil {
			return fmt.Errorf("failed to reset bids: %w", err)
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		isDraft := func(s ProjectStatus) bool { return s == ProjectDraft }
		return o.e.afterConflict(ctx, "reset_to_draft", projectID, isDraft, ErrAlreadyDraft, PathOverride)
	}
	if err != nil {
		return nil, err
	}

	result, err := o.e.applied(ctx, projectID, PathOverride)
	if err != nil {
		return nil, err
	}
	o.e.logger.Info("project reset to draft",
		"project_id", projectID,
		"from", p.Status,
		"bids_reverted", reverted,
		"actor_id", actor.ID,
		"override", true,
	)

	payload := projectPayload(result.Project)
	payload["reason"] = reason
	o.e.dispatch(ctx, []notification{userNotification(result.Project.OwnerID, KindReset, payload)})

	return result, nil
}
