package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubmitBid stores a new bid. The insert itself re-checks that the project
// is still bidding and open, and the (project, bidder) unique constraint
// rejects a second bid from the same bidder.
func (e *Engine) SubmitBid(ctx context.Context, cmd SubmitBidCommand) (*Bid, error) {
	if cmd.Amount <= 0 {
		return nil, validationError("bid amount must be positive")
	}

	p, err := e.projects.GetProject(ctx, cmd.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == cmd.BidderID {
		return nil, ErrAccessDenied
	}
	if err := e.checkBiddable(p, cmd.Amount, "submit_bid"); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	bid := &Bid{
		ID:           uuid.New(),
		ProjectID:    cmd.ProjectID,
		BidderID:     cmd.BidderID,
		Amount:       cmd.Amount,
		Comment:      cmd.Comment,
		DeliveryDate: cmd.DeliveryDate,
		Status:       BidPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.bids.SaveBid(ctx, tx, bid, now)
		if err != nil {
			if errors.Is(err, ErrDuplicateBid) {
				return err
			}
			return fmt.Errorf("failed to save bid: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		return nil, e.biddingClosedReason(ctx, cmd.ProjectID, "submit_bid")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("bid submitted",
		"bid_id", bid.ID,
		"project_id", bid.ProjectID,
		"bidder_id", bid.BidderID,
	)
	return bid, nil
}

// checkBiddable validates that p accepts bids of amount right now
func (e *Engine) checkBiddable(p *Project, amount int64, op string) error {
	if p.Status != ProjectBidding {
		return invalidTransition(op, p.Status)
	}
	if !e.clock.Now().Before(p.BiddingDeadline) {
		return ErrDeadlinePassed
	}
	if p.MaxBidVisible && p.MaxBid != nil && amount > *p.MaxBid {
		return validationError("bid amount exceeds the maximum of %d", *p.MaxBid)
	}
	return nil
}

// biddingClosedReason explains why a guarded bid write matched no rows
func (e *Engine) biddingClosedReason(ctx context.Context, projectID uuid.UUID, op string) error {
	p, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Status != ProjectBidding {
		return invalidTransition(op, p.Status)
	}
	return ErrDeadlinePassed
}

// loadOwnBid loads a bid that belongs to actor
func (e *Engine) loadOwnBid(ctx context.Context, bidID uuid.UUID, actor Actor) (*Bid, error) {
	bid, err := e.bids.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID != actor.ID {
		return nil, ErrAccessDenied
	}
	return bid, nil
}

// AmendBid changes a pending bid while bidding is open
func (e *Engine) AmendBid(ctx context.Context, bidID uuid.UUID, patch BidPatch, actor Actor) (*Bid, error) {
	bid, err := e.loadOwnBid(ctx, bidID, actor)
	if err != nil {
		return nil, err
	}
	if bid.Status != BidPending {
		return nil, invalidTransition("amend_bid", "bid "+string(bid.Status))
	}

	amended := *bid
	if patch.Amount != nil {
		if *patch.Amount <= 0 {
			return nil, validationError("bid amount must be positive")
		}
		amended.Amount = *patch.Amount
	}
	if patch.Comment != nil {
		amended.Comment = patch.Comment
	}
	if patch.DeliveryDate != nil {
		amended.DeliveryDate = patch.DeliveryDate
	}

	p, err := e.projects.GetProject(ctx, bid.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := e.checkBiddable(p, amended.Amount, "amend_bid"); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	amended.UpdatedAt = now

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.bids.AmendBid(ctx, tx, &amended, now)
		if err != nil {
			return fmt.Errorf("failed to amend bid: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		current, getErr := e.bids.GetBid(ctx, bidID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != BidPending {
			return nil, invalidTransition("amend_bid", "bid "+string(current.Status))
		}
		return nil, e.biddingClosedReason(ctx, bid.ProjectID, "amend_bid")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("bid amended", "bid_id", bidID, "project_id", bid.ProjectID)
	return &amended, nil
}

// WithdrawBid withdraws a pending bid unless the project has already been awarded
func (e *Engine) WithdrawBid(ctx context.Context, bidID uuid.UUID, actor Actor) (*Bid, error) {
	bid, err := e.loadOwnBid(ctx, bidID, actor)
	if err != nil {
		return nil, err
	}
	if bid.Status != BidPending {
		return nil, invalidTransition("withdraw_bid", "bid "+string(bid.Status))
	}

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.bids.WithdrawBid(ctx, tx, bidID)
		if err != nil {
			return fmt.Errorf("failed to withdraw bid: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		current, getErr := e.bids.GetBid(ctx, bidID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != BidPending {
			return nil, invalidTransition("withdraw_bid", "bid "+string(current.Status))
		}
		p, getErr := e.projects.GetProject(ctx, bid.ProjectID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, invalidTransition("withdraw_bid", p.Status)
	}
	if err != nil {
		return nil, err
	}

	withdrawn := *bid
	withdrawn.Status = BidWithdrawn
	withdrawn.UpdatedAt = e.clock.Now()

	e.logger.Info("bid withdrawn", "bid_id", bidID, "project_id", bid.ProjectID)
	return &withdrawn, nil
}

// GetBid returns a bid to its bidder, the project owner or an admin
func (e *Engine) GetBid(ctx context.Context, bidID uuid.UUID, actor Actor) (*Bid, error) {
	bid, err := e.bids.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID == actor.ID || actor.isPrivileged() {
		return bid, nil
	}
	p, err := e.projects.GetProject(ctx, bid.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actor.ID {
		return nil, ErrAccessDenied
	}
	return bid, nil
}

// ListBids returns every bid of the project to its owner. Bids are sealed,
// so any other caller only sees their own.
func (e *Engine) ListBids(ctx context.Context, projectID uuid.UUID, actor Actor) ([]*Bid, error) {
	p, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	all, err := e.bids.ListBids(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	if p.OwnerID == actor.ID || actor.isPrivileged() {
		return all, nil
	}

	own := make([]*Bid, 0, 1)
	for _, b := range all {
		if b.BidderID == actor.ID {
			own = append(own, b)
		}
	}
	return own, nil
}
