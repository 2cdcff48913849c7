package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProjectRepository defines project persistence.
// Reads go through the pool, writes take the caller's transaction and
// return the number of rows they changed so callers can detect lost races.
type ProjectRepository interface {
	CreateProject(ctx context.Context, tx pgx.Tx, project *Project) error

	// GetProject returns ErrProjectNotFound when the id is unknown
	GetProject(ctx context.Context, projectID uuid.UUID) (*Project, error)

	// UpdateDraft rewrites the editable fields, only while status is draft
	UpdateDraft(ctx context.Context, tx pgx.Tx, project *Project) (int64, error)

	// DeleteProject deletes the project while it is draft or bidding and has no won bid
	DeleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error)

	// CompareAndSetStatus moves the project to "to" only if its status is one of "from"
	CompareAndSetStatus(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, from []ProjectStatus, to ProjectStatus) (int64, error)

	// AwardProject moves reviewing -> awarded and records the winning bid
	AwardProject(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID, amount int64) (int64, error)

	// CompleteProject moves awarded -> completed
	CompleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, completedAt time.Time) (int64, error)

	// ResetProject moves any non-draft project back to draft and clears award fields
	ResetProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error)

	// ListExpiredBidding lists bidding projects whose deadline is at or before now,
	// ordered by (deadline, id) and starting strictly after the cursor when one is given
	ListExpiredBidding(ctx context.Context, now time.Time, after *ExpiredCursor, limit int) ([]*Project, error)
}

// BidRepository defines bid persistence
type BidRepository interface {
	// SaveBid inserts the bid only if the project is still bidding and its
	// deadline is after now. Returns 0 rows when that guard fails and
	// ErrDuplicateBid when the bidder already has a bid on the project.
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid, now time.Time) (int64, error)

	GetBid(ctx context.Context, bidID uuid.UUID) (*Bid, error)

	ListBids(ctx context.Context, projectID uuid.UUID) ([]*Bid, error)

	ListBidsByStatus(ctx context.Context, projectID uuid.UUID, status BidStatus) ([]*Bid, error)

	// AmendBid rewrites amount, comment and delivery date of a pending bid
	// while its project is bidding and before the deadline
	AmendBid(ctx context.Context, tx pgx.Tx, bid *Bid, now time.Time) (int64, error)

	// WithdrawBid withdraws a pending bid unless its project is awarded or completed
	WithdrawBid(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (int64, error)

	// MarkBidWon flips a pending bid of the project to won
	MarkBidWon(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID) (int64, error)

	// MarkCompetingLost flips every other pending bid of the project to lost and returns them
	MarkCompetingLost(ctx context.Context, tx pgx.Tx, projectID, winnerID uuid.UUID) ([]*Bid, error)

	// ResetBids reverts won and lost bids of the project to pending
	ResetBids(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error)
}

// NotificationSink delivers lifecycle notifications. Delivery is best-effort.
type NotificationSink interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error
	BroadcastToRole(ctx context.Context, role Role, kind string, payload map[string]any) error
}

// RatingCollaborator stores ratings. Returns ErrAlreadyRated for a repeated (project, rated, rater).
type RatingCollaborator interface {
	SubmitRating(ctx context.Context, rating Rating) error
}
