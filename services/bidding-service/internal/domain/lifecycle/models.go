package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a procurement project
type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectBidding   ProjectStatus = "bidding"
	ProjectReviewing ProjectStatus = "reviewing"
	ProjectAwarded   ProjectStatus = "awarded"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// IsClosed reports whether bidding on the project has already ended
func (s ProjectStatus) IsClosed() bool {
	switch s {
	case ProjectReviewing, ProjectAwarded, ProjectCompleted:
		return true
	}
	return false
}

// BidStatus is the state of a single bid
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidWon       BidStatus = "won"
	BidLost      BidStatus = "lost"
	BidWithdrawn BidStatus = "withdrawn"
)

// Project is a procurement project open to competitive bids.
// Amounts are int64 minor currency units.
type Project struct {
	ID              uuid.UUID     `db:"id"`
	Title           string        `db:"title"`
	Description     string        `db:"description"`
	Status          ProjectStatus `db:"status"`
	OwnerID         uuid.UUID     `db:"owner_id"`
	BiddingDeadline time.Time     `db:"bidding_deadline"`
	DeliveryDate    time.Time     `db:"delivery_date"`
	MaxBid          *int64        `db:"max_bid"`
	MaxBidVisible   bool          `db:"max_bid_visible"`
	AwardedBidID    *uuid.UUID    `db:"awarded_bid_id"`
	AwardedAmount   *int64        `db:"awarded_amount"`
	CompletedAt     *time.Time    `db:"completed_at"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

// ExpiredCursor marks the last project a sweep page returned
type ExpiredCursor struct {
	Deadline time.Time
	ID       uuid.UUID
}

// Bid is a sealed offer by a bidder on a project
type Bid struct {
	ID           uuid.UUID  `db:"id"`
	ProjectID    uuid.UUID  `db:"project_id"`
	BidderID     uuid.UUID  `db:"bidder_id"`
	Amount       int64      `db:"amount"`
	Comment      *string    `db:"comment"`
	DeliveryDate *time.Time `db:"delivery_date"`
	Status       BidStatus  `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Rating is the owner's score for the winning bidder of a completed project
type Rating struct {
	ProjectID   uuid.UUID
	RatedUserID uuid.UUID
	RaterID     uuid.UUID
	Score       int
	Comment     *string
	CreatedAt   time.Time
}

// Role of the caller as carried in the access token
type Role string

const (
	RoleOwner  Role = "owner"
	RoleBidder Role = "bidder"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor identifies who asked for an operation
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by the closure scheduler
var SystemActor = Actor{ID: uuid.Nil, Role: RoleSystem}

func (a Actor) isPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Outcome tells applied transitions apart from no-ops
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
)

// Path records whether a transition went through the guarded state machine
// or through the privileged override family
type Path string

const (
	PathGuarded  Path = "guarded"
	PathOverride Path = "override"
)

// TransitionResult is returned by every project state transition
type TransitionResult struct {
	Project *Project
	Outcome Outcome
	// Reason is set for no-ops (ErrAlreadyClosed, ErrAlreadyAwarded)
	Reason error
	Path   Path
}

// Applied reports whether this call performed the transition
func (r *TransitionResult) Applied() bool {
	return r.Outcome == OutcomeApplied
}

// Notification kinds
const (
	KindBiddingOpened = "project.bidding_opened"
	KindBiddingClosed = "project.bidding_closed"
	KindAwarded       = "project.awarded"
	KindCompleted     = "project.completed"
	KindCancelled     = "project.cancelled"
	KindReset         = "project.reset"
	KindBidWon        = "bid.won"
	KindBidLost       = "bid.lost"
)

// CreateProjectCommand holds the owner's input for a new draft project
type CreateProjectCommand struct {
	OwnerID         uuid.UUID
	Title           string
	Description     string
	BiddingDeadline time.Time
	DeliveryDate    time.Time
	MaxBid          *int64
	MaxBidVisible   bool
}

// UpdateDraftCommand replaces the editable fields of a draft project
type UpdateDraftCommand struct {
	ProjectID       uuid.UUID
	Title           string
	Description     string
	BiddingDeadline time.Time
	DeliveryDate    time.Time
	MaxBid          *int64
	MaxBidVisible   bool
}

// SubmitBidCommand is a bidder's offer
type SubmitBidCommand struct {
	ProjectID    uuid.UUID
	BidderID     uuid.UUID
	Amount       int64
	Comment      *string
	DeliveryDate *time.Time
}

// BidPatch holds the fields a bidder may amend while the bid is pending.
// Nil fields are left unchanged.
type BidPatch struct {
	Amount       *int64
	Comment      *string
	DeliveryDate *time.Time
}

// RatingInput is the optional rating given when completing a project
type RatingInput struct {
	Score   int
	Comment *string
}
