package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/floroz/procura/pkg/database"
)

const (
	defaultNotifyTimeout     = 10 * time.Second
	defaultNotifyConcurrency = 8
)

// errConflict signals that a conditional write matched no rows
var errConflict = errors.New("conditional write matched no rows")

// Engine is the only writer of project and bid status. Every transition
// validates its precondition and then issues one conditional write; losing
// the race to another caller yields a no-op or a typed error, never a
// partially applied change.
type Engine struct {
	txManager database.TransactionManager
	projects  ProjectRepository
	bids      BidRepository
	notifier  NotificationSink
	ratings   RatingCollaborator
	clock     clockwork.Clock
	logger    *slog.Logger

	notifyTimeout     time.Duration
	notifyConcurrency int
}

// NewEngine creates a new lifecycle engine
func NewEngine(
	txManager database.TransactionManager,
	projects ProjectRepository,
	bids BidRepository,
	notifier NotificationSink,
	ratings RatingCollaborator,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		txManager:         txManager,
		projects:          projects,
		bids:              bids,
		notifier:          notifier,
		ratings:           ratings,
		clock:             clock,
		logger:            logger,
		notifyTimeout:     defaultNotifyTimeout,
		notifyConcurrency: defaultNotifyConcurrency,
	}
}

// WithNotifyTimeout bounds how long post-commit notification delivery may take
func (e *Engine) WithNotifyTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.notifyTimeout = d
	}
	return e
}

// inTx runs fn in a transaction and commits when fn returns nil
func (e *Engine) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := e.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (e *Engine) casStatus(ctx context.Context, projectID uuid.UUID, from []ProjectStatus, to ProjectStatus) error {
	return e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.projects.CompareAndSetStatus(ctx, tx, projectID, from, to)
		if err != nil {
			return fmt.Errorf("failed to update project status: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
}

// afterConflict re-reads a project whose conditional write matched nothing
// and reports either a no-op (when noopWhen accepts the current status) or
// an invalid transition.
func (e *Engine) afterConflict(ctx context.Context, op string, projectID uuid.UUID, noopWhen func(ProjectStatus) bool, reason error, path Path) (*TransitionResult, error) {
	current, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if noopWhen != nil && noopWhen(current.Status) {
		return noop(current, reason, path), nil
	}
	return nil, invalidTransition(op, current.Status)
}

// applied re-reads the committed project for the result
func (e *Engine) applied(ctx context.Context, projectID uuid.UUID, path Path) (*TransitionResult, error) {
	p, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload project: %w", err)
	}
	return &TransitionResult{Project: p, Outcome: OutcomeApplied, Path: path}, nil
}

func noop(p *Project, reason error, path Path) *TransitionResult {
	return &TransitionResult{Project: p, Outcome: OutcomeNoop, Reason: reason, Path: path}
}

// loadOwned loads a project the actor may manage
func (e *Engine) loadOwned(ctx context.Context, projectID uuid.UUID, actor Actor) (*Project, error) {
	p, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !actor.isPrivileged() && p.OwnerID != actor.ID {
		return nil, ErrAccessDenied
	}
	return p, nil
}

func validateProjectFields(title string, deadline, delivery time.Time, maxBid *int64, now time.Time) error {
	if strings.TrimSpace(title) == "" {
		return validationError("title is required")
	}
	if !deadline.After(now) {
		return validationError("bidding deadline must be in the future")
	}
	if !deadline.Before(delivery) {
		return validationError("bidding deadline must be before delivery date")
	}
	if maxBid != nil && *maxBid <= 0 {
		return validationError("max bid must be positive")
	}
	return nil
}

// CreateProject stores a new draft project owned by cmd.OwnerID
func (e *Engine) CreateProject(ctx context.Context, cmd CreateProjectCommand) (*Project, error) {
	now := e.clock.Now()
	if err := validateProjectFields(cmd.Title, cmd.BiddingDeadline, cmd.DeliveryDate, cmd.MaxBid, now); err != nil {
		return nil, err
	}

	project := &Project{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(cmd.Title),
		Description:     cmd.Description,
		Status:          ProjectDraft,
		OwnerID:         cmd.OwnerID,
		BiddingDeadline: cmd.BiddingDeadline,
		DeliveryDate:    cmd.DeliveryDate,
		MaxBid:          cmd.MaxBid,
		MaxBidVisible:   cmd.MaxBidVisible,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := e.inTx(ctx, func(tx pgx.Tx) error {
		if err := e.projects.CreateProject(ctx, tx, project); err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("project created", "project_id", project.ID, "owner_id", project.OwnerID)
	return project, nil
}

// GetProject returns the project. A hidden max bid is only shown to the owner.
func (e *Engine) GetProject(ctx context.Context, projectID uuid.UUID, actor Actor) (*Project, error) {
	p, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.MaxBidVisible && !actor.isPrivileged() && p.OwnerID != actor.ID {
		redacted := *p
		redacted.MaxBid = nil
		return &redacted, nil
	}
	return p, nil
}

// UpdateDraft edits a project while it is still a draft
func (e *Engine) UpdateDraft(ctx context.Context, cmd UpdateDraftCommand, actor Actor) (*Project, error) {
	p, err := e.loadOwned(ctx, cmd.ProjectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectDraft {
		return nil, invalidTransition("update_draft", p.Status)
	}

	now := e.clock.Now()
	if err := validateProjectFields(cmd.Title, cmd.BiddingDeadline, cmd.DeliveryDate, cmd.MaxBid, now); err != nil {
		return nil, err
	}

	updated := *p
	updated.Title = strings.TrimSpace(cmd.Title)
	updated.Description = cmd.Description
	updated.BiddingDeadline = cmd.BiddingDeadline
	updated.DeliveryDate = cmd.DeliveryDate
	updated.MaxBid = cmd.MaxBid
	updated.MaxBidVisible = cmd.MaxBidVisible
	updated.UpdatedAt = now

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.projects.UpdateDraft(ctx, tx, &updated)
		if err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		_, err = e.afterConflict(ctx, "update_draft", cmd.ProjectID, nil, nil, PathGuarded)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteProject removes a draft or bidding project that has no winner
func (e *Engine) DeleteProject(ctx context.Context, projectID uuid.UUID, actor Actor) error {
	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return err
	}
	if p.Status != ProjectDraft && p.Status != ProjectBidding {
		return invalidTransition("delete", p.Status)
	}

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.projects.DeleteProject(ctx, tx, projectID)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		_, err = e.afterConflict(ctx, "delete", projectID, nil, nil, PathGuarded)
		return err
	}
	if err != nil {
		return err
	}

	e.logger.Info("project deleted", "project_id", projectID, "actor_id", actor.ID)
	return nil
}

// OpenBidding moves a draft project with a future deadline to bidding
func (e *Engine) OpenBidding(ctx context.Context, projectID uuid.UUID, actor Actor) (*TransitionResult, error) {
	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectDraft {
		return nil, invalidTransition("open_bidding", p.Status)
	}
	if !p.BiddingDeadline.After(e.clock.Now()) {
		return nil, ErrDeadlinePassed
	}

	err = e.casStatus(ctx, projectID, []ProjectStatus{ProjectDraft}, ProjectBidding)
	if errors.Is(err, errConflict) {
		return e.afterConflict(ctx, "open_bidding", projectID, nil, nil, PathGuarded)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.applied(ctx, projectID, PathGuarded)
	if err != nil {
		return nil, err
	}

	e.logger.Info("bidding opened", "project_id", projectID, "actor_id", actor.ID)
	payload := projectPayload(result.Project)
	payload["bidding_deadline"] = result.Project.BiddingDeadline.UTC().Format(time.RFC3339)
	e.dispatch(ctx, []notification{roleNotification(RoleBidder, KindBiddingOpened, payload)})

	return result, nil
}

// CloseBidding moves a bidding project to reviewing. It is called by the
// owner and by the closure scheduler; whichever caller loses the race gets a
// no-op with reason ErrAlreadyClosed and sends no notifications.
func (e *Engine) CloseBidding(ctx context.Context, projectID uuid.UUID, actor Actor) (*TransitionResult, error) {
	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status.IsClosed() {
		return noop(p, ErrAlreadyClosed, PathGuarded), nil
	}
	if p.Status != ProjectBidding {
		return nil, invalidTransition("close_bidding", p.Status)
	}
	return e.closeProject(ctx, "close_bidding", projectID, []ProjectStatus{ProjectBidding}, actor, PathGuarded)
}

func (e *Engine) closeProject(ctx context.Context, op string, projectID uuid.UUID, from []ProjectStatus, actor Actor, path Path) (*TransitionResult, error) {
	err := e.casStatus(ctx, projectID, from, ProjectReviewing)
	if errors.Is(err, errConflict) {
		return e.afterConflict(ctx, op, projectID, ProjectStatus.IsClosed, ErrAlreadyClosed, path)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.applied(ctx, projectID, path)
	if err != nil {
		return nil, err
	}
	e.logger.Info("bidding closed",
		"project_id", projectID,
		"actor_id", actor.ID,
		"override", path == PathOverride,
	)

	payload := projectPayload(result.Project)
	notes := []notification{userNotification(result.Project.OwnerID, KindBiddingClosed, payload)}
	notes = append(notes, e.pendingBidderNotifications(ctx, projectID, KindBiddingClosed, payload)...)
	e.dispatch(ctx, notes)

	return result, nil
}

// Award selects the winning bid. The project, the winning bid and every
// competing pending bid change in one transaction.
func (e *Engine) Award(ctx context.Context, projectID, bidID uuid.UUID, actor Actor) (*TransitionResult, error) {
	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectReviewing {
		return nil, invalidTransition("award", p.Status)
	}

	bid, err := e.bids.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.ProjectID != projectID {
		return nil, validationError("bid %s does not belong to project %s", bidID, projectID)
	}
	if bid.Status != BidPending {
		return nil, invalidTransition("award", "bid "+string(bid.Status))
	}

	var losers []*Bid
	var bidConflict bool
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.projects.AwardProject(ctx, tx, projectID, bidID, bid.Amount)
		if err != nil {
			return fmt.Errorf("failed to award project: %w", err)
		}
		if n == 0 {
			return errConflict
		}

		n, err = e.bids.MarkBidWon(ctx, tx, projectID, bidID)
		if err != nil {
			return fmt.Errorf("failed to mark winning bid: %w", err)
		}
		if n == 0 {
			bidConflict = true
			return errConflict
		}

		losers, err = e.bids.MarkCompetingLost(ctx, tx, projectID, bidID)
		if err != nil {
			return fmt.Errorf("failed to mark competing bids lost: %w", err)
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		if bidConflict {
			// the bid was withdrawn between the read and the write
			return nil, invalidTransition("award", "bid no longer pending")
		}
		return e.afterConflict(ctx, "award", projectID, func(s ProjectStatus) bool {
			return s == ProjectAwarded || s == ProjectCompleted
		}, ErrAlreadyAwarded, PathGuarded)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.applied(ctx, projectID, PathGuarded)
	if err != nil {
		return nil, err
	}
	e.logger.Info("project awarded",
		"project_id", projectID,
		"bid_id", bidID,
		"losing_bids", len(losers),
	)

	payload := projectPayload(result.Project)
	notes := make([]notification, 0, len(losers)+2)
	notes = append(notes,
		userNotification(bid.BidderID, KindBidWon, bidPayload(payload, bid)),
		userNotification(result.Project.OwnerID, KindAwarded, bidPayload(payload, bid)),
	)
	for _, l := range losers {
		notes = append(notes, userNotification(l.BidderID, KindBidLost, bidPayload(payload, l)))
	}
	e.dispatch(ctx, notes)

	return result, nil
}

// Complete marks an awarded project delivered. The optional rating of the
// winning bidder is forwarded after commit; a failure there does not undo
// the completion.
func (e *Engine) Complete(ctx context.Context, projectID uuid.UUID, actor Actor, rating *RatingInput) (*TransitionResult, error) {
	if rating != nil && (rating.Score < 1 || rating.Score > 5) {
		return nil, validationError("rating score must be between 1 and 5")
	}

	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectAwarded {
		return nil, invalidTransition("complete", p.Status)
	}

	result, err := e.completeProject(ctx, "complete", projectID, actor, PathGuarded)
	if err != nil || !result.Applied() {
		return result, err
	}

	if rating != nil {
		e.forwardRating(ctx, result.Project, actor, rating)
	}
	return result, nil
}

func (e *Engine) completeProject(ctx context.Context, op string, projectID uuid.UUID, actor Actor, path Path) (*TransitionResult, error) {
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		n, err := e.projects.CompleteProject(ctx, tx, projectID, e.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to complete project: %w", err)
		}
		if n == 0 {
			return errConflict
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		return e.afterConflict(ctx, op, projectID, nil, nil, path)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.applied(ctx, projectID, path)
	if err != nil {
		return nil, err
	}
	e.logger.Info("project completed",
		"project_id", projectID,
		"actor_id", actor.ID,
		"override", path == PathOverride,
	)

	if winner := e.winningBid(ctx, result.Project); winner != nil {
		e.dispatch(ctx, []notification{
			userNotification(winner.BidderID, KindCompleted, projectPayload(result.Project)),
		})
	}
	return result, nil
}

func (e *Engine) winningBid(ctx context.Context, p *Project) *Bid {
	if p.AwardedBidID == nil {
		return nil
	}
	bid, err := e.bids.GetBid(ctx, *p.AwardedBidID)
	if err != nil {
		e.logger.Error("failed to load winning bid", "project_id", p.ID, "error", err)
		return nil
	}
	return bid
}

func (e *Engine) forwardRating(ctx context.Context, p *Project, actor Actor, input *RatingInput) {
	winner := e.winningBid(ctx, p)
	if winner == nil {
		return
	}
	rating := Rating{
		ProjectID:   p.ID,
		RatedUserID: winner.BidderID,
		RaterID:     actor.ID,
		Score:       input.Score,
		Comment:     input.Comment,
		CreatedAt:   e.clock.Now(),
	}
	if err := e.ratings.SubmitRating(context.WithoutCancel(ctx), rating); err != nil {
		e.logger.Warn("failed to submit rating",
			"project_id", p.ID,
			"rated_user_id", winner.BidderID,
			"error", err,
		)
	}
}

// Cancel abandons a draft or bidding project
func (e *Engine) Cancel(ctx context.Context, projectID uuid.UUID, actor Actor) (*TransitionResult, error) {
	p, err := e.loadOwned(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status != ProjectDraft && p.Status != ProjectBidding {
		return nil, invalidTransition("cancel", p.Status)
	}

	err = e.casStatus(ctx, projectID, []ProjectStatus{ProjectDraft, ProjectBidding}, ProjectCancelled)
	if errors.Is(err, errConflict) {
		return e.afterConflict(ctx, "cancel", projectID, nil, nil, PathGuarded)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.applied(ctx, projectID, PathGuarded)
	if err != nil {
		return nil, err
	}
	e.logger.Info("project cancelled", "project_id", projectID, "actor_id", actor.ID)

	e.dispatch(ctx, e.pendingBidderNotifications(ctx, projectID, KindCancelled, projectPayload(result.Project)))
	return result, nil
}
