package closure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// ExpiredLister finds bidding projects past their deadline
type ExpiredLister interface {
	ListExpiredBidding(ctx context.Context, now time.Time, after *lifecycle.ExpiredCursor, limit int) ([]*lifecycle.Project, error)
}

// Closer closes bidding on a single project
type Closer interface {
	CloseBidding(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)
}

// SweepReport summarises one sweep
type SweepReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Batches    int       `json:"batches"`
	Candidates int       `json:"candidates"`
	Closed     int       `json:"closed"`
	NoOps      int       `json:"noops"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Sweeper closes every expired project, one batch at a time
type Sweeper struct {
	lister    ExpiredLister
	closer    Closer
	clock     clockwork.Clock
	batchSize int
	logger    *slog.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(lister ExpiredLister, closer Closer, clock clockwork.Clock, batchSize int, logger *slog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		lister:    lister,
		closer:    closer,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep pages through expired projects by (deadline, id) and closes each
// one independently. Every project expired at the start of the sweep is
// attempted at most once, so a batch that keeps failing cannot hide the
// projects behind it. A failing project is counted and logged; it never
// stops the sweep. The error is only set when listing fails.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: s.clock.Now()}

	var after *lifecycle.ExpiredCursor
	for ctx.Err() == nil {
		expired, err := s.lister.ListExpiredBidding(ctx, report.StartedAt, after, s.batchSize)
		if err != nil {
			report.FinishedAt = s.clock.Now()
			report.Error = err.Error()
			return report, fmt.Errorf("failed to list expired projects: %w", err)
		}
		if len(expired) == 0 {
			break
		}
		report.Batches++
		report.Candidates += len(expired)

		failed := s.closeBatch(ctx, expired, &report)
		if failed == len(expired) {
			s.logger.Warn("every project in sweep batch failed to close",
				"batch_size", len(expired),
				"first_project_id", expired[0].ID,
			)
		}

		if len(expired) < s.batchSize {
			break
		}
		last := expired[len(expired)-1]
		after = &lifecycle.ExpiredCursor{Deadline: last.BiddingDeadline, ID: last.ID}
	}

	report.FinishedAt = s.clock.Now()
	return report, nil
}

func (s *Sweeper) closeBatch(ctx context.Context, expired []*lifecycle.Project, report *SweepReport) int {
	failed := 0
	for _, p := range expired {
		if ctx.Err() != nil {
			break
		}

		result, err := s.closer.CloseBidding(ctx, p.ID, lifecycle.SystemActor)
		switch {
		case err != nil:
			failed++
			report.Failed++
			s.logger.Error("failed to close expired project",
				"project_id", p.ID,
				"deadline", p.BiddingDeadline,
				"error", err,
			)
		case result.Applied():
			report.Closed++
		default:
			report.NoOps++
			s.logger.Debug("expired project already closed", "project_id", p.ID, "reason", result.Reason)
		}
	}
	return failed
}
