package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEngine_CreateProject(t *testing.T) {
	owner := uuid.New()
	negative := int64(-5)
	ceiling := int64(50000)

	tests := []struct {
		name      string
		cmd       CreateProjectCommand
		setupMock func(*testEngine)
		wantErr   error
	}{
		{
			name: "creates draft project",
			cmd: CreateProjectCommand{
				OwnerID:         owner,
				Title:           "  Roof repair ",
				BiddingDeadline: testNow.Add(24 * time.Hour),
				DeliveryDate:    testNow.Add(72 * time.Hour),
				MaxBid:          &ceiling,
				MaxBidVisible:   true,
			},
			setupMock: func(te *testEngine) {
				te.projects.On("CreateProject", anyCtx, anyTx, mock.MatchedBy(func(p *Project) bool {
					return p.Status == ProjectDraft && p.Title == "Roof repair" && p.OwnerID == owner
				})).Return(nil)
			},
		},
		{
			name: "empty title",
			cmd: CreateProjectCommand{
				OwnerID:         owner,
				Title:           "   ",
				BiddingDeadline: testNow.Add(24 * time.Hour),
				DeliveryDate:    testNow.Add(72 * time.Hour),
			},
			wantErr: ErrValidation,
		},
		{
			name: "deadline in the past",
			cmd: CreateProjectCommand{
				OwnerID:         owner,
				Title:           "Roof repair",
				BiddingDeadline: testNow.Add(-time.Minute),
				DeliveryDate:    testNow.Add(72 * time.Hour),
			},
			wantErr: ErrValidation,
		},
		{
			name: "deadline after delivery",
			cmd: CreateProjectCommand{
				OwnerID:         owner,
				Title:           "Roof repair",
				BiddingDeadline: testNow.Add(96 * time.Hour),
				DeliveryDate:    testNow.Add(72 * time.Hour),
			},
			wantErr: ErrValidation,
		},
		{
			name: "non positive max bid",
			cmd: CreateProjectCommand{
				OwnerID:         owner,
				Title:           "Roof repair",
				BiddingDeadline: testNow.Add(24 * time.Hour),
				DeliveryDate:    testNow.Add(72 * time.Hour),
				MaxBid:          &negative,
			},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t)
			if tt.setupMock != nil {
				tt.setupMock(te)
			}

			project, err := te.engine.CreateProject(context.Background(), tt.cmd)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, project)
				assert.Empty(t, te.tx.txs, "no transaction should be started")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProjectDraft, project.Status)
			assert.Equal(t, testNow, project.CreatedAt)
			assert.True(t, te.tx.last().committed)
		})
	}
}

func TestEngine_GetProject_HidesInvisibleCeiling(t *testing.T) {
	te := newTestEngine(t)
	owner := uuid.New()
	ceiling := int64(100000)
	p := newProject(owner, ProjectBidding)
	p.MaxBid = &ceiling
	p.MaxBidVisible = false
	te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

	asBidder, err := te.engine.GetProject(context.Background(), p.ID, Actor{ID: uuid.New(), Role: RoleBidder})
	require.NoError(t, err)
	assert.Nil(t, asBidder.MaxBid)

	asOwner, err := te.engine.GetProject(context.Background(), p.ID, Actor{ID: owner, Role: RoleOwner})
	require.NoError(t, err)
	require.NotNil(t, asOwner.MaxBid)
	assert.Equal(t, ceiling, *asOwner.MaxBid)
}

func TestEngine_UpdateDraft(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	t.Run("updates draft", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)
		te.projects.On("UpdateDraft", anyCtx, anyTx, mock.AnythingOfType("*lifecycle.Project")).Return(int64(1), nil)

		updated, err := te.engine.UpdateDraft(context.Background(), UpdateDraftCommand{
			ProjectID:       p.ID,
			Title:           "New title",
			BiddingDeadline: testNow.Add(10 * time.Hour),
			DeliveryDate:    testNow.Add(20 * time.Hour),
		}, actor)

		require.NoError(t, err)
		assert.Equal(t, "New title", updated.Title)
		assert.True(t, te.tx.last().committed)
	})

	t.Run("rejected once bidding opened", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.UpdateDraft(context.Background(), UpdateDraftCommand{
			ProjectID:       p.ID,
			Title:           "New title",
			BiddingDeadline: testNow.Add(10 * time.Hour),
			DeliveryDate:    testNow.Add(20 * time.Hour),
		}, actor)

		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("opened concurrently", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("UpdateDraft", anyCtx, anyTx, mock.AnythingOfType("*lifecycle.Project")).Return(int64(0), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectBidding), nil).Once()

		_, err := te.engine.UpdateDraft(context.Background(), UpdateDraftCommand{
			ProjectID:       p.ID,
			Title:           "New title",
			BiddingDeadline: testNow.Add(10 * time.Hour),
			DeliveryDate:    testNow.Add(20 * time.Hour),
		}, actor)

		var transitionErr *TransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, "bidding", transitionErr.From)
		assert.True(t, te.tx.last().rolledBack)
	})
}

func TestEngine_DeleteProject(t *testing.T) {
	owner := uuid.New()

	t.Run("deletes bidding project", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)
		te.projects.On("DeleteProject", anyCtx, anyTx, p.ID).Return(int64(1), nil)

		err := te.engine.DeleteProject(context.Background(), p.ID, Actor{ID: owner, Role: RoleOwner})
		require.NoError(t, err)
	})

	t.Run("awarded project cannot be deleted", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectAwarded)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		err := te.engine.DeleteProject(context.Background(), p.ID, Actor{ID: owner, Role: RoleOwner})
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("other owner denied", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		err := te.engine.DeleteProject(context.Background(), p.ID, Actor{ID: uuid.New(), Role: RoleOwner})
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestEngine_OpenBidding(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	t.Run("opens and broadcasts to bidders", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectDraft}, ProjectBidding).Return(int64(1), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectBidding), nil).Once()
		te.sink.On("BroadcastToRole", anyCtx, RoleBidder, KindBiddingOpened, mock.Anything).Return(nil).Once()

		result, err := te.engine.OpenBidding(context.Background(), p.ID, actor)

		require.NoError(t, err)
		assert.True(t, result.Applied())
		assert.Equal(t, ProjectBidding, result.Project.Status)
		assert.Equal(t, PathGuarded, result.Path)
	})

	t.Run("deadline already passed", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		p.BiddingDeadline = testNow
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.OpenBidding(context.Background(), p.ID, actor)
		assert.ErrorIs(t, err, ErrDeadlinePassed)
	})

	t.Run("not a draft", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectCancelled)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.OpenBidding(context.Background(), p.ID, actor)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestEngine_CloseBidding(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	t.Run("closes and notifies owner and pending bidders", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		b1, b2 := newBid(p.ID, 100), newBid(p.ID, 200)

		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectBidding}, ProjectReviewing).Return(int64(1), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectReviewing), nil).Once()
		te.bids.On("ListBidsByStatus", anyCtx, p.ID, BidPending).Return([]*Bid{b1, b2}, nil)
		te.sink.On("NotifyUser", anyCtx, owner, KindBiddingClosed, mock.Anything).Return(nil).Once()
		te.sink.On("NotifyUser", anyCtx, b1.BidderID, KindBiddingClosed, mock.Anything).Return(nil).Once()
		te.sink.On("NotifyUser", anyCtx, b2.BidderID, KindBiddingClosed, mock.Anything).Return(nil).Once()

		result, err := te.engine.CloseBidding(context.Background(), p.ID, actor)

		require.NoError(t, err)
		assert.True(t, result.Applied())
		assert.Equal(t, ProjectReviewing, result.Project.Status)
		assert.Nil(t, result.Reason)
		assert.True(t, te.tx.last().committed)
	})

	t.Run("already closed is a no-op without notifications", func(t *testing.T) {
		for _, status := range []ProjectStatus{ProjectReviewing, ProjectAwarded, ProjectCompleted} {
			te := newTestEngine(t)
			p := newProject(owner, status)
			te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

			result, err := te.engine.CloseBidding(context.Background(), p.ID, SystemActor)

			require.NoError(t, err)
			assert.Equal(t, OutcomeNoop, result.Outcome)
			assert.ErrorIs(t, result.Reason, ErrAlreadyClosed)
			assert.Empty(t, te.tx.txs)
		}
	})

	t.Run("losing the race to another closer is a no-op", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectBidding}, ProjectReviewing).Return(int64(0), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectReviewing), nil).Once()

		result, err := te.engine.CloseBidding(context.Background(), p.ID, SystemActor)

		require.NoError(t, err)
		assert.False(t, result.Applied())
		assert.ErrorIs(t, result.Reason, ErrAlreadyClosed)
		assert.True(t, te.tx.last().rolledBack)
		te.sink.AssertNotCalled(t, "NotifyUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancelled concurrently", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectBidding}, ProjectReviewing).Return(int64(0), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectCancelled), nil).Once()

		_, err := te.engine.CloseBidding(context.Background(), p.ID, SystemActor)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("draft cannot be closed", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectDraft)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.CloseBidding(context.Background(), p.ID, actor)

		var transitionErr *TransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, "close_bidding", transitionErr.Op)
		assert.Equal(t, "draft", transitionErr.From)
	})

	t.Run("stranger denied", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.CloseBidding(context.Background(), p.ID, Actor{ID: uuid.New(), Role: RoleOwner})
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("notification failure does not change the result", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectBidding}, ProjectReviewing).Return(int64(1), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectReviewing), nil).Once()
		te.bids.On("ListBidsByStatus", anyCtx, p.ID, BidPending).Return([]*Bid{}, nil)
		te.sink.On("NotifyUser", anyCtx, owner, KindBiddingClosed, mock.Anything).Return(errors.New("broker down"))

		result, err := te.engine.CloseBidding(context.Background(), p.ID, actor)

		require.NoError(t, err)
		assert.True(t, result.Applied())
	})

	t.Run("cancelled caller context still notifies", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		te.projects.On("GetProject", mock.Anything, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", mock.Anything, anyTx, p.ID, []ProjectStatus{ProjectBidding}, ProjectReviewing).Return(int64(1), nil)
		te.projects.On("GetProject", mock.Anything, p.ID).Return(withStatus(p, ProjectReviewing), nil).Once()
		te.bids.On("ListBidsByStatus", mock.Anything, p.ID, BidPending).Return([]*Bid{}, nil)
		te.sink.On("NotifyUser", mock.MatchedBy(func(ctx context.Context) bool {
			return ctx.Err() == nil
		}), owner, KindBiddingClosed, mock.Anything).Return(nil).Once()

		// the repository mocks ignore cancellation; dispatch must not inherit it
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := te.engine.CloseBidding(ctx, p.ID, actor)
		require.NoError(t, err)
	})
}

func TestEngine_Award(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	t.Run("awards winner and flips competitors to lost", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		winner, l1, l2 := newBid(p.ID, 900), newBid(p.ID, 950), newBid(p.ID, 1200)

		awarded := withStatus(p, ProjectAwarded)
		awarded.AwardedBidID = &winner.ID
		awarded.AwardedAmount = &winner.Amount

		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.bids.On("GetBid", anyCtx, winner.ID).Return(winner, nil)
		te.projects.On("AwardProject", anyCtx, anyTx, p.ID, winner.ID, winner.Amount).Return(int64(1), nil)
		te.bids.On("MarkBidWon", anyCtx, anyTx, p.ID, winner.ID).Return(int64(1), nil)
		te.bids.On("MarkCompetingLost", anyCtx, anyTx, p.ID, winner.ID).Return([]*Bid{l1, l2}, nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(awarded, nil).Once()
		te.sink.On("NotifyUser", anyCtx, winner.BidderID, KindBidWon, mock.Anything).Return(nil).Once()
		te.sink.On("NotifyUser", anyCtx, owner, KindAwarded, mock.Anything).Return(nil).Once()
		te.sink.On("NotifyUser", anyCtx, l1.BidderID, KindBidLost, mock.Anything).Return(nil).Once()
		te.sink.On("NotifyUser", anyCtx, l2.BidderID, KindBidLost, mock.Anything).Return(nil).Once()

		result, err := te.engine.Award(context.Background(), p.ID, winner.ID, actor)

		require.NoError(t, err)
		assert.True(t, result.Applied())
		assert.Equal(t, ProjectAwarded, result.Project.Status)
		assert.Equal(t, winner.ID, *result.Project.AwardedBidID)
		require.Len(t, te.tx.txs, 1, "award must use a single transaction")
		assert.True(t, te.tx.last().committed)
	})

	t.Run("losing the project race is a no-op", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		bid := newBid(p.ID, 900)
		other := uuid.New()
		awarded := withStatus(p, ProjectAwarded)
		awarded.AwardedBidID = &other

		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.bids.On("GetBid", anyCtx, bid.ID).Return(bid, nil)
		te.projects.On("AwardProject", anyCtx, anyTx, p.ID, bid.ID, bid.Amount).Return(int64(0), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(awarded, nil).Once()

		result, err := te.engine.Award(context.Background(), p.ID, bid.ID, actor)

		require.NoError(t, err)
		assert.Equal(t, OutcomeNoop, result.Outcome)
		assert.ErrorIs(t, result.Reason, ErrAlreadyAwarded)
		assert.True(t, te.tx.last().rolledBack)
		te.bids.AssertNotCalled(t, "MarkBidWon", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bid withdrawn before the write rolls back", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		bid := newBid(p.ID, 900)

		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.bids.On("GetBid", anyCtx, bid.ID).Return(bid, nil)
		te.projects.On("AwardProject", anyCtx, anyTx, p.ID, bid.ID, bid.Amount).Return(int64(1), nil)
		te.bids.On("MarkBidWon", anyCtx, anyTx, p.ID, bid.ID).Return(int64(0), nil)

		_, err := te.engine.Award(context.Background(), p.ID, bid.ID, actor)

		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.True(t, te.tx.last().rolledBack)
		assert.False(t, te.tx.last().committed)
	})

	t.Run("not reviewing", func(t *testing.T) {
		for _, status := range []ProjectStatus{ProjectDraft, ProjectBidding, ProjectAwarded, ProjectCompleted, ProjectCancelled} {
			te := newTestEngine(t)
			p := newProject(owner, status)
			te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

			_, err := te.engine.Award(context.Background(), p.ID, uuid.New(), actor)
			assert.ErrorIs(t, err, ErrInvalidStateTransition, string(status))
		}
	})

	t.Run("bid from another project", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		bid := newBid(uuid.New(), 900)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)
		te.bids.On("GetBid", anyCtx, bid.ID).Return(bid, nil)

		_, err := te.engine.Award(context.Background(), p.ID, bid.ID, actor)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("withdrawn bid", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		bid := newBid(p.ID, 900)
		bid.Status = BidWithdrawn
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)
		te.bids.On("GetBid", anyCtx, bid.ID).Return(bid, nil)

		_, err := te.engine.Award(context.Background(), p.ID, bid.ID, actor)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("unknown bid", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		bidID := uuid.New()
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)
		te.bids.On("GetBid", anyCtx, bidID).Return(nil, ErrBidNotFound)

		_, err := te.engine.Award(context.Background(), p.ID, bidID, actor)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_Complete(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	setup := func(t *testing.T) (*testEngine, *Project, *Bid) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectAwarded)
		winner := newBid(p.ID, 700)
		winner.Status = BidWon
		p.AwardedBidID = &winner.ID
		p.AwardedAmount = &winner.Amount
		completed := withStatus(p, ProjectCompleted)
		completed.CompletedAt = &testNow

		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompleteProject", anyCtx, anyTx, p.ID, testNow).Return(int64(1), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(completed, nil).Once()
		te.bids.On("GetBid", anyCtx, winner.ID).Return(winner, nil)
		te.sink.On("NotifyUser", anyCtx, winner.BidderID, KindCompleted, mock.Anything).Return(nil).Once()
		return te, p, winner
	}

	t.Run("completes and forwards rating", func(t *testing.T) {
		te, p, winner := setup(t)
		te.ratings.On("SubmitRating", anyCtx, mock.MatchedBy(func(r Rating) bool {
			return r.ProjectID == p.ID && r.RatedUserID == winner.BidderID && r.RaterID == owner && r.Score == 5
		})).Return(nil).Once()

		result, err := te.engine.Complete(context.Background(), p.ID, actor, &RatingInput{Score: 5})

		require.NoError(t, err)
		assert.True(t, result.Applied())
		assert.Equal(t, ProjectCompleted, result.Project.Status)
		assert.NotNil(t, result.Project.CompletedAt)
	})

	t.Run("duplicate rating is only logged", func(t *testing.T) {
		te, p, _ := setup(t)
		te.ratings.On("SubmitRating", anyCtx, mock.AnythingOfType("lifecycle.Rating")).Return(ErrAlreadyRated).Once()

		result, err := te.engine.Complete(context.Background(), p.ID, actor, &RatingInput{Score: 3})

		require.NoError(t, err)
		assert.True(t, result.Applied())
	})

	t.Run("without rating", func(t *testing.T) {
		te, p, _ := setup(t)

		result, err := te.engine.Complete(context.Background(), p.ID, actor, nil)

		require.NoError(t, err)
		assert.True(t, result.Applied())
		te.ratings.AssertNotCalled(t, "SubmitRating", mock.Anything, mock.Anything)
	})

	t.Run("rating out of range", func(t *testing.T) {
		for _, score := range []int{0, 6, -1} {
			te := newTestEngine(t)
			_, err := te.engine.Complete(context.Background(), uuid.New(), actor, &RatingInput{Score: score})
			assert.ErrorIs(t, err, ErrValidation)
		}
	})

	t.Run("not awarded", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.Complete(context.Background(), p.ID, actor, nil)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestEngine_Cancel(t *testing.T) {
	owner := uuid.New()
	actor := Actor{ID: owner, Role: RoleOwner}

	t.Run("cancels and notifies pending bidders", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectBidding)
		b := newBid(p.ID, 100)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil).Once()
		te.projects.On("CompareAndSetStatus", anyCtx, anyTx, p.ID, []ProjectStatus{ProjectDraft, ProjectBidding}, ProjectCancelled).Return(int64(1), nil)
		te.projects.On("GetProject", anyCtx, p.ID).Return(withStatus(p, ProjectCancelled), nil).Once()
		te.bids.On("ListBidsByStatus", anyCtx, p.ID, BidPending).Return([]*Bid{b}, nil)
		te.sink.On("NotifyUser", anyCtx, b.BidderID, KindCancelled, mock.Anything).Return(nil).Once()

		result, err := te.engine.Cancel(context.Background(), p.ID, actor)

		require.NoError(t, err)
		assert.Equal(t, ProjectCancelled, result.Project.Status)
	})

	t.Run("reviewing cannot be cancelled", func(t *testing.T) {
		te := newTestEngine(t)
		p := newProject(owner, ProjectReviewing)
		te.projects.On("GetProject", anyCtx, p.ID).Return(p, nil)

		_, err := te.engine.Cancel(context.Background(), p.ID, actor)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}
