package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
)

// fakeTx records whether the engine committed
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

// MockTxManager hands out fakeTx values and keeps them for inspection
type MockTxManager struct {
	txs []*fakeTx
	err error
}

func (m *MockTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MockTxManager) last() *fakeTx {
	if len(m.txs) == 0 {
		return nil
	}
	return m.txs[len(m.txs)-1]
}

// MockProjectRepository is a mock implementation of ProjectRepository
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) CreateProject(ctx context.Context, tx pgx.Tx, project *Project) error {
	args := m.Called(ctx, tx, project)
	return args.Error(0)
}

func (m *MockProjectRepository) GetProject(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Project), args.Error(1)
}

func (m *MockProjectRepository) UpdateDraft(ctx context.Context, tx pgx.Tx, project *Project) (int64, error) {
	args := m.Called(ctx, tx, project)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) DeleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, projectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) CompareAndSetStatus(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, from []ProjectStatus, to ProjectStatus) (int64, error) {
	args := m.Called(ctx, tx, projectID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) AwardProject(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID, amount int64) (int64, error) {
	args := m.Called(ctx, tx, projectID, bidID, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) CompleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, completedAt time.Time) (int64, error) {
	args := m.Called(ctx, tx, projectID, completedAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) ResetProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, projectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectRepository) ListExpiredBidding(ctx context.Context, now time.Time, after *ExpiredCursor, limit int) ([]*Project, error) {
	args := m.Called(ctx, now, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Project), args.Error(1)
}

// MockBidRepository is a mock implementation of BidRepository
type MockBidRepository struct {
	mock.Mock
}

func (m *MockBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid, now time.Time) (int64, error) {
	args := m.Called(ctx, tx, bid, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBidRepository) GetBid(ctx context.Context, bidID uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, bidID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockBidRepository) ListBids(ctx context.Context, projectID uuid.UUID) ([]*Bid, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Bid), args.Error(1)
}

func (m *MockBidRepository) ListBidsByStatus(ctx context.Context, projectID uuid.UUID, status BidStatus) ([]*Bid, error) {
	args := m.Called(ctx, projectID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Bid), args.Error(1)
}

func (m *MockBidRepository) AmendBid(ctx context.Context, tx pgx.Tx, bid *Bid, now time.Time) (int64, error) {
	args := m.Called(ctx, tx, bid, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBidRepository) WithdrawBid(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, bidID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBidRepository) MarkBidWon(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, projectID, bidID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBidRepository) MarkCompetingLost(ctx context.Context, tx pgx.Tx, projectID, winnerID uuid.UUID) ([]*Bid, error) {
	args := m.Called(ctx, tx, projectID, winnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Bid), args.Error(1)
}

func (m *MockBidRepository) ResetBids(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, projectID)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotificationSink is a mock implementation of NotificationSink
type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) NotifyUser(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	args := m.Called(ctx, userID, kind, payload)
	return args.Error(0)
}

func (m *MockNotificationSink) BroadcastToRole(ctx context.Context, role Role, kind string, payload map[string]any) error {
	args := m.Called(ctx, role, kind, payload)
	return args.Error(0)
}

// MockRatingCollaborator is a mock implementation of RatingCollaborator
type MockRatingCollaborator struct {
	mock.Mock
}

func (m *MockRatingCollaborator) SubmitRating(ctx context.Context, rating Rating) error {
	args := m.Called(ctx, rating)
	return args.Error(0)
}

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testEngine struct {
	engine   *Engine
	tx       *MockTxManager
	projects *MockProjectRepository
	bids     *MockBidRepository
	sink     *MockNotificationSink
	ratings  *MockRatingCollaborator
	clock    *clockwork.FakeClock
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		tx:       &MockTxManager{},
		projects: new(MockProjectRepository),
		bids:     new(MockBidRepository),
		sink:     new(MockNotificationSink),
		ratings:  new(MockRatingCollaborator),
		clock:    clockwork.NewFakeClockAt(testNow),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	te.engine = NewEngine(te.tx, te.projects, te.bids, te.sink, te.ratings, te.clock, logger)
	t.Cleanup(func() {
		te.projects.AssertExpectations(t)
		te.bids.AssertExpectations(t)
		te.sink.AssertExpectations(t)
		te.ratings.AssertExpectations(t)
	})
	return te
}

func newProject(owner uuid.UUID, status ProjectStatus) *Project {
	return &Project{
		ID:              uuid.New(),
		Title:           "Office fit-out",
		Status:          status,
		OwnerID:         owner,
		BiddingDeadline: testNow.Add(48 * time.Hour),
		DeliveryDate:    testNow.Add(30 * 24 * time.Hour),
		CreatedAt:       testNow.Add(-time.Hour),
		UpdatedAt:       testNow.Add(-time.Hour),
	}
}

func newBid(projectID uuid.UUID, amount int64) *Bid {
	return &Bid{
		ID:        uuid.New(),
		ProjectID: projectID,
		BidderID:  uuid.New(),
		Amount:    amount,
		Status:    BidPending,
		CreatedAt: testNow.Add(-time.Minute),
		UpdatedAt: testNow.Add(-time.Minute),
	}
}

// withStatus returns a copy of p in status s
func withStatus(p *Project, s ProjectStatus) *Project {
	c := *p
	c.Status = s
	return &c
}

var (
	anyCtx = mock.Anything
	anyTx  = mock.Anything
)
