package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/dkovalev/molotok/pkg/events"
)

// stubTx satisfies pgx.Tx for unit tests. The repositories are mocked,
// so no statement ever reaches it; only Commit/Rollback matter.
type stubTx struct {
	committed  bool
	rolledBack bool
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *stubTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *stubTx) Conn() *pgx.Conn { return nil }

type stubTxManager struct {
	tx *stubTx
}

func (m *stubTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) { return m.tx, nil }

// MockAuctionRepository is a mock implementation of AuctionRepository for testing
type MockAuctionRepository struct {
	mock.Mock
}

func (m *MockAuctionRepository) CreateAuction(ctx context.Context, a *Auction) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAuctionRepository) GetActiveAuction(ctx context.Context) (*Auction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Auction), args.Error(1)
}

func (m *MockAuctionRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Auction, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Auction), args.Error(1)
}

func (m *MockAuctionRepository) ExtendEndTime(ctx context.Context, tx pgx.Tx, id uuid.UUID, newEndTime time.Time) error {
	args := m.Called(ctx, tx, id, newEndTime)
	return args.Error(0)
}

func (m *MockAuctionRepository) CloseAuctionAtomic(ctx context.Context, tx pgx.Tx, id uuid.UUID, status Status, winnerID, finalPrice *int64) (bool, error) {
	args := m.Called(ctx, tx, id, status, winnerID, finalPrice)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuctionRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]*Auction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Auction), args.Error(1)
}

// MockBidRepository is a mock implementation of BidRepository for testing
type MockBidRepository struct {
	mock.Mock
}

func (m *MockBidRepository) InsertBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID, amount int64) (*Bid, error) {
	args := m.Called(ctx, tx, auctionID, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockBidRepository) GetHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, tx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockBidRepository) GetLatestBidByUser(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID int64) (*Bid, error) {
	args := m.Called(ctx, tx, auctionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockBidRepository) GetBidByID(ctx context.Context, bidID uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, bidID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockBidRepository) ListTopBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*Bid, error) {
	args := m.Called(ctx, auctionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Bid), args.Error(1)
}

// MockOutboxRepository is a mock implementation of OutboxRepository for testing
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

// testFixture wires a Service over mocks with a frozen clock.
type testFixture struct {
	tx          *stubTx
	auctionRepo *MockAuctionRepository
	bidRepo     *MockBidRepository
	outboxRepo  *MockOutboxRepository
	service     *Service
}

func newTestFixture(now time.Time) *testFixture {
	f := &testFixture{
		tx:          &stubTx{},
		auctionRepo: new(MockAuctionRepository),
		bidRepo:     new(MockBidRepository),
		outboxRepo:  new(MockOutboxRepository),
	}
	f.service = NewService(&stubTxManager{tx: f.tx}, f.auctionRepo, f.bidRepo, f.outboxRepo)
	f.service.now = func() time.Time { return now }
	return f
}
