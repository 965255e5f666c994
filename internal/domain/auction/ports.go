package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkovalev/molotok/pkg/events"
)

// AuctionRepository defines the interface for auction persistence
type AuctionRepository interface {
	// CreateAuction inserts a new auction. Returns ErrActiveAuctionExists
	// when another auction already holds the active slot.
	CreateAuction(ctx context.Context, a *Auction) error

	// GetActiveAuction retrieves the single active auction, or
	// ErrAuctionNotFound if there is none.
	GetActiveAuction(ctx context.Context) (*Auction, error)

	// GetAuctionByIDForUpdate retrieves an auction and locks its row.
	// Must be called within a transaction; this is the per-auction
	// serialization boundary for all state-changing operations.
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Auction, error)

	// ExtendEndTime moves the auction end within a transaction.
	ExtendEndTime(ctx context.Context, tx pgx.Tx, id uuid.UUID, newEndTime time.Time) error

	// CloseAuctionAtomic performs the terminal transition as a
	// compare-and-set keyed on status = 'active'. Returns false when the
	// auction was already closed by a concurrent caller.
	CloseAuctionAtomic(ctx context.Context, tx pgx.Tx, id uuid.UUID, status Status, winnerID, finalPrice *int64) (bool, error)

	// ListExpiredActive returns active auctions whose end_time has passed.
	ListExpiredActive(ctx context.Context, now time.Time) ([]*Auction, error)
}

// BidRepository defines the interface for the append-only bid ledger
type BidRepository interface {
	// InsertBid appends a bid within a transaction. The store assigns
	// placed_at from its own clock and returns the complete row.
	InsertBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID, amount int64) (*Bid, error)

	// GetHighestBid returns the current leader (max amount, earliest
	// placed_at on ties), or nil if the ledger is empty.
	GetHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Bid, error)

	// GetLatestBidByUser returns the bidder's most recent bid on the
	// auction, or nil if they have not bid yet.
	GetLatestBidByUser(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID int64) (*Bid, error)

	// GetBidByID retrieves a bid by its ID
	GetBidByID(ctx context.Context, bidID uuid.UUID) (*Bid, error)

	// ListTopBids returns the best bids for an auction ordered by
	// (amount desc, placed_at asc).
	ListTopBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*Bid, error)
}

// OutboxRepository defines the interface for notifier-intent persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
