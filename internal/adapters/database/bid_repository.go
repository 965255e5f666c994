package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovalev/molotok/internal/domain/auction"
	pkgdb "github.com/dkovalev/molotok/pkg/database"
)

// PostgresBidRepository implements auction.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// InsertBid appends a bid to the ledger. placed_at is assigned by the
// database clock so the tie-break ordering is monotonic regardless of
// client clock skew.
func (r *PostgresBidRepository) InsertBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID, amount int64) (*auction.Bid, error) {
	query := `
		INSERT INTO bids (id, auction_id, user_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING placed_at
	`
	bid := &auction.Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
	}
	err := tx.QueryRow(ctx, query, bid.ID, auctionID, userID, amount).Scan(&bid.PlacedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}
	return bid, nil
}

// GetHighestBid returns the leading bid: max amount, earliest placed_at on
// ties. Returns nil when the ledger is empty.
func (r *PostgresBidRepository) GetHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auction.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, placed_at ASC
		LIMIT 1
	`
	return r.getBid(ctx, tx, query, auctionID)
}

// GetLatestBidByUser returns the bidder's most recent bid on the auction,
// or nil if they have not bid yet.
func (r *PostgresBidRepository) GetLatestBidByUser(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, userID int64) (*auction.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, placed_at
		FROM bids
		WHERE auction_id = $1 AND user_id = $2
		ORDER BY placed_at DESC
		LIMIT 1
	`
	return r.getBid(ctx, tx, query, auctionID, userID)
}

// GetBidByID retrieves a bid by its ID
func (r *PostgresBidRepository) GetBidByID(ctx context.Context, bidID uuid.UUID) (*auction.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, placed_at
		FROM bids
		WHERE id = $1
	`
	bid, err := r.getBid(ctx, r.pool, query, bidID)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, auction.ErrBidNotFound
	}
	return bid, nil
}

// ListTopBids returns the best bids for an auction, leader first
func (r *PostgresBidRepository) ListTopBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*auction.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, placed_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*auction.Bid
	for rows.Next() {
		var bid auction.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.UserID,
			&bid.Amount,
			&bid.PlacedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

// getBid runs a single-row bid query against any DBTX (pool or tx) and
// maps the empty result to nil.
func (r *PostgresBidRepository) getBid(ctx context.Context, db pkgdb.DBTX, query string, args ...any) (*auction.Bid, error) {
	var bid auction.Bid
	err := db.QueryRow(ctx, query, args...).Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.UserID,
		&bid.Amount,
		&bid.PlacedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}
