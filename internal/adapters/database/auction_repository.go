package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovalev/molotok/internal/domain/auction"
)

const auctionColumns = `
	id, title, description, photo_ref,
	start_price, min_step, blitz_price, end_time,
	cooldown_seconds, cooldown_off_before_end_seconds,
	status, winner_id, final_price, created_at, updated_at
`

// PostgresAuctionRepository implements auction.AuctionRepository using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

// CreateAuction inserts a new auction row. The partial unique index on
// status='active' turns a concurrent second creation into a unique
// violation, which maps to ErrActiveAuctionExists.
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (
			id, title, description, photo_ref,
			start_price, min_step, blitz_price, end_time,
			cooldown_seconds, cooldown_off_before_end_seconds,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::auction_status, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		a.PhotoRef,
		a.StartPrice,
		a.MinStep,
		a.BlitzPrice,
		a.EndTime,
		int64(a.Cooldown/time.Second),
		int64(a.CooldownOffBeforeEnd/time.Second),
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auction.ErrActiveAuctionExists
		}
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetActiveAuction retrieves the single active auction
func (r *PostgresAuctionRepository) GetActiveAuction(ctx context.Context) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'active' LIMIT 1`
	return r.scanAuction(r.pool.QueryRow(ctx, query))
}

// GetAuctionByIDForUpdate retrieves an auction and locks its row for the
// duration of the transaction. This is the per-auction serialization
// boundary shared by bidders and the expiry sweep.
func (r *PostgresAuctionRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1 FOR UPDATE`
	return r.scanAuction(tx.QueryRow(ctx, query, id))
}

// ExtendEndTime moves the auction end within a transaction
func (r *PostgresAuctionRepository) ExtendEndTime(ctx context.Context, tx pgx.Tx, id uuid.UUID, newEndTime time.Time) error {
	query := `UPDATE auctions SET end_time = $1, updated_at = NOW() WHERE id = $2`
	result, err := tx.Exec(ctx, query, newEndTime, id)
	if err != nil {
		return fmt.Errorf("failed to extend end time: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

// CloseAuctionAtomic performs the terminal transition as a compare-and-set
// keyed on the active status, so only one of several concurrent closers
// actually flips the row.
func (r *PostgresAuctionRepository) CloseAuctionAtomic(ctx context.Context, tx pgx.Tx, id uuid.UUID, status auction.Status, winnerID, finalPrice *int64) (bool, error) {
	query := `
		UPDATE auctions
		SET status = $2::auction_status, winner_id = $3, final_price = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	result, err := tx.Exec(ctx, query, id, status, winnerID, finalPrice)
	if err != nil {
		return false, fmt.Errorf("failed to close auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListExpiredActive returns active auctions whose end_time has passed
func (r *PostgresAuctionRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'active' AND end_time <= $1`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	defer rows.Close()

	var result []*auction.Auction
	for rows.Next() {
		a, scanErr := r.scanAuction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return result, nil
}

func (r *PostgresAuctionRepository) scanAuction(row pgx.Row) (*auction.Auction, error) {
	var a auction.Auction
	var cooldownSec, cooldownOffSec int64
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.PhotoRef,
		&a.StartPrice,
		&a.MinStep,
		&a.BlitzPrice,
		&a.EndTime,
		&cooldownSec,
		&cooldownOffSec,
		&a.Status,
		&a.WinnerID,
		&a.FinalPrice,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auction.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to scan auction: %w", err)
	}
	a.Cooldown = time.Duration(cooldownSec) * time.Second
	a.CooldownOffBeforeEnd = time.Duration(cooldownOffSec) * time.Second
	return &a, nil
}
