package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PlaceBid validates and admits a bid. The whole sequence — read current
// price, validate, write bid, maybe extend end_time — runs in one
// transaction under the auction row lock, so concurrent bidders and the
// expiry sweep serialize per auction.
//
// The current price is always re-derived from the bid ledger, never read
// from a cached column: the ledger is the single source of truth and the
// price is a projection over it (max amount, earliest placed_at on ties).
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidBidAmount
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.lockActiveAuction(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	// Expiry is a wall-clock comparison, not the status flag: a bid that
	// arrives after end_time but before the sweep ran is still rejected.
	now := s.now()
	if !now.Before(a.EndTime) {
		return nil, ErrAuctionExpired
	}

	if a.CooldownApplies(now) {
		last, lastErr := s.bidRepo.GetLatestBidByUser(ctx, tx, a.ID, cmd.UserID)
		if lastErr != nil {
			return nil, fmt.Errorf("failed to get bidder's latest bid: %w", lastErr)
		}
		if last != nil {
			if elapsed := now.Sub(last.PlacedAt); elapsed < a.Cooldown {
				return nil, &CooldownActiveError{RetryAfter: a.Cooldown - elapsed}
			}
		}
	}

	// Blitz shortcut: an amount at or above the blitz price buys the lot
	// at exactly the listed price, never the submitted amount. No further
	// checks apply.
	if a.BlitzPrice != nil && cmd.Amount >= *a.BlitzPrice {
		return s.buyBlitzLocked(ctx, tx, a, cmd.UserID)
	}

	highest, err := s.bidRepo.GetHighestBid(ctx, tx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	current := a.StartPrice
	var previousLeader *int64
	if highest != nil {
		current = highest.Amount
		if highest.UserID != cmd.UserID {
			leader := highest.UserID
			previousLeader = &leader
		}
	}

	if cmd.Amount < current+a.MinStep {
		return nil, &BidTooLowError{MinimumRequired: current + a.MinStep}
	}

	bid, err := s.bidRepo.InsertBid(ctx, tx, a.ID, cmd.UserID, cmd.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}

	// Anti-snipe: any accepted bid landing inside the window pushes
	// end_time out, in the same transaction as the bid write so the sweep
	// cannot race past the old end_time.
	endTime := a.EndTime
	extended := false
	if a.Remaining(now) <= AntiSnipeWindow {
		endTime = a.EndTime.Add(AntiSnipeExtension)
		if extErr := s.auctionRepo.ExtendEndTime(ctx, tx, a.ID, endTime); extErr != nil {
			return nil, fmt.Errorf("failed to extend end time: %w", extErr)
		}
		extended = true
	}

	accepted := BidAcceptedEvent{
		AuctionID:      a.ID,
		BidID:          bid.ID,
		UserID:         bid.UserID,
		Amount:         bid.Amount,
		CurrentPrice:   bid.Amount,
		PreviousLeader: previousLeader,
		EndTime:        endTime,
	}
	if err := s.enqueueEvent(ctx, tx, EventTypeBidAccepted, accepted); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &PlaceBidResult{
		Bid:            bid,
		CurrentPrice:   bid.Amount,
		PreviousLeader: previousLeader,
		EndTime:        endTime,
		Extended:       extended,
	}, nil
}

// BuyBlitz performs a direct instant purchase at the listed blitz price.
// The pacing cooldown does not apply: the buyer is not pacing a bidding
// war, they are ending it.
func (s *Service) BuyBlitz(ctx context.Context, cmd BlitzBuyCommand) (*PlaceBidResult, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.lockActiveAuction(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(a.EndTime) {
		return nil, ErrAuctionExpired
	}
	if a.BlitzPrice == nil {
		return nil, ErrBlitzUnavailable
	}

	return s.buyBlitzLocked(ctx, tx, a, cmd.UserID)
}

// buyBlitzLocked records the blitz bid and closes the auction, then
// commits the transaction it was handed.
func (s *Service) buyBlitzLocked(ctx context.Context, tx pgx.Tx, a *Auction, userID int64) (*PlaceBidResult, error) {
	price := *a.BlitzPrice

	bid, err := s.bidRepo.InsertBid(ctx, tx, a.ID, userID, price)
	if err != nil {
		return nil, fmt.Errorf("failed to insert blitz bid: %w", err)
	}

	if err := s.closeLocked(ctx, tx, a, Won(userID, price), CloseReasonBlitz); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &PlaceBidResult{
		Bid:          bid,
		CurrentPrice: price,
		EndTime:      a.EndTime,
		Blitz:        true,
	}, nil
}

// lockActiveAuction loads the auction row FOR UPDATE and verifies it is
// the active one.
func (s *Service) lockActiveAuction(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Auction, error) {
	a, err := s.auctionRepo.GetAuctionByIDForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			return nil, ErrAuctionNotActive
		}
		return nil, fmt.Errorf("failed to lock auction: %w", err)
	}
	if a.Status != StatusActive {
		return nil, ErrAuctionNotActive
	}
	return a, nil
}
