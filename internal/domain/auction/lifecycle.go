package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAuction validates the command and opens a new active auction.
// The single-active invariant is checked here and enforced again by the
// store's partial unique index, so two concurrent creations cannot both
// succeed.
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	if cmd.StartPrice <= 0 {
		return nil, ErrInvalidStartPrice
	}
	if cmd.MinStep <= 0 {
		return nil, ErrInvalidMinStep
	}
	if cmd.Cooldown < 0 || cmd.CooldownOffBeforeEnd < 0 {
		return nil, ErrInvalidCooldown
	}
	if cmd.BlitzPrice != nil && *cmd.BlitzPrice < cmd.StartPrice {
		return nil, ErrInvalidBlitzPrice
	}

	now := s.now()
	if cmd.EndTime.Sub(now) < MinLeadTime {
		return nil, ErrEndTimeTooSoon
	}

	if _, err := s.auctionRepo.GetActiveAuction(ctx); err == nil {
		return nil, ErrActiveAuctionExists
	} else if !errors.Is(err, ErrAuctionNotFound) {
		return nil, fmt.Errorf("failed to check for active auction: %w", err)
	}

	a := &Auction{
		ID:                   uuid.New(),
		Title:                cmd.Title,
		Description:          cmd.Description,
		PhotoRef:             cmd.PhotoRef,
		StartPrice:           cmd.StartPrice,
		MinStep:              cmd.MinStep,
		BlitzPrice:           cmd.BlitzPrice,
		EndTime:              cmd.EndTime,
		Cooldown:             cmd.Cooldown,
		CooldownOffBeforeEnd: cmd.CooldownOffBeforeEnd,
		Status:               StatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.auctionRepo.CreateAuction(ctx, a); err != nil {
		if errors.Is(err, ErrActiveAuctionExists) {
			return nil, ErrActiveAuctionExists
		}
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	return a, nil
}

// SweepExpired closes every active auction whose end_time has passed.
// Safe to call concurrently with PlaceBid and safe to call repeatedly:
// each close re-checks expiry under the row lock and transitions via
// compare-and-set. Returns the number of auctions closed.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.auctionRepo.ListExpiredActive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	closed := 0
	for _, a := range expired {
		did, closeErr := s.closeExpired(ctx, a.ID, now)
		if closeErr != nil {
			return closed, closeErr
		}
		if did {
			closed++
		}
	}
	return closed, nil
}

// closeExpired finishes one expired auction. Returns false without error
// when a concurrent bid extended the auction past now, or when a
// concurrent close already won the race.
func (s *Service) closeExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.auctionRepo.GetAuctionByIDForUpdate(ctx, tx, id)
	if err != nil {
		return false, fmt.Errorf("failed to lock auction: %w", err)
	}
	if a.Status != StatusActive {
		return false, nil
	}
	// An anti-snipe extension may have landed between the listing query
	// and this lock. The extended auction is not expired anymore.
	if now.Before(a.EndTime) {
		return false, nil
	}

	highest, err := s.bidRepo.GetHighestBid(ctx, tx, a.ID)
	if err != nil {
		return false, fmt.Errorf("failed to get highest bid: %w", err)
	}

	if err := s.closeLocked(ctx, tx, a, outcomeFromBid(highest), CloseReasonExpired); err != nil {
		if errors.Is(err, ErrAlreadyFinished) {
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ForceClose terminates an auction early, regardless of end_time, with
// the winner and price computed from the current ledger.
func (s *Service) ForceClose(ctx context.Context, auctionID uuid.UUID) (Outcome, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.lockActiveAuction(ctx, tx, auctionID)
	if err != nil {
		return Outcome{}, err
	}

	highest, err := s.bidRepo.GetHighestBid(ctx, tx, a.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to get highest bid: %w", err)
	}
	outcome := outcomeFromBid(highest)

	if err := s.closeLocked(ctx, tx, a, outcome, CloseReasonForced); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// SelectWinnerManually closes the auction with an explicitly chosen bid,
// overriding the computed leader (for example after disqualifying the top
// bidder).
func (s *Service) SelectWinnerManually(ctx context.Context, auctionID, bidID uuid.UUID) (Outcome, error) {
	bid, err := s.bidRepo.GetBidByID(ctx, bidID)
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			return Outcome{}, ErrBidNotFound
		}
		return Outcome{}, fmt.Errorf("failed to get bid: %w", err)
	}
	if bid.AuctionID != auctionID {
		return Outcome{}, ErrBidAuctionMismatch
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.lockActiveAuction(ctx, tx, auctionID)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Won(bid.UserID, bid.Amount)
	if err := s.closeLocked(ctx, tx, a, outcome, CloseReasonManual); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// Cancel withdraws an active auction without a winner.
func (s *Service) Cancel(ctx context.Context, auctionID uuid.UUID) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	a, err := s.lockActiveAuction(ctx, tx, auctionID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, tx, a, StatusCanceled, NoBids, CloseReasonCanceled); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// closeLocked finishes an auction already locked in the caller's
// transaction.
func (s *Service) closeLocked(ctx context.Context, tx pgx.Tx, a *Auction, outcome Outcome, reason CloseReason) error {
	return s.transition(ctx, tx, a, StatusFinished, outcome, reason)
}

// transition performs the terminal status change via compare-and-set and
// enqueues the auction.closed intent in the same transaction. Exactly one
// caller among concurrent attempts performs the transition; losers get
// ErrAlreadyFinished and must not re-emit side effects.
func (s *Service) transition(ctx context.Context, tx pgx.Tx, a *Auction, status Status, outcome Outcome, reason CloseReason) error {
	var winnerID, finalPrice *int64
	if outcome.Won {
		winnerID = &outcome.WinnerID
		finalPrice = &outcome.FinalPrice
	}

	ok, err := s.auctionRepo.CloseAuctionAtomic(ctx, tx, a.ID, status, winnerID, finalPrice)
	if err != nil {
		return fmt.Errorf("failed to close auction: %w", err)
	}
	if !ok {
		return ErrAlreadyFinished
	}

	closedEvent := AuctionClosedEvent{
		AuctionID:  a.ID,
		Title:      a.Title,
		Reason:     reason,
		Won:        outcome.Won,
		WinnerID:   winnerID,
		FinalPrice: finalPrice,
	}
	return s.enqueueEvent(ctx, tx, EventTypeAuctionClosed, closedEvent)
}
