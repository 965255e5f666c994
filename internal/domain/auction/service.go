package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkovalev/molotok/pkg/database"
	"github.com/dkovalev/molotok/pkg/events"
)

// Service implements the bidding engine and the lifecycle controller. It
// owns no goroutines and is safe for concurrent use: every state-changing
// operation runs inside a transaction holding the auction row lock, and
// the terminal transition is a compare-and-set on status.
type Service struct {
	txManager   database.TransactionManager
	auctionRepo AuctionRepository
	bidRepo     BidRepository
	outboxRepo  OutboxRepository

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// NewService creates the auction service.
func NewService(
	txManager database.TransactionManager,
	auctionRepo AuctionRepository,
	bidRepo BidRepository,
	outboxRepo OutboxRepository,
) *Service {
	return &Service{
		txManager:   txManager,
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		outboxRepo:  outboxRepo,
		now:         time.Now,
	}
}

// GetActiveAuction returns the currently active auction, or
// ErrAuctionNotActive if there is none.
func (s *Service) GetActiveAuction(ctx context.Context) (*Auction, error) {
	a, err := s.auctionRepo.GetActiveAuction(ctx)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			return nil, ErrAuctionNotActive
		}
		return nil, fmt.Errorf("failed to get active auction: %w", err)
	}
	return a, nil
}

// ListTopBids returns the best bids for an auction, leader first.
func (s *Service) ListTopBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*Bid, error) {
	bids, err := s.bidRepo.ListTopBids(ctx, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top bids: %w", err)
	}
	return bids, nil
}

// enqueueEvent serializes a notifier intent into the outbox within the
// caller's transaction, so the intent commits atomically with the state
// change it describes.
func (s *Service) enqueueEvent(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	event := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    events.OutboxStatusPending,
		CreatedAt: s.now(),
	}

	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
