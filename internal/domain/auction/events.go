package auction

import (
	"time"

	"github.com/google/uuid"
)

// Event types routed on the auction.events exchange.
const (
	EventTypeBidAccepted   = "bid.accepted"
	EventTypeAuctionClosed = "auction.closed"
)

// BidAcceptedEvent is the notifier intent emitted after an accepted bid.
// The previous leader, when present, is the bidder to notify about being
// outbid. Delivery is the consumer's concern, not the engine's.
type BidAcceptedEvent struct {
	AuctionID      uuid.UUID `json:"auction_id"`
	BidID          uuid.UUID `json:"bid_id"`
	UserID         int64     `json:"user_id"`
	Amount         int64     `json:"amount"`
	CurrentPrice   int64     `json:"current_price"`
	PreviousLeader *int64    `json:"previous_leader,omitempty"`
	EndTime        time.Time `json:"end_time"`
}

// AuctionClosedEvent is the notifier intent emitted exactly once per
// terminal transition, in the same transaction that performed it.
type AuctionClosedEvent struct {
	AuctionID  uuid.UUID   `json:"auction_id"`
	Title      string      `json:"title"`
	Reason     CloseReason `json:"reason"`
	Won        bool        `json:"won"`
	WinnerID   *int64      `json:"winner_id,omitempty"`
	FinalPrice *int64      `json:"final_price,omitempty"`
}
