package auction

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an auction
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether the status allows no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCanceled
}

// CloseReason records what triggered the terminal transition
type CloseReason string

const (
	CloseReasonExpired  CloseReason = "expired"
	CloseReasonBlitz    CloseReason = "blitz"
	CloseReasonForced   CloseReason = "forced"
	CloseReasonManual   CloseReason = "manual"
	CloseReasonCanceled CloseReason = "canceled"
)

const (
	// AntiSnipeWindow is how close to end_time an accepted bid must land
	// to trigger an extension.
	AntiSnipeWindow = 2 * time.Minute

	// AntiSnipeExtension is added to end_time on every late bid.
	// There is no cap on the number of extensions.
	AntiSnipeExtension = 2 * time.Minute

	// MinLeadTime is the minimum distance between creation and end_time.
	MinLeadTime = 10 * time.Minute
)

// Auction represents a single lot. At most one auction is active
// system-wide; the store enforces this with a partial unique index.
type Auction struct {
	ID          uuid.UUID
	Title       string
	Description string
	PhotoRef    string // opaque reference, rendered by the presentation layer

	StartPrice int64  // minor currency units
	MinStep    int64  // minor currency units
	BlitzPrice *int64 // instant-buy price, >= StartPrice when set

	// EndTime is mutable only through the anti-snipe extension while the
	// auction is active.
	EndTime time.Time

	// Cooldown is the minimum interval between two bids by the same
	// bidder. CooldownOffBeforeEnd is the window before EndTime in which
	// the cooldown is waived entirely so the endgame stays competitive.
	Cooldown             time.Duration
	CooldownOffBeforeEnd time.Duration

	Status     Status
	WinnerID   *int64
	FinalPrice *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the time left until EndTime at the given instant.
func (a *Auction) Remaining(now time.Time) time.Duration {
	return a.EndTime.Sub(now)
}

// CooldownApplies reports whether the pacing cooldown is in force at the
// given instant. Inside the endgame window the cooldown is always waived.
func (a *Auction) CooldownApplies(now time.Time) bool {
	if a.Cooldown <= 0 {
		return false
	}
	return a.Remaining(now) > a.CooldownOffBeforeEnd
}

// Bid is an entry in the append-only bid ledger. PlacedAt is assigned by
// the store clock, never the client, so tie-breaks are immune to clock
// skew across bidders.
type Bid struct {
	ID        uuid.UUID `db:"id"`
	AuctionID uuid.UUID `db:"auction_id"`
	UserID    int64     `db:"user_id"`
	Amount    int64     `db:"amount"`
	PlacedAt  time.Time `db:"placed_at"`
}

// Outcome is the tagged result of a terminal transition. The no-bids case
// is a first-class branch rather than a nullable-winner convention.
type Outcome struct {
	Won        bool
	WinnerID   int64
	FinalPrice int64
}

// NoBids is the outcome of closing an auction that received no bids.
var NoBids = Outcome{}

// Won builds a winning outcome.
func Won(winnerID, finalPrice int64) Outcome {
	return Outcome{Won: true, WinnerID: winnerID, FinalPrice: finalPrice}
}

// outcomeFromBid derives the close outcome from the highest bid, if any.
func outcomeFromBid(highest *Bid) Outcome {
	if highest == nil {
		return NoBids
	}
	return Won(highest.UserID, highest.Amount)
}

// CreateAuctionCommand carries the parameters of a new lot.
type CreateAuctionCommand struct {
	Title                string
	Description          string
	PhotoRef             string
	StartPrice           int64
	MinStep              int64
	BlitzPrice           *int64
	EndTime              time.Time
	Cooldown             time.Duration
	CooldownOffBeforeEnd time.Duration
}

// PlaceBidCommand represents an incoming bid.
type PlaceBidCommand struct {
	AuctionID uuid.UUID
	UserID    int64
	Amount    int64
}

// BlitzBuyCommand represents a direct instant-buy request (the bidder
// accepted the listed blitz price without naming an amount).
type BlitzBuyCommand struct {
	AuctionID uuid.UUID
	UserID    int64
}

// PlaceBidResult reports what an accepted bid did to the auction.
type PlaceBidResult struct {
	Bid          *Bid
	CurrentPrice int64

	// PreviousLeader is the bidder who was outbid, set only when the
	// prior highest bid belonged to someone else.
	PreviousLeader *int64

	// EndTime is the auction end after any anti-snipe extension.
	EndTime  time.Time
	Extended bool

	// Blitz marks that the bid closed the auction at the blitz price.
	Blitz bool
}
