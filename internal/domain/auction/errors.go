package auction

import (
	"errors"
	"fmt"
	"time"
)

// Expected outcomes returned to the caller. None of these are fatal; the
// calling context owns retry policy. Storage failures are wrapped with %w
// and surface as distinct, unwrappable errors.
var (
	ErrAuctionNotActive    = errors.New("no matching active auction")
	ErrAuctionExpired      = errors.New("auction has ended")
	ErrBlitzUnavailable    = errors.New("blitz price is not configured for this auction")
	ErrAlreadyFinished     = errors.New("auction is already closed")
	ErrActiveAuctionExists = errors.New("another auction is already active")
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrBidAuctionMismatch  = errors.New("bid does not belong to this auction")
	ErrInvalidBidAmount    = errors.New("bid amount must be positive")
	ErrInvalidStartPrice   = errors.New("start price must be greater than 0")
	ErrInvalidMinStep      = errors.New("min step must be greater than 0")
	ErrInvalidCooldown     = errors.New("cooldown durations must not be negative")
	ErrInvalidBlitzPrice   = errors.New("blitz price must not be below the start price")
	ErrEndTimeTooSoon      = errors.New("end time must be at least the minimum lead time in the future")
)

// BidTooLowError rejects a bid below the minimum increment and tells the
// caller the smallest amount that would be accepted right now.
type BidTooLowError struct {
	MinimumRequired int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: minimum required is %d", e.MinimumRequired)
}

// CooldownActiveError rejects a bid placed before the bidder's pacing
// interval elapsed.
type CooldownActiveError struct {
	RetryAfter time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active: retry after %s", e.RetryAfter.Round(time.Second))
}
