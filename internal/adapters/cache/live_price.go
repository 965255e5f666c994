package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// livePriceTTL bounds staleness if invalidation is ever missed; the next
// accepted bid overwrites the key anyway.
const livePriceTTL = 5 * time.Minute

// LivePrice is the presentation-facing snapshot of an auction's bidding
// state. It is a cache of a ledger projection: the engine never consults
// it for validation.
type LivePrice struct {
	AuctionID    uuid.UUID `json:"auction_id"`
	CurrentPrice int64     `json:"current_price"`
	Leader       *int64    `json:"leader,omitempty"`
	EndTime      time.Time `json:"end_time"`
}

// LivePriceCache keeps the current price/leader in Redis so the channel
// post renderer does not hit Postgres on every view.
type LivePriceCache struct {
	rdb *redis.Client
}

// NewLivePriceCache creates a Redis-backed live price cache
func NewLivePriceCache(rdb *redis.Client) *LivePriceCache {
	return &LivePriceCache{rdb: rdb}
}

func livePriceKey(auctionID uuid.UUID) string {
	return "auction:live:" + auctionID.String()
}

// Set stores the latest snapshot for an auction
func (c *LivePriceCache) Set(ctx context.Context, snapshot LivePrice) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal live price: %w", err)
	}
	if err := c.rdb.Set(ctx, livePriceKey(snapshot.AuctionID), body, livePriceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set live price: %w", err)
	}
	return nil
}

// Get returns the cached snapshot, or nil on a miss
func (c *LivePriceCache) Get(ctx context.Context, auctionID uuid.UUID) (*LivePrice, error) {
	body, err := c.rdb.Get(ctx, livePriceKey(auctionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get live price: %w", err)
	}
	var snapshot LivePrice
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live price: %w", err)
	}
	return &snapshot, nil
}

// Invalidate drops the snapshot after a terminal transition
func (c *LivePriceCache) Invalidate(ctx context.Context, auctionID uuid.UUID) error {
	if err := c.rdb.Del(ctx, livePriceKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate live price: %w", err)
	}
	return nil
}
