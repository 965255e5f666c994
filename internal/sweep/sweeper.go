package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/dkovalev/molotok/internal/domain/auction"
)

// DefaultInterval matches the expiry resolution the engine promises:
// auctions close within a minute of their end_time unless a bid or an
// admin closes them first.
const DefaultInterval = time.Minute

// Sweeper periodically closes expired auctions. It is safe to run next to
// live bidding and next to other sweeper instances: every close goes
// through the row lock and the status compare-and-set.
type Sweeper struct {
	service  *auction.Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a new expiry sweeper
func NewSweeper(service *auction.Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the sweep loop and blocks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	closed, err := s.service.SweepExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("Expiry sweep failed", "error", err)
		return
	}
	if closed > 0 {
		s.logger.Info("Closed expired auctions", "count", closed)
	}
}
