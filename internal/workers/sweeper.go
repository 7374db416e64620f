package workers

import (
	"context"
	"log/slog"
	"time"
)

// SweepService re-enqueues orders stuck in PENDING.
type SweepService interface {
	SweepStaleOrders(ctx context.Context, olderThan time.Duration) (int, error)
}

// OrderSweeper worker periodically rescues PENDING orders whose retry job
// was lost, for example when the process crashed between the failed
// attempt and the enqueue.
type OrderSweeper struct {
	logger       *slog.Logger
	orderService SweepService

	// Duration after which a PENDING order counts as stalled
	staleAfter time.Duration

	// How often to run the sweep
	sweepInterval time.Duration
}

// NewOrderSweeper creates a new stale-order sweeper worker.
func NewOrderSweeper(
	logger *slog.Logger,
	orderService SweepService,
	staleAfter time.Duration,
	sweepInterval time.Duration,
) *OrderSweeper {
	return &OrderSweeper{
		logger:        logger,
		orderService:  orderService,
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
	}
}

// Start begins the periodic sweep of stalled orders
func (osw *OrderSweeper) Start(ctx context.Context) {
	osw.logger.Info("Starting order sweeper worker",
		"stale_after", osw.staleAfter.String(),
		"sweep_interval", osw.sweepInterval.String())

	// Run an initial sweep immediately
	if err := osw.sweepStalledOrders(ctx); err != nil {
		osw.logger.Error("Initial order sweep failed", "error", err)
	}

	// Start the ticker for periodic sweeps
	ticker := time.NewTicker(osw.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			osw.logger.Info("Order sweeper worker stopped")
			return
		case <-ticker.C:
			if err := osw.sweepStalledOrders(ctx); err != nil {
				osw.logger.Error("Order sweep failed", "error", err)
			}
		}
	}
}

// sweepStalledOrders performs the actual sweep
func (osw *OrderSweeper) sweepStalledOrders(ctx context.Context) error {
	osw.logger.Debug("Starting sweep of stalled orders", "older_than", osw.staleAfter.String())

	count, err := osw.orderService.SweepStaleOrders(ctx, osw.staleAfter)
	if err != nil {
		return err
	}

	if count > 0 {
		osw.logger.Info("Re-enqueued stalled orders", "count", count, "older_than", osw.staleAfter.String())
	} else {
		osw.logger.Debug("No stalled orders to re-enqueue")
	}

	return nil
}
