package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/core/ports"
	"github.com/sand/forex-wallet-app/backend/internal/entities"
)

// Pause after a failed dequeue so a dead redis does not produce a
// hot error-logging loop.
const dequeueErrorDelay = time.Second

// OrderExecutor is the slice of the order service the retry worker needs.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, orderID uuid.UUID) (*entities.ForexOrder, error)
	FailOrderPermanently(ctx context.Context, orderID uuid.UUID, errorCode, errorMessage string) (*entities.ForexOrder, error)
	IncrementRetryAttempts(ctx context.Context, orderID uuid.UUID) (int, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*entities.ForexOrder, error)
	GetOrderTransaction(ctx context.Context, orderID uuid.UUID) (*entities.ForexTransaction, error)
}

// RetryConsumer is the queue side consumed by the worker.
type RetryConsumer interface {
	Dequeue(ctx context.Context) (*ports.RetryJob, error)
}

// RetryWorker re-executes transiently failed orders from the retry queue
// with a bounded pool of handlers, so a recovery storm cannot overwhelm
// downstream services.
type RetryWorker struct {
	logger *slog.Logger
	queue  RetryConsumer
	orders OrderExecutor

	maxAttempts int
	concurrency int
}

// NewRetryWorker creates a retry worker pool.
func NewRetryWorker(logger *slog.Logger, queue RetryConsumer, orders OrderExecutor, maxAttempts, concurrency int) *RetryWorker {
	if maxAttempts <= 0 {
		maxAttempts = ports.DefaultMaxRetries
	}
	if concurrency <= 0 {
		concurrency = ports.DefaultWorkerPoolSize
	}
	return &RetryWorker{
		logger:      logger,
		queue:       queue,
		orders:      orders,
		maxAttempts: maxAttempts,
		concurrency: concurrency,
	}
}

// Start runs the worker pool until the context is cancelled and all
// in-flight jobs have finished.
func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("retry worker started",
		"concurrency", w.concurrency, "max_attempts", w.maxAttempts)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("retry worker stopped")
}

func (w *RetryWorker) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue retry job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorDelay):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.Handle(ctx, *job)
	}
}

// Handle processes one retry job: load the order and its execution
// record, count the attempt, finalize the order when attempts are
// exhausted, otherwise re-run the state machine. Jobs for missing or
// finished orders are discarded, so redelivery never moves the counter
// of a terminal order.
func (w *RetryWorker) Handle(ctx context.Context, job ports.RetryJob) {
	order, err := w.orders.GetOrder(ctx, job.OrderID)
	if err != nil {
		if fault.CodeOf(err) == fault.CodeNotFound {
			w.logger.Warn("discarding retry job for missing order", "order_id", job.OrderID)
			return
		}
		w.logger.Error("failed to load order for retry", "order_id", job.OrderID, "error", err)
		return
	}
	if order.Status.Terminal() {
		return
	}

	ftx, err := w.orders.GetOrderTransaction(ctx, job.OrderID)
	if err != nil {
		w.logger.Error("failed to load execution record for retry", "order_id", job.OrderID, "error", err)
		return
	}
	if ftx == nil {
		// Every retried order was executed at least once, so the record
		// must exist. A job without one is an anomaly, not work.
		w.logger.Warn("discarding retry job without execution record", "order_id", job.OrderID)
		return
	}

	attempts, err := w.orders.IncrementRetryAttempts(ctx, job.OrderID)
	if err != nil {
		w.logger.Error("failed to count retry attempt", "order_id", job.OrderID, "error", err)
		return
	}
	if attempts < 0 {
		// The order finished between the load above and the counted
		// attempt. Nothing left to do.
		w.logger.Warn("discarding retry job for finished order", "order_id", job.OrderID)
		return
	}

	if attempts >= w.maxAttempts {
		w.logger.Warn("order retries exhausted",
			"order_id", job.OrderID, "attempts", attempts, "code", job.ErrorCode)
		if _, err = w.orders.FailOrderPermanently(ctx, job.OrderID, job.ErrorCode, job.ErrorMessage); err != nil {
			w.logger.Error("failed to finalize exhausted order", "order_id", job.OrderID, "error", err)
		}
		return
	}

	w.logger.Info("re-executing order", "order_id", job.OrderID, "attempt", attempts)
	if _, err = w.orders.ExecuteOrder(ctx, job.OrderID); err != nil {
		w.logger.Error("retry execution failed", "order_id", job.OrderID, "error", err)
	}
}
