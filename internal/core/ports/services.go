package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateService resolves the current exchange rate for a currency pair.
// Implementations may fail with fault codes NOT_FOUND (unknown pair),
// UNAVAILABLE or DEADLINE_EXCEEDED (downstream trouble, retryable).
type RateService interface {
	GetRate(ctx context.Context, baseCurrency, targetCurrency string) (decimal.Decimal, error)
}

// Notifier delivers user-facing messages. Delivery is best-effort:
// callers log and swallow failures, an order outcome never depends on it.
type Notifier interface {
	Notify(ctx context.Context, toEmail, subject, body string) error
}

// RetryJob is the payload carried on the retry queue for a failed order
// execution attempt.
type RetryJob struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ErrorCode     string    `json:"error_code"`
	ErrorMessage  string    `json:"error_message"`
	Attempt       int       `json:"attempt"`
}

// RetryProducer places a retry job on the durable work queue. Scheduling
// and backoff timing belong to the queue, attempt counting to the caller.
// Pending reports whether an undelivered job for the order is already in
// the queue, so a sweeper does not schedule a duplicate.
type RetryProducer interface {
	Enqueue(ctx context.Context, job RetryJob) error
	Pending(ctx context.Context, orderID uuid.UUID) (bool, error)
}
