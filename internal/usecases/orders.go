package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/core/ports"
	"github.com/sand/forex-wallet-app/backend/internal/entities"
)

// OrdersRepository is the persistence contract of the order state machine.
type OrdersRepository interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	InsertOrder(ctx context.Context, order *entities.ForexOrder) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*entities.ForexOrder, error)
	FindUserOrders(ctx context.Context, userID int64, limit, offset uint64) ([]entities.ForexOrder, error)
	UpdateOrderStatusIfPending(ctx context.Context, id uuid.UUID, status entities.OrderStatus, errorCode, errorMessage string) (bool, error)
	IncrementRetryAttempts(ctx context.Context, id uuid.UUID) (int, error)
	FindStalePendingOrders(ctx context.Context, olderThan time.Duration, limit uint64) ([]uuid.UUID, error)
	InsertForexTransaction(ctx context.Context, ft *entities.ForexTransaction) error
	FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.ForexTransaction, error)
	UpdateTransactionResult(ctx context.Context, ft *entities.ForexTransaction) (bool, error)
	ResetTransactionForRetry(ctx context.Context, id uuid.UUID) (bool, error)
}

// CreateOrderInput carries a validated purchase request.
type CreateOrderInput struct {
	UserID         int64
	UserEmail      string
	Type           entities.OrderType
	BaseCurrency   string
	TargetCurrency string
	Amount         decimal.Decimal
}

// OrderService owns the forex order lifecycle. It is the only component
// that decides whether a failure is permanent or worth retrying.
type OrderService struct {
	logger  *slog.Logger
	repo    OrdersRepository
	wallets *WalletService

	rates    ports.RateService
	notifier ports.Notifier
	retry    ports.RetryProducer

	rateTimeout time.Duration
}

// NewOrderService creates a new order service.
func NewOrderService(
	logger *slog.Logger,
	repo OrdersRepository,
	wallets *WalletService,
	rates ports.RateService,
	notifier ports.Notifier,
	retry ports.RetryProducer,
	rateTimeout time.Duration,
) *OrderService {
	if rateTimeout <= 0 {
		rateTimeout = ports.DefaultRateTimeout
	}
	return &OrderService{
		logger:      logger,
		repo:        repo,
		wallets:     wallets,
		rates:       rates,
		notifier:    notifier,
		retry:       retry,
		rateTimeout: rateTimeout,
	}
}

// CreateOrder validates and persists a new PENDING order, then runs its
// first execution attempt. The returned order reflects the outcome of
// that attempt: COMPLETED, FAILED, or still PENDING with a retry queued.
func (os *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*entities.ForexOrder, error) {
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}

	order := &entities.ForexOrder{
		UserID:         input.UserID,
		UserEmail:      input.UserEmail,
		Type:           input.Type,
		BaseCurrency:   input.BaseCurrency,
		TargetCurrency: input.TargetCurrency,
		Amount:         input.Amount,
	}
	if err := os.repo.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	os.logger.Info("order created",
		"order_id", order.ID, "user_id", order.UserID,
		"type", order.Type, "pair", order.BaseCurrency+"/"+order.TargetCurrency,
		"amount", order.Amount.String())

	return os.ExecuteOrder(ctx, order.ID)
}

// ExecuteOrder runs one execution attempt for the order. It is safe to
// call any number of times: a terminal order is returned as-is, and a
// completed execution record is never re-transferred.
func (os *OrderService) ExecuteOrder(ctx context.Context, orderID uuid.UUID) (*entities.ForexOrder, error) {
	order, err := os.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fault.Newf(fault.CodeNotFound, "order %s not found", orderID)
	}
	if order.Status.Terminal() {
		return order, nil
	}

	ftx, err := os.repo.FindTransactionByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case ftx == nil:
		ftx = &entities.ForexTransaction{
			OrderID:        order.ID,
			UserID:         order.UserID,
			BaseCurrency:   order.BaseCurrency,
			TargetCurrency: order.TargetCurrency,
			Amount:         order.Amount,
		}
		if err = os.repo.InsertForexTransaction(ctx, ftx); err != nil {
			return nil, err
		}
	case ftx.Status == entities.ForexTransactionCompleted:
		// The transfer already happened but the order row never flipped,
		// e.g. a crash between the two bookkeeping transactions.
		return os.completeOrder(ctx, order, ftx)
	case ftx.Status == entities.ForexTransactionFailed:
		if _, err = os.repo.ResetTransactionForRetry(ctx, ftx.ID); err != nil {
			return nil, err
		}
		ftx.Status = entities.ForexTransactionInitiated
	}

	// Rate lookup and wallet transfer run outside any bookkeeping
	// transaction: no database lock is held across a network call.
	rateCtx, cancel := context.WithTimeout(ctx, os.rateTimeout)
	rate, err := os.rates.GetRate(rateCtx, order.BaseCurrency, order.TargetCurrency)
	cancel()
	if err != nil {
		return os.handleFailure(ctx, order, ftx, classifyRateError(err))
	}

	result, err := os.wallets.Convert(ctx, order.UserID, order.BaseCurrency, order.TargetCurrency, order.Amount, rate)
	if err != nil {
		return os.handleFailure(ctx, order, ftx, err)
	}

	ftx.ExchangeRate = decimal.NewNullDecimal(rate)
	ftx.TargetAmount = decimal.NewNullDecimal(result.TargetAmount)

	return os.completeOrder(ctx, order, ftx)
}

// FailOrderPermanently drives an order straight to FAILED, bypassing
// another execution attempt. The retry worker calls this on exhaustion.
func (os *OrderService) FailOrderPermanently(ctx context.Context, orderID uuid.UUID, errorCode, errorMessage string) (*entities.ForexOrder, error) {
	order, err := os.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fault.Newf(fault.CodeNotFound, "order %s not found", orderID)
	}
	if order.Status.Terminal() {
		return order, nil
	}

	ftx, err := os.repo.FindTransactionByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return os.failOrder(ctx, order, ftx, errorCode, errorMessage)
}

// IncrementRetryAttempts bumps the order's attempt counter, returning the
// new value, or -1 when the order no longer exists.
func (os *OrderService) IncrementRetryAttempts(ctx context.Context, orderID uuid.UUID) (int, error) {
	return os.repo.IncrementRetryAttempts(ctx, orderID)
}

// GetOrderTransaction returns the execution record of an order, or nil
// when none exists yet.
func (os *OrderService) GetOrderTransaction(ctx context.Context, orderID uuid.UUID) (*entities.ForexTransaction, error) {
	return os.repo.FindTransactionByOrderID(ctx, orderID)
}

// GetOrder returns one order by id.
func (os *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*entities.ForexOrder, error) {
	order, err := os.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fault.Newf(fault.CodeNotFound, "order %s not found", orderID)
	}
	return order, nil
}

// GetUserOrders lists a user's orders with pagination.
func (os *OrderService) GetUserOrders(ctx context.Context, userID int64, limit, offset uint64) ([]entities.ForexOrder, error) {
	return os.repo.FindUserOrders(ctx, userID, limit, offset)
}

// SweepStaleOrders re-enqueues PENDING orders untouched for longer than
// olderThan. It rescues orders whose retry job was lost, e.g. when the
// process died between marking an attempt failed and enqueueing.
func (os *OrderService) SweepStaleOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := os.repo.FindStalePendingOrders(ctx, olderThan, 100)
	if err != nil {
		return 0, err
	}

	var swept int
	for _, id := range ids {
		order, err := os.repo.FindOrderByID(ctx, id)
		if err != nil || order == nil || order.Status.Terminal() {
			continue
		}

		// A job already in the queue will run the order; re-enqueueing
		// it here would burn a second attempt on the same failure.
		pending, err := os.retry.Pending(ctx, order.ID)
		if err != nil {
			os.logger.Error("failed to check scheduled retries", "order_id", order.ID, "error", err)
			continue
		}
		if pending {
			continue
		}

		job := ports.RetryJob{OrderID: order.ID, Attempt: order.RetryAttempts, ErrorCode: string(fault.CodeAborted), ErrorMessage: "order stalled in PENDING"}
		if ftx, err := os.repo.FindTransactionByOrderID(ctx, order.ID); err == nil && ftx != nil {
			job.TransactionID = ftx.ID
		}

		if err := os.retry.Enqueue(ctx, job); err != nil {
			os.logger.Error("failed to re-enqueue stale order", "order_id", order.ID, "error", err)
			continue
		}
		swept++
	}

	return swept, nil
}

// completeOrder records the successful outcome on the execution record
// and the order within one transaction, then notifies the user. The
// status writes are guarded so a redelivered job cannot repeat them.
func (os *OrderService) completeOrder(ctx context.Context, order *entities.ForexOrder, ftx *entities.ForexTransaction) (*entities.ForexOrder, error) {
	ftx.Status = entities.ForexTransactionCompleted
	ftx.ErrorCode = ""
	ftx.ErrorMessage = ""

	var flipped bool
	err := os.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := os.repo.UpdateTransactionResult(ctx, ftx); err != nil {
			return err
		}
		var err error
		flipped, err = os.repo.UpdateOrderStatusIfPending(ctx, order.ID, entities.OrderStatusCompleted, "", "")
		return err
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}

	order.Status = entities.OrderStatusCompleted
	order.ErrorCode = ""
	order.ErrorMessage = ""

	if flipped {
		os.logger.Info("order completed",
			"order_id", order.ID,
			"rate", ftx.ExchangeRate.Decimal.String(),
			"target_amount", ftx.TargetAmount.Decimal.String())
		os.notify(ctx, order.UserEmail,
			"Your currency order is complete",
			fmt.Sprintf("Order %s: converted %s %s to %s %s at rate %s.",
				order.ID, order.Amount, order.BaseCurrency,
				ftx.TargetAmount.Decimal, order.TargetCurrency, ftx.ExchangeRate.Decimal))
	}

	return order, nil
}

// handleFailure is the single classification point: a permanent error
// finalizes the order, a transient one marks only this attempt failed
// and hands the order to the retry queue.
func (os *OrderService) handleFailure(ctx context.Context, order *entities.ForexOrder, ftx *entities.ForexTransaction, cause error) (*entities.ForexOrder, error) {
	code := string(fault.CodeOf(cause))
	message := fault.Message(cause)

	if !fault.IsTransient(cause) {
		os.logger.Warn("order failed permanently",
			"order_id", order.ID, "code", code, "error", message)
		return os.failOrder(ctx, order, ftx, code, message)
	}

	ftx.Status = entities.ForexTransactionFailed
	ftx.ErrorCode = code
	ftx.ErrorMessage = message
	if _, err := os.repo.UpdateTransactionResult(ctx, ftx); err != nil {
		return nil, err
	}

	job := ports.RetryJob{
		OrderID:       order.ID,
		TransactionID: ftx.ID,
		ErrorCode:     code,
		ErrorMessage:  message,
		Attempt:       order.RetryAttempts,
	}
	if err := os.retry.Enqueue(ctx, job); err != nil {
		// The order stays PENDING and the sweeper will pick it up later.
		os.logger.Error("failed to enqueue retry", "order_id", order.ID, "error", err)
	} else {
		os.logger.Info("order attempt failed, retry enqueued",
			"order_id", order.ID, "attempt", order.RetryAttempts, "code", code, "error", message)
	}

	return order, nil
}

// failOrder writes the terminal failure on both records in one
// transaction and sends the failure notification exactly once.
func (os *OrderService) failOrder(ctx context.Context, order *entities.ForexOrder, ftx *entities.ForexTransaction, errorCode, errorMessage string) (*entities.ForexOrder, error) {
	var flipped bool
	err := os.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if ftx != nil {
			ftx.Status = entities.ForexTransactionFailed
			ftx.ErrorCode = errorCode
			ftx.ErrorMessage = errorMessage
			if _, err := os.repo.UpdateTransactionResult(ctx, ftx); err != nil {
				return err
			}
		}
		var err error
		flipped, err = os.repo.UpdateOrderStatusIfPending(ctx, order.ID, entities.OrderStatusFailed, errorCode, errorMessage)
		return err
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}

	order.Status = entities.OrderStatusFailed
	order.ErrorCode = errorCode
	order.ErrorMessage = errorMessage

	if flipped {
		os.notify(ctx, order.UserEmail,
			"Your currency order failed",
			fmt.Sprintf("Order %s (%s %s -> %s) failed: %s.",
				order.ID, order.Amount, order.BaseCurrency, order.TargetCurrency, errorMessage))
	}

	return order, nil
}

// notify delivers a best-effort notification. Failures are logged and
// swallowed: the order outcome never depends on the mail pipeline.
func (os *OrderService) notify(ctx context.Context, toEmail, subject, body string) {
	if err := os.notifier.Notify(ctx, toEmail, subject, body); err != nil {
		os.logger.Error("failed to send notification", "to", toEmail, "subject", subject, "error", err)
	}
}

func validateOrderInput(input CreateOrderInput) error {
	if input.Type != entities.OrderTypeBuy && input.Type != entities.OrderTypeSell {
		return fault.Newf(fault.CodeInvalidArgument, "unknown order type %q", input.Type)
	}
	if len(input.BaseCurrency) != 3 || len(input.TargetCurrency) != 3 {
		return fault.New(fault.CodeInvalidArgument, "currencies must be ISO-4217 codes")
	}
	if input.BaseCurrency == input.TargetCurrency {
		return fault.New(fault.CodeInvalidArgument, "base and target currency must differ")
	}
	if !input.Amount.IsPositive() {
		return fault.Newf(fault.CodeInvalidArgument, "amount must be positive, got %s", input.Amount)
	}
	if input.UserEmail == "" {
		return fault.New(fault.CodeInvalidArgument, "user email is required")
	}
	return nil
}

// classifyRateError maps rate lookup failures into the taxonomy. A
// lookup that timed out or errored without classification is treated as
// transient downstream unavailability.
func classifyRateError(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.CodeDeadlineExceeded, "rate lookup timed out", err)
	}
	return fault.Wrap(fault.CodeUnavailable, "rate lookup failed", err)
}
