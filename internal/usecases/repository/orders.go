package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sand/forex-wallet-app/backend/internal/entities"
	"github.com/sand/forex-wallet-app/backend/pkg/database"
)

// OrdersRepository persists forex orders and their execution records.
type OrdersRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

// NewOrdersRepository creates a new orders repository.
func NewOrdersRepository(logger *slog.Logger, pg *database.Postgres) *OrdersRepository {
	return &OrdersRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

// WithinTransaction runs fn inside a single database transaction.
func (r *OrdersRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.transactor.WithinTransaction(ctx, fn)
}

// InsertOrder persists a new order. Status and retry counters keep their
// zero-value defaults from the schema.
func (r *OrdersRepository) InsertOrder(ctx context.Context, order *entities.ForexOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = entities.OrderStatusPending

	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO forex_orders (id, user_id, user_email, type, base_currency, target_currency, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING status, retry_attempts, created_at, updated_at
	`, order.ID, order.UserID, order.UserEmail, order.Type, order.BaseCurrency, order.TargetCurrency, order.Amount).
		Scan(&order.Status, &order.RetryAttempts, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// FindOrderByID retrieves one order. Returns nil when it does not exist.
func (r *OrdersRepository) FindOrderByID(ctx context.Context, id uuid.UUID) (*entities.ForexOrder, error) {
	query := `SELECT id, user_id, user_email, type, base_currency, target_currency, amount,
                     status, retry_attempts, error_code, error_message, created_at, updated_at
                FROM forex_orders
               WHERE id = $1`

	var order entities.ForexOrder
	err := r.db(ctx).QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.UserEmail,
		&order.Type,
		&order.BaseCurrency,
		&order.TargetCurrency,
		&order.Amount,
		&order.Status,
		&order.RetryAttempts,
		&order.ErrorCode,
		&order.ErrorMessage,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order by id: %w", err)
	}

	return &order, nil
}

// FindUserOrders lists a user's orders, newest first.
func (r *OrdersRepository) FindUserOrders(ctx context.Context, userID int64, limit, offset uint64) ([]entities.ForexOrder, error) {
	builder := sq.Select("id", "user_id", "user_email", "type", "base_currency", "target_currency",
		"amount", "status", "retry_attempts", "error_code", "error_message", "created_at", "updated_at").
		From("forex_orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if limit > 0 {
		builder = builder.Limit(limit).Offset(offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user orders query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.ForexOrder])
	if err != nil {
		r.logger.Error("failed to collect user orders rows", "error", err)
		return nil, err
	}

	return orders, nil
}

// UpdateOrderStatusIfPending transitions an order out of PENDING. The
// WHERE clause keeps terminal orders untouched; the boolean reports
// whether this call performed the transition.
func (r *OrdersRepository) UpdateOrderStatusIfPending(ctx context.Context, id uuid.UUID, status entities.OrderStatus, errorCode, errorMessage string) (bool, error) {
	cmd, err := r.db(ctx).Exec(ctx, `
		UPDATE forex_orders
		   SET status = $1, error_code = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $4 AND status = 'PENDING'
	`, status, errorCode, errorMessage, id)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return cmd.RowsAffected() > 0, nil
}

// IncrementRetryAttempts bumps the attempt counter atomically and returns
// the new value. Only PENDING orders are counted: a redelivered job for
// an order that already finished gets -1 back and must be discarded, so
// the counter of a terminal order never moves again.
func (r *OrdersRepository) IncrementRetryAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db(ctx).QueryRow(ctx, `
		UPDATE forex_orders
		   SET retry_attempts = retry_attempts + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'PENDING'
		RETURNING retry_attempts
	`, id).Scan(&attempts)

	if errors.Is(err, pgx.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry attempts: %w", err)
	}

	return attempts, nil
}

// FindStalePendingOrders returns ids of orders still PENDING that have
// not been touched since the cutoff. The retry sweeper uses this to
// rescue orders whose retry job was lost.
func (r *OrdersRepository) FindStalePendingOrders(ctx context.Context, olderThan time.Duration, limit uint64) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := r.db(ctx).Query(ctx, `
		SELECT id FROM forex_orders
		 WHERE status = 'PENDING' AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2
	`, cutoff, limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stale pending orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale order id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// InsertForexTransaction creates the INITIATED execution record for an
// order. The unique constraint on order_id enforces one record per order.
func (r *OrdersRepository) InsertForexTransaction(ctx context.Context, ft *entities.ForexTransaction) error {
	if ft.ID == uuid.Nil {
		ft.ID = uuid.New()
	}
	ft.Status = entities.ForexTransactionInitiated

	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO forex_transactions (id, order_id, user_id, base_currency, target_currency, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING status, created_at, updated_at
	`, ft.ID, ft.OrderID, ft.UserID, ft.BaseCurrency, ft.TargetCurrency, ft.Amount).
		Scan(&ft.Status, &ft.CreatedAt, &ft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert forex transaction: %w", err)
	}

	return nil
}

// FindTransactionByOrderID retrieves the execution record of an order.
// Returns nil when none exists yet.
func (r *OrdersRepository) FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.ForexTransaction, error) {
	query := `SELECT id, order_id, user_id, base_currency, target_currency, amount,
                     exchange_rate, target_amount, status, error_code, error_message, created_at, updated_at
                FROM forex_transactions
               WHERE order_id = $1`

	var ft entities.ForexTransaction
	err := r.db(ctx).QueryRow(ctx, query, orderID).Scan(
		&ft.ID,
		&ft.OrderID,
		&ft.UserID,
		&ft.BaseCurrency,
		&ft.TargetCurrency,
		&ft.Amount,
		&ft.ExchangeRate,
		&ft.TargetAmount,
		&ft.Status,
		&ft.ErrorCode,
		&ft.ErrorMessage,
		&ft.CreatedAt,
		&ft.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query forex transaction by order id: %w", err)
	}

	return &ft, nil
}

// UpdateTransactionResult writes the attempt outcome onto the execution
// record. It refuses to overwrite a COMPLETED record so a redelivered job
// cannot clobber a successful result.
func (r *OrdersRepository) UpdateTransactionResult(ctx context.Context, ft *entities.ForexTransaction) (bool, error) {
	cmd, err := r.db(ctx).Exec(ctx, `
		UPDATE forex_transactions
		   SET status = $1, exchange_rate = $2, target_amount = $3,
		       error_code = $4, error_message = $5, updated_at = NOW()
		 WHERE id = $6 AND status <> 'COMPLETED'
	`, ft.Status, ft.ExchangeRate, ft.TargetAmount, ft.ErrorCode, ft.ErrorMessage, ft.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update forex transaction result: %w", err)
	}

	return cmd.RowsAffected() > 0, nil
}

// ResetTransactionForRetry flips a FAILED attempt record back to
// INITIATED before a re-execution. COMPLETED records are left alone.
func (r *OrdersRepository) ResetTransactionForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	cmd, err := r.db(ctx).Exec(ctx, `
		UPDATE forex_transactions
		   SET status = 'INITIATED', error_code = '', error_message = '', updated_at = NOW()
		 WHERE id = $1 AND status = 'FAILED'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to reset forex transaction: %w", err)
	}

	return cmd.RowsAffected() > 0, nil
}
