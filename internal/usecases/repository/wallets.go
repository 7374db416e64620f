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
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/entities"
	"github.com/sand/forex-wallet-app/backend/pkg/database"
)

// WalletsRepository persists wallets and their append-only transaction log.
type WalletsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

// NewWalletsRepository creates a new wallet repository.
func NewWalletsRepository(logger *slog.Logger, pg *database.Postgres) *WalletsRepository {
	return &WalletsRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// WithinTransaction runs fn inside a single database transaction. Every
// repository call made with the inner context joins that transaction.
func (r *WalletsRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.transactor.WithinTransaction(ctx, fn)
}

// FindWalletForUpdate loads the wallet for a (user, currency) pair and
// takes a row lock on it. Returns nil when no such wallet exists.
// Must be called inside a transaction for the lock to mean anything.
func (r *WalletsRepository) FindWalletForUpdate(ctx context.Context, userID int64, currency string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, currency, balance, created_at, updated_at
                FROM wallets
               WHERE user_id = $1 AND currency = $2
                 FOR UPDATE`

	var wallet entities.Wallet
	err := r.db(ctx).QueryRow(ctx, query, userID, currency).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.Currency,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet for update: %w", err)
	}

	return &wallet, nil
}

// FindWalletByID retrieves a wallet by its id.
func (r *WalletsRepository) FindWalletByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	query := `SELECT id, user_id, currency, balance, created_at, updated_at
                FROM wallets
               WHERE id = $1`

	var wallet entities.Wallet
	err := r.db(ctx).QueryRow(ctx, query, id).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.Currency,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet by id: %w", err)
	}

	return &wallet, nil
}

// FindUserWallets retrieves all wallets owned by a user.
func (r *WalletsRepository) FindUserWallets(ctx context.Context, userID int64) ([]entities.Wallet, error) {
	query := `SELECT id, user_id, currency, balance, created_at, updated_at
                FROM wallets
               WHERE user_id = $1
               ORDER BY currency`

	rows, err := r.db(ctx).Query(ctx, query, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user wallets: %w", err)
	}

	wallets, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Wallet])
	if err != nil {
		r.logger.Error("failed to collect user wallets rows", "error", err)
		return nil, err
	}

	return wallets, nil
}

// InsertWallet creates a zero-balance wallet for the (user, currency)
// pair. The unique constraint rejects a second wallet for the same pair.
func (r *WalletsRepository) InsertWallet(ctx context.Context, userID int64, currency string) (*entities.Wallet, error) {
	wallet := &entities.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: currency,
		Balance:  decimal.Zero,
	}

	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, currency, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, wallet.ID, wallet.UserID, wallet.Currency, wallet.Balance).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}

	return wallet, nil
}

// UpdateWalletBalance writes the new balance for a wallet row.
func (r *WalletsRepository) UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error {
	_, err := r.db(ctx).Exec(ctx,
		"UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2",
		balance, walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return nil
}

// InsertWalletTransaction appends one immutable ledger entry.
func (r *WalletsRepository) InsertWalletTransaction(ctx context.Context, wt *entities.WalletTransaction) error {
	if wt.ID == uuid.Nil {
		wt.ID = uuid.New()
	}
	if wt.CreatedAt.IsZero() {
		wt.CreatedAt = time.Now().UTC()
	}

	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, amount, type, currency, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, wt.ID, wt.WalletID, wt.Amount, wt.Type, wt.Currency, wt.Description, wt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}

	return nil
}

// FindWalletTransactions lists ledger entries for a wallet, newest first.
func (r *WalletsRepository) FindWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset uint64) ([]entities.WalletTransaction, error) {
	builder := sq.Select("id", "wallet_id", "amount", "type", "currency", "description", "created_at").
		From("wallet_transactions").
		Where(sq.Eq{"wallet_id": walletID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if limit > 0 {
		builder = builder.Limit(limit).Offset(offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet transactions query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet transactions: %w", err)
	}

	transactions, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.WalletTransaction])
	if err != nil {
		r.logger.Error("failed to collect wallet transactions rows", "error", err)
		return nil, err
	}

	return transactions, nil
}
