package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/entities"
)

// WalletsRepository is the persistence contract of the transfer engine.
type WalletsRepository interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	FindWalletForUpdate(ctx context.Context, userID int64, currency string) (*entities.Wallet, error)
	FindWalletByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	FindUserWallets(ctx context.Context, userID int64) ([]entities.Wallet, error)
	InsertWallet(ctx context.Context, userID int64, currency string) (*entities.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error
	InsertWalletTransaction(ctx context.Context, wt *entities.WalletTransaction) error
	FindWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset uint64) ([]entities.WalletTransaction, error)
}

// AdjustDirection selects between funding and withdrawing in Adjust.
type AdjustDirection string

const (
	AdjustFund     AdjustDirection = "FUND"
	AdjustWithdraw AdjustDirection = "WITHDRAW"
)

// ConversionResult reports the wallets touched by a conversion and the
// credited amount.
type ConversionResult struct {
	SourceWallet entities.Wallet
	TargetWallet entities.Wallet
	TargetAmount decimal.Decimal
}

// WalletService is the transfer engine: every balance change in the
// system goes through it, paired with a ledger row in the same database
// transaction.
type WalletService struct {
	logger *slog.Logger
	repo   WalletsRepository
}

// NewWalletService creates a new wallet service.
func NewWalletService(logger *slog.Logger, repo WalletsRepository) *WalletService {
	return &WalletService{logger: logger, repo: repo}
}

// Convert debits amount from the user's source-currency wallet and
// credits amount*rate to the target-currency wallet, creating the target
// wallet when absent. Both balance changes and both ledger rows commit
// atomically; a failure anywhere leaves every wallet unchanged.
func (ws *WalletService) Convert(ctx context.Context, userID int64, fromCurrency, toCurrency string, amount, rate decimal.Decimal) (ConversionResult, error) {
	if !amount.IsPositive() {
		return ConversionResult{}, fault.Newf(fault.CodeInvalidArgument, "amount must be positive, got %s", amount)
	}
	if !rate.IsPositive() {
		return ConversionResult{}, fault.Newf(fault.CodeInvalidArgument, "exchange rate must be positive, got %s", rate)
	}
	if fromCurrency == toCurrency {
		return ConversionResult{}, fault.New(fault.CodeInvalidArgument, "source and target currency must differ")
	}

	targetAmount := amount.Mul(rate)
	var result ConversionResult

	err := ws.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		source, err := ws.repo.FindWalletForUpdate(ctx, userID, fromCurrency)
		if err != nil {
			return err
		}
		if source == nil {
			return fault.Newf(fault.CodeNotFound, "no %s wallet for user %d", fromCurrency, userID)
		}
		if source.Balance.LessThan(amount) {
			return fault.Newf(fault.CodeFailedPrecondition,
				"insufficient %s balance: have %s, need %s", fromCurrency, source.Balance, amount)
		}

		target, err := ws.repo.FindWalletForUpdate(ctx, userID, toCurrency)
		if err != nil {
			return err
		}
		if target == nil {
			if target, err = ws.repo.InsertWallet(ctx, userID, toCurrency); err != nil {
				return err
			}
		}

		source.Balance = source.Balance.Sub(amount)
		if err = ws.repo.UpdateWalletBalance(ctx, source.ID, source.Balance); err != nil {
			return err
		}
		if err = ws.repo.InsertWalletTransaction(ctx, &entities.WalletTransaction{
			WalletID:    source.ID,
			Amount:      amount,
			Type:        entities.WalletTransactionDebit,
			Currency:    fromCurrency,
			Description: fmt.Sprintf("conversion %s -> %s at rate %s", fromCurrency, toCurrency, rate),
		}); err != nil {
			return err
		}

		target.Balance = target.Balance.Add(targetAmount)
		if err = ws.repo.UpdateWalletBalance(ctx, target.ID, target.Balance); err != nil {
			return err
		}
		if err = ws.repo.InsertWalletTransaction(ctx, &entities.WalletTransaction{
			WalletID:    target.ID,
			Amount:      targetAmount,
			Type:        entities.WalletTransactionCredit,
			Currency:    toCurrency,
			Description: fmt.Sprintf("conversion %s -> %s at rate %s", fromCurrency, toCurrency, rate),
		}); err != nil {
			return err
		}

		result = ConversionResult{SourceWallet: *source, TargetWallet: *target, TargetAmount: targetAmount}
		return nil
	})
	if err != nil {
		return ConversionResult{}, classifyStorageError(err)
	}

	ws.logger.Info("conversion completed",
		"user_id", userID,
		"from", fromCurrency, "to", toCurrency,
		"amount", amount.String(), "rate", rate.String(), "target_amount", targetAmount.String())

	return result, nil
}

// Adjust funds or withdraws a single wallet. Funding creates the wallet
// lazily; withdrawing requires it to exist with sufficient balance.
func (ws *WalletService) Adjust(ctx context.Context, userID int64, currency string, amount decimal.Decimal, direction AdjustDirection, description string) (entities.Wallet, error) {
	if !amount.IsPositive() {
		return entities.Wallet{}, fault.Newf(fault.CodeInvalidArgument, "amount must be positive, got %s", amount)
	}

	var adjusted entities.Wallet

	err := ws.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		wallet, err := ws.repo.FindWalletForUpdate(ctx, userID, currency)
		if err != nil {
			return err
		}

		switch direction {
		case AdjustFund:
			if wallet == nil {
				if wallet, err = ws.repo.InsertWallet(ctx, userID, currency); err != nil {
					return err
				}
			}
			wallet.Balance = wallet.Balance.Add(amount)
		case AdjustWithdraw:
			if wallet == nil {
				return fault.Newf(fault.CodeNotFound, "no %s wallet for user %d", currency, userID)
			}
			if wallet.Balance.LessThan(amount) {
				return fault.Newf(fault.CodeFailedPrecondition,
					"insufficient %s balance: have %s, need %s", currency, wallet.Balance, amount)
			}
			wallet.Balance = wallet.Balance.Sub(amount)
		default:
			return fault.Newf(fault.CodeInvalidArgument, "unknown adjust direction %q", direction)
		}

		if err = ws.repo.UpdateWalletBalance(ctx, wallet.ID, wallet.Balance); err != nil {
			return err
		}
		if err = ws.repo.InsertWalletTransaction(ctx, &entities.WalletTransaction{
			WalletID:    wallet.ID,
			Amount:      amount,
			Type:        adjustTransactionType(direction),
			Currency:    currency,
			Description: description,
		}); err != nil {
			return err
		}

		adjusted = *wallet
		return nil
	})
	if err != nil {
		return entities.Wallet{}, classifyStorageError(err)
	}

	ws.logger.Info("wallet adjusted",
		"user_id", userID, "currency", currency,
		"direction", direction, "amount", amount.String(), "balance", adjusted.Balance.String())

	return adjusted, nil
}

// GetUserWallets returns all wallets of a user.
func (ws *WalletService) GetUserWallets(ctx context.Context, userID int64) ([]entities.Wallet, error) {
	return ws.repo.FindUserWallets(ctx, userID)
}

// GetWalletTransactions lists the ledger entries of a wallet.
func (ws *WalletService) GetWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset uint64) ([]entities.WalletTransaction, error) {
	wallet, err := ws.repo.FindWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, fault.Newf(fault.CodeNotFound, "wallet %s not found", walletID)
	}

	return ws.repo.FindWalletTransactions(ctx, walletID, limit, offset)
}

func adjustTransactionType(direction AdjustDirection) entities.WalletTransactionType {
	if direction == AdjustFund {
		return entities.WalletTransactionFund
	}
	return entities.WalletTransactionWithdraw
}

// classifyStorageError keeps already-classified errors as they are and
// marks everything else (commit failures, broken connections) Aborted so
// the caller treats it as retryable.
func classifyStorageError(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Wrap(fault.CodeAborted, "storage transaction failed", err)
}
