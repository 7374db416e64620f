package usecases

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/entities"
)

// memWalletsRepo is an in-memory WalletsRepository with transaction
// rollback semantics: mutations made inside WithinTransaction are
// discarded when the callback fails.
type memWalletsRepo struct {
	wallets      map[uuid.UUID]*entities.Wallet
	transactions []entities.WalletTransaction

	// beforeInsertTransaction simulates storage failures mid-transfer.
	beforeInsertTransaction func(wt *entities.WalletTransaction) error
}

func newMemWalletsRepo() *memWalletsRepo {
	return &memWalletsRepo{wallets: make(map[uuid.UUID]*entities.Wallet)}
}

func (m *memWalletsRepo) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshotWallets := make(map[uuid.UUID]*entities.Wallet, len(m.wallets))
	for id, w := range m.wallets {
		clone := *w
		snapshotWallets[id] = &clone
	}
	snapshotTransactions := append([]entities.WalletTransaction(nil), m.transactions...)

	if err := fn(ctx); err != nil {
		m.wallets = snapshotWallets
		m.transactions = snapshotTransactions
		return err
	}
	return nil
}

func (m *memWalletsRepo) FindWalletForUpdate(_ context.Context, userID int64, currency string) (*entities.Wallet, error) {
	for _, w := range m.wallets {
		if w.UserID == userID && w.Currency == currency {
			clone := *w
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memWalletsRepo) FindWalletByID(_ context.Context, id uuid.UUID) (*entities.Wallet, error) {
	w, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	clone := *w
	return &clone, nil
}

func (m *memWalletsRepo) FindUserWallets(_ context.Context, userID int64) ([]entities.Wallet, error) {
	var out []entities.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memWalletsRepo) InsertWallet(_ context.Context, userID int64, currency string) (*entities.Wallet, error) {
	for _, w := range m.wallets {
		if w.UserID == userID && w.Currency == currency {
			return nil, fault.Newf(fault.CodeInvalidArgument, "wallet already exists for user %d currency %s", userID, currency)
		}
	}
	wallet := &entities.Wallet{ID: uuid.New(), UserID: userID, Currency: currency, Balance: decimal.Zero}
	m.wallets[wallet.ID] = wallet
	clone := *wallet
	return &clone, nil
}

func (m *memWalletsRepo) UpdateWalletBalance(_ context.Context, walletID uuid.UUID, balance decimal.Decimal) error {
	w, ok := m.wallets[walletID]
	if !ok {
		return fault.Newf(fault.CodeNotFound, "wallet %s not found", walletID)
	}
	w.Balance = balance
	return nil
}

func (m *memWalletsRepo) InsertWalletTransaction(_ context.Context, wt *entities.WalletTransaction) error {
	if m.beforeInsertTransaction != nil {
		if err := m.beforeInsertTransaction(wt); err != nil {
			return err
		}
	}
	if wt.ID == uuid.Nil {
		wt.ID = uuid.New()
	}
	m.transactions = append(m.transactions, *wt)
	return nil
}

func (m *memWalletsRepo) FindWalletTransactions(_ context.Context, walletID uuid.UUID, limit, offset uint64) ([]entities.WalletTransaction, error) {
	var out []entities.WalletTransaction
	for _, wt := range m.transactions {
		if wt.WalletID == walletID {
			out = append(out, wt)
		}
	}
	return out, nil
}

// seedWallet installs a wallet with the given balance.
func (m *memWalletsRepo) seedWallet(t *testing.T, userID int64, currency, balance string) uuid.UUID {
	t.Helper()
	amount, err := decimal.NewFromString(balance)
	require.NoError(t, err)
	wallet := &entities.Wallet{ID: uuid.New(), UserID: userID, Currency: currency, Balance: amount}
	m.wallets[wallet.ID] = wallet
	return wallet.ID
}

// ledgerSum reconstructs a wallet balance from its signed ledger entries.
func (m *memWalletsRepo) ledgerSum(walletID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, wt := range m.transactions {
		if wt.WalletID != walletID {
			continue
		}
		if wt.Type.Signed() > 0 {
			sum = sum.Add(wt.Amount)
		} else {
			sum = sum.Sub(wt.Amount)
		}
	}
	return sum
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestConvertDebitsSourceAndCreditsTarget(t *testing.T) {
	repo := newMemWalletsRepo()
	sourceID := repo.seedWallet(t, 7, "USD", "1000.00")
	ws := NewWalletService(testLogger(), repo)

	result, err := ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "100.00"), mustDecimal(t, "1.10"))
	require.NoError(t, err)

	require.True(t, result.TargetAmount.Equal(mustDecimal(t, "110.00")),
		"target amount = %s", result.TargetAmount)
	require.True(t, result.SourceWallet.Balance.Equal(mustDecimal(t, "900.00")))
	require.True(t, result.TargetWallet.Balance.Equal(mustDecimal(t, "110.00")))
	require.Equal(t, "EUR", result.TargetWallet.Currency)

	source, err := repo.FindWalletByID(context.Background(), sourceID)
	require.NoError(t, err)
	require.True(t, source.Balance.Equal(mustDecimal(t, "900.00")))

	require.Len(t, repo.transactions, 2)
	require.Equal(t, entities.WalletTransactionDebit, repo.transactions[0].Type)
	require.True(t, repo.transactions[0].Amount.Equal(mustDecimal(t, "100.00")))
	require.Equal(t, "USD", repo.transactions[0].Currency)
	require.Equal(t, entities.WalletTransactionCredit, repo.transactions[1].Type)
	require.True(t, repo.transactions[1].Amount.Equal(mustDecimal(t, "110.00")))
	require.Equal(t, "EUR", repo.transactions[1].Currency)
}

func TestConvertInsufficientBalanceFailsFast(t *testing.T) {
	repo := newMemWalletsRepo()
	sourceID := repo.seedWallet(t, 7, "USD", "50.00")
	ws := NewWalletService(testLogger(), repo)

	_, err := ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "100.00"), mustDecimal(t, "1.10"))
	require.Error(t, err)
	require.Equal(t, fault.CodeFailedPrecondition, fault.CodeOf(err))

	// Nothing was written.
	source, err := repo.FindWalletByID(context.Background(), sourceID)
	require.NoError(t, err)
	require.True(t, source.Balance.Equal(mustDecimal(t, "50.00")))
	require.Empty(t, repo.transactions)
	require.Len(t, repo.wallets, 1, "no target wallet was created")
}

func TestConvertMissingSourceWallet(t *testing.T) {
	repo := newMemWalletsRepo()
	ws := NewWalletService(testLogger(), repo)

	_, err := ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "100.00"), mustDecimal(t, "1.10"))
	require.Error(t, err)
	require.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestConvertRejectsBadArguments(t *testing.T) {
	repo := newMemWalletsRepo()
	repo.seedWallet(t, 7, "USD", "1000.00")
	ws := NewWalletService(testLogger(), repo)

	_, err := ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "-5"), mustDecimal(t, "1.10"))
	require.Equal(t, fault.CodeInvalidArgument, fault.CodeOf(err))

	_, err = ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "5"), decimal.Zero)
	require.Equal(t, fault.CodeInvalidArgument, fault.CodeOf(err))

	_, err = ws.Convert(context.Background(), 7, "USD", "USD", mustDecimal(t, "5"), mustDecimal(t, "1"))
	require.Equal(t, fault.CodeInvalidArgument, fault.CodeOf(err))
}

func TestConvertRollsBackWhenCreditFails(t *testing.T) {
	repo := newMemWalletsRepo()
	sourceID := repo.seedWallet(t, 7, "USD", "1000.00")
	// Simulate a crash after the debit: the credit-side ledger insert fails.
	repo.beforeInsertTransaction = func(wt *entities.WalletTransaction) error {
		if wt.Type == entities.WalletTransactionCredit {
			return fault.New(fault.CodeAborted, "simulated storage failure")
		}
		return nil
	}
	ws := NewWalletService(testLogger(), repo)

	_, err := ws.Convert(context.Background(), 7, "USD", "EUR", mustDecimal(t, "100.00"), mustDecimal(t, "1.10"))
	require.Error(t, err)
	require.Equal(t, fault.CodeAborted, fault.CodeOf(err))

	// The whole operation rolled back: source untouched, no ledger rows.
	source, err := repo.FindWalletByID(context.Background(), sourceID)
	require.NoError(t, err)
	require.True(t, source.Balance.Equal(mustDecimal(t, "1000.00")))
	require.Empty(t, repo.transactions)
}

func TestAdjustFundCreatesWalletLazily(t *testing.T) {
	repo := newMemWalletsRepo()
	ws := NewWalletService(testLogger(), repo)

	wallet, err := ws.Adjust(context.Background(), 7, "USD", mustDecimal(t, "250.00"), AdjustFund, "initial deposit")
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(mustDecimal(t, "250.00")))

	require.Len(t, repo.transactions, 1)
	require.Equal(t, entities.WalletTransactionFund, repo.transactions[0].Type)
	require.Equal(t, "initial deposit", repo.transactions[0].Description)
}

func TestAdjustWithdrawRequiresExistingWalletAndBalance(t *testing.T) {
	repo := newMemWalletsRepo()
	ws := NewWalletService(testLogger(), repo)

	_, err := ws.Adjust(context.Background(), 7, "USD", mustDecimal(t, "10.00"), AdjustWithdraw, "withdraw")
	require.Equal(t, fault.CodeNotFound, fault.CodeOf(err))

	repo.seedWallet(t, 7, "USD", "5.00")
	_, err = ws.Adjust(context.Background(), 7, "USD", mustDecimal(t, "10.00"), AdjustWithdraw, "withdraw")
	require.Equal(t, fault.CodeFailedPrecondition, fault.CodeOf(err))
	require.Empty(t, repo.transactions)
}

func TestBalanceEqualsSignedLedgerSum(t *testing.T) {
	repo := newMemWalletsRepo()
	ws := NewWalletService(testLogger(), repo)
	ctx := context.Background()

	wallet, err := ws.Adjust(ctx, 7, "USD", mustDecimal(t, "1000.00"), AdjustFund, "fund")
	require.NoError(t, err)

	_, err = ws.Adjust(ctx, 7, "USD", mustDecimal(t, "150.00"), AdjustWithdraw, "withdraw")
	require.NoError(t, err)

	result, err := ws.Convert(ctx, 7, "USD", "EUR", mustDecimal(t, "100.00"), mustDecimal(t, "1.10"))
	require.NoError(t, err)

	usd, err := repo.FindWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	require.True(t, usd.Balance.Equal(repo.ledgerSum(wallet.ID)),
		"USD balance %s != ledger sum %s", usd.Balance, repo.ledgerSum(wallet.ID))
	require.True(t, usd.Balance.Equal(mustDecimal(t, "750.00")))

	eur, err := repo.FindWalletByID(ctx, result.TargetWallet.ID)
	require.NoError(t, err)
	require.True(t, eur.Balance.Equal(repo.ledgerSum(eur.ID)))
	require.False(t, usd.Balance.IsNegative())
	require.False(t, eur.Balance.IsNegative())
}

func TestConvertKeepsFullPrecision(t *testing.T) {
	repo := newMemWalletsRepo()
	repo.seedWallet(t, 7, "USD", "1000")
	ws := NewWalletService(testLogger(), repo)

	result, err := ws.Convert(context.Background(), 7, "USD", "JPY", mustDecimal(t, "33.33"), mustDecimal(t, "147.3265"))
	require.NoError(t, err)

	// 33.33 * 147.3265 computed exactly, no float rounding.
	require.True(t, result.TargetAmount.Equal(mustDecimal(t, "4910.3922450")),
		"target amount = %s", result.TargetAmount)
}
