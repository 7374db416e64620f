package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet represents a per-user, per-currency balance account.
// There is exactly one wallet per (user, currency) pair.
type Wallet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletTransactionType classifies a ledger entry.
type WalletTransactionType string

const (
	WalletTransactionCredit   WalletTransactionType = "CREDIT"
	WalletTransactionDebit    WalletTransactionType = "DEBIT"
	WalletTransactionFund     WalletTransactionType = "FUND"
	WalletTransactionWithdraw WalletTransactionType = "WITHDRAW"
)

// Signed reports the direction a transaction type applies to a balance.
func (t WalletTransactionType) Signed() int {
	switch t {
	case WalletTransactionCredit, WalletTransactionFund:
		return 1
	default:
		return -1
	}
}

// WalletTransaction is an immutable ledger entry. Rows are only ever
// inserted, in the same database transaction as the balance change they
// describe.
type WalletTransaction struct {
	ID          uuid.UUID             `db:"id" json:"id"`
	WalletID    uuid.UUID             `db:"wallet_id" json:"wallet_id"`
	Amount      decimal.Decimal       `db:"amount" json:"amount"`
	Type        WalletTransactionType `db:"type" json:"type"`
	Currency    string                `db:"currency" json:"currency"`
	Description string                `db:"description" json:"description"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}
