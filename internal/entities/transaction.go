package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForexTransactionStatus is the execution state of a single order attempt
// record. Unlike the wallet ledger this row is updated in place: it is a
// status record, not a monetary entry.
type ForexTransactionStatus string

const (
	ForexTransactionInitiated ForexTransactionStatus = "INITIATED"
	ForexTransactionCompleted ForexTransactionStatus = "COMPLETED"
	ForexTransactionFailed    ForexTransactionStatus = "FAILED"
)

// ForexTransaction is the execution record of a forex order. Each order
// has exactly one.
type ForexTransaction struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	OrderID        uuid.UUID              `db:"order_id" json:"order_id"`
	UserID         int64                  `db:"user_id" json:"user_id"`
	BaseCurrency   string                 `db:"base_currency" json:"base_currency"`
	TargetCurrency string                 `db:"target_currency" json:"target_currency"`
	Amount         decimal.Decimal        `db:"amount" json:"amount"`
	ExchangeRate   decimal.NullDecimal    `db:"exchange_rate" json:"exchange_rate"`
	TargetAmount   decimal.NullDecimal    `db:"target_amount" json:"target_amount"`
	Status         ForexTransactionStatus `db:"status" json:"status"`
	ErrorCode      string                 `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   string                 `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}
