package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType is the direction of a forex order relative to the base currency.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// OrderStatus is the lifecycle state of a forex order.
// PENDING transitions to COMPLETED or FAILED exactly once.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether no further transitions are permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// ForexOrder represents a user's intent to convert funds between two
// currency wallets.
type ForexOrder struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	UserEmail      string          `db:"user_email" json:"user_email"`
	Type           OrderType       `db:"type" json:"type"`
	BaseCurrency   string          `db:"base_currency" json:"base_currency"`
	TargetCurrency string          `db:"target_currency" json:"target_currency"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         OrderStatus     `db:"status" json:"status"`
	RetryAttempts  int             `db:"retry_attempts" json:"retry_attempts"`
	ErrorCode      string          `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}
