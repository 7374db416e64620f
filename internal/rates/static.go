package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
)

// Static serves rates from a fixed table. Used in dev environments and
// tests where no rate provider is reachable.
type Static struct {
	table map[string]decimal.Decimal
}

// NewStatic builds a static rate source from pair -> rate entries keyed
// as "USD/EUR".
func NewStatic(table map[string]string) (*Static, error) {
	parsed := make(map[string]decimal.Decimal, len(table))
	for pair, raw := range table {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid static rate for %s: %w", pair, err)
		}
		parsed[pair] = rate
	}
	return &Static{table: parsed}, nil
}

// GetRate resolves a rate from the table, falling back to the inverse
// pair when only the opposite direction is configured.
func (s *Static) GetRate(_ context.Context, baseCurrency, targetCurrency string) (decimal.Decimal, error) {
	if rate, ok := s.table[baseCurrency+"/"+targetCurrency]; ok {
		return rate, nil
	}
	if inverse, ok := s.table[targetCurrency+"/"+baseCurrency]; ok && inverse.IsPositive() {
		return decimal.NewFromInt(1).Div(inverse), nil
	}
	return decimal.Zero, fault.Newf(fault.CodeNotFound, "no rate for pair %s/%s", baseCurrency, targetCurrency)
}
