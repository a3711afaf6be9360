package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale of every monetary column.
const MoneyPlaces = 2

// CheckAmount rejects amounts that are not positive or that carry more
// precision than the ledger stores.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return fmt.Errorf("amount %s has more than %d decimal places: %w", amount.String(), MoneyPlaces, ErrInvalidAmount)
	}
	return nil
}
