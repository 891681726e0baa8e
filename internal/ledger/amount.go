package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal converts a base-unit amount to token units using the ledger's decimals.
func ToDecimal(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// FormatAmount renders amount as a decimal token string, e.g. 10000000 with 8 decimals is "0.1".
func FormatAmount(amount uint64, decimals uint8) string {
	return ToDecimal(amount, decimals).String()
}
