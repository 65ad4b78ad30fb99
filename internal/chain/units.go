package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the fixed-point precision the contract uses for both
// token and fiat amounts.
const AmountDecimals int32 = 18

// ToBaseUnits converts a decimal amount to the contract's integer base
// units, truncating any precision beyond the fixed point.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units back to a decimal amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
