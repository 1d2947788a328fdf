package contracts

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Token decimals
const (
	EtherDecimals = 18
	USDCDecimals  = 6
)

// ToDecimal converts a fixed-point on-chain amount into a decimal value.
func ToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FromDecimal converts a decimal amount into its fixed-point on-chain form.
// Precision beyond the token's decimals is rejected rather than rounded.
func FromDecimal(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

func toInt64(v *big.Int, field string) (int64, error) {
	if v == nil {
		return 0, nil
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%s %s overflows int64", field, v)
	}
	return v.Int64(), nil
}
