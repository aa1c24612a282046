package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PercentPrecision is the number of decimal places kept in a reported profit percentage
const PercentPrecision = 12

var hundred = decimal.NewFromInt(100)

// ToNative converts a human amount to native integer units:
// floor(human * 10^decimals)
func ToNative(human decimal.Decimal, decimals uint8) *big.Int {
	return human.Shift(int32(decimals)).Floor().BigInt()
}

// FromNative converts native integer units back to a human amount
func FromNative(native *big.Int, decimals uint8) decimal.Decimal {
	if native == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(native, -int32(decimals))
}

// ProfitAmount returns final - start in native units
func ProfitAmount(start, final *big.Int) *big.Int {
	return new(big.Int).Sub(final, start)
}

// ProfitPercent returns (final - start) / start * 100, rounded to
// PercentPrecision places. A non-positive start yields zero.
func ProfitPercent(start, final *big.Int) decimal.Decimal {
	if start == nil || final == nil || start.Sign() <= 0 {
		return decimal.Zero
	}
	profit := decimal.NewFromBigInt(ProfitAmount(start, final), 0)
	return profit.Mul(hundred).DivRound(decimal.NewFromBigInt(start, 0), PercentPrecision)
}

// MeetsThreshold reports whether the cycle start -> final earns at least
// minPercent. The comparison is done without division:
//
//	(final - start) * 100 >= minPercent * start
//
// so it is exact for any pair of integers and inclusive at equality.
func MeetsThreshold(start, final *big.Int, minPercent decimal.Decimal) bool {
	if start == nil || final == nil || start.Sign() <= 0 {
		return false
	}
	lhs := decimal.NewFromBigInt(ProfitAmount(start, final), 0).Mul(hundred)
	rhs := minPercent.Mul(decimal.NewFromBigInt(start, 0))
	return lhs.GreaterThanOrEqual(rhs)
}

// BpsToPercent converts basis points to a percentage (50 bps -> 0.5)
func BpsToPercent(bps uint16) decimal.Decimal {
	return decimal.New(int64(bps), -2)
}
