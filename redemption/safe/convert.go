package safe

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned when a value cannot be represented in the target width.
var ErrOverflow = errors.New("value overflows signed 64-bit range")

// Int64FromUint64 widens an unsigned amount into the signed delta width.
// Returns ErrOverflow when the amount exceeds math.MaxInt64.
//
// Example:
//
//	delta, err := safe.Int64FromUint64(amount)
//	if err != nil {
//	    return fmt.Errorf("widen amount: %w", err)
//	}
func Int64FromUint64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, ErrOverflow
	}

	return int64(value), nil
}

// AddInt64 adds two signed amounts with overflow detection.
// Returns ErrOverflow when the mathematical result falls outside int64 range.
func AddInt64(a, b int64) (int64, error) {
	sum := a + b

	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}

	return sum, nil
}

// NegateInt64 negates a signed amount with overflow detection.
// math.MinInt64 has no positive counterpart and returns ErrOverflow.
func NegateInt64(value int64) (int64, error) {
	if value == math.MinInt64 {
		return 0, ErrOverflow
	}

	return -value, nil
}

// UnitsToDecimal renders an integer amount of minor units as a decimal value
// at the given scale. A scale of 2 renders 1050 as 10.5.
func UnitsToDecimal(units int64, scale int32) decimal.Decimal {
	return decimal.New(units, -scale)
}

// UnitsFromUint64ToDecimal renders an unsigned amount of minor units as a
// decimal value at the given scale without widening restrictions.
func UnitsFromUint64ToDecimal(units uint64, scale int32) decimal.Decimal {
	return decimal.NewFromUint64(units).Shift(-scale)
}
