/*
This file centralizes fixed-point arithmetic for the vault. Token amounts are
sdkmath.Int values at the token's native decimals; ratios, percentages and
prices are sdkmath.LegacyDec values (18 decimal places). All cross-scale
conversions go through here so the "scale up before multiply, scale down
after divide" ordering lives in one place.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Decimal conventions across the system.
const (
	// UnderlyingDecimals is the native precision of the underlying asset (AMPL).
	UnderlyingDecimals = 9
	// PerpDecimals is the native precision of the perpetual claim token (SPOT).
	PerpDecimals = 9
	// RatioDecimals is the fixed-point scale deviation-ratio providers report at.
	RatioDecimals = 8
	// FeedDecimals is the fixed-point scale of round-based USD reference feeds.
	FeedDecimals = 8
	// PriceDecimals is the output scale of every appraised price.
	PriceDecimals = 18
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrZeroDenominator  = errors.New("denominator is zero")
)

// Rescale converts a fixed-point integer amount between decimal scales.
// Scaling down truncates toward zero; scaling up is exact.
func Rescale(amount sdkmath.Int, fromDecimals, toDecimals int) (sdkmath.Int, error) {
	if err := checkPrecision(fromDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := checkPrecision(toDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	switch {
	case fromDecimals == toDecimals:
		return amount, nil
	case fromDecimals < toDecimals:
		return amount.Mul(pow10(toDecimals - fromDecimals)), nil
	default:
		return amount.Quo(pow10(fromDecimals - toDecimals)), nil
	}
}

// DecFromFixed interprets a fixed-point integer amount at the given decimals
// as an 18-decimal Dec. Exact for decimals <= 18.
func DecFromFixed(amount sdkmath.Int, decimals int) (sdkmath.LegacyDec, error) {
	if err := checkPrecision(decimals); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if amount.IsNil() {
		return sdkmath.LegacyZeroDec(), ErrAmountNil
	}
	return sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(decimals)), nil
}

// MulDiv computes a*b/den on integers, truncating toward zero. The full
// product is formed before the division so no intermediate precision is lost.
func MulDiv(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || den.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if den.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroDenominator
	}
	return a.Mul(b).Quo(den), nil
}

// Percentage builds a Dec percentage from basis points (1 bps = 0.01%).
func Percentage(bps int64) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecWithPrec(bps, 4)
}

// MinInt3 returns the smallest of three integers.
func MinInt3(a, b, c sdkmath.Int) sdkmath.Int {
	return sdkmath.MinInt(sdkmath.MinInt(a, b), c)
}

// IntToFloat64 converts a fixed-point integer amount to float64 for logging
// and reporting only. Never feed the result back into vault arithmetic.
func IntToFloat64(amount sdkmath.Int, decimals int) (float64, error) {
	if err := checkPrecision(decimals); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	dec, err := DecFromFixed(amount.Abs(), decimals)
	if err != nil {
		return 0, err
	}
	result, err := dec.Float64()
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		result = -result
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

func checkPrecision(decimals int) error {
	if decimals < 0 || decimals > 18 {
		return fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, decimals)
	}
	return nil
}

func pow10(n int) sdkmath.Int {
	result := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := 0; i < n; i++ {
		result = result.Mul(ten)
	}
	return result
}
