package types

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestOracleReadingMulPropagatesValidity(t *testing.T) {
	a := NewOracleReading(dec("1.15"), true)
	b := NewOracleReading(dec("1.5"), false)

	got := a.Mul(b)
	require.False(t, got.Valid)
	// The value is still computed even when invalid.
	require.Equal(t, "1.725000000000000000", got.Value.String())

	both := a.Mul(NewOracleReading(dec("1.5"), true))
	require.True(t, both.Valid)
	require.Equal(t, "1.725000000000000000", both.Value.String())
}

func TestOracleReadingQuo(t *testing.T) {
	a := NewOracleReading(dec("3"), true)
	b := NewOracleReading(dec("2"), true)
	got := a.Quo(b)
	require.True(t, got.Valid)
	require.Equal(t, "1.500000000000000000", got.Value.String())

	invalid := a.Quo(NewOracleReading(dec("2"), false))
	require.False(t, invalid.Valid)
	require.Equal(t, "1.500000000000000000", invalid.Value.String())
}

func TestOracleReadingQuoByZero(t *testing.T) {
	a := NewOracleReading(dec("3"), true)
	got := a.Quo(NewOracleReading(sdkmath.LegacyZeroDec(), true))
	require.False(t, got.Valid)
	require.True(t, got.Value.IsZero())
}

func TestOracleReadingWithValidity(t *testing.T) {
	a := NewOracleReading(dec("1"), true)
	require.True(t, a.WithValidity(true).Valid)
	require.False(t, a.WithValidity(false).Valid)
	require.False(t, InvalidReading(dec("1")).WithValidity(true).Valid)
}

func TestValidateRebalanceParameters(t *testing.T) {
	valid := RebalanceParameters{
		TargetDR:                    sdkmath.LegacyOneDec(),
		LagFactorUnderlyingIntoPerp: 3,
		LagFactorPerpIntoUnderlying: 3,
		MinRebalanceAmt:             sdkmath.NewInt(1000000000),
		MaxSwapFeePerc:              dec("0.01"),
		CooldownPeriod:              86400000000000, // one day in ns
	}
	require.NoError(t, valid.Validate())

	badLag := valid
	badLag.LagFactorUnderlyingIntoPerp = 0
	require.ErrorIs(t, badLag.Validate(), ErrInvalidLagFactor)

	badFee := valid
	badFee.MaxSwapFeePerc = dec("1.5")
	require.ErrorIs(t, badFee.Validate(), ErrInvalidPerc)

	badCooldown := valid
	badCooldown.CooldownPeriod = 0
	require.ErrorIs(t, badCooldown.Validate(), ErrInvalidCooldown)
}

func TestValidateToleranceBounds(t *testing.T) {
	require.NoError(t, ToleranceBounds{LowerPricePerc: dec("0.95"), UpperPricePerc: dec("1.05")}.Validate())
	// Upper exactly at 1.0 is allowed: lower < 1.0 <= upper.
	require.NoError(t, ToleranceBounds{LowerPricePerc: dec("0.95"), UpperPricePerc: dec("1.0")}.Validate())

	require.ErrorIs(t, ToleranceBounds{LowerPricePerc: dec("1.0"), UpperPricePerc: dec("1.05")}.Validate(), ErrInvalidPriceBound)
	require.ErrorIs(t, ToleranceBounds{LowerPricePerc: dec("0.95"), UpperPricePerc: dec("0.99")}.Validate(), ErrInvalidPriceBound)
	require.ErrorIs(t, ToleranceBounds{LowerPricePerc: dec("-0.1"), UpperPricePerc: dec("1.05")}.Validate(), ErrInvalidPriceBound)
}

func TestValidateAppraisalBounds(t *testing.T) {
	valid := AppraisalBounds{
		Tolerance:            ToleranceBounds{LowerPricePerc: dec("0.95"), UpperPricePerc: dec("1.05")},
		MinSPOTDR:            dec("0.75"),
		MinSeniorCDR:         dec("1.1"),
		MaxReferenceAge:      86400000000000,
		MaturedDustThreshold: sdkmath.NewInt(1000000),
	}
	require.NoError(t, valid.Validate())

	badCDR := valid
	badCDR.MinSeniorCDR = dec("0.9")
	require.ErrorIs(t, badCDR.Validate(), ErrInvalidSeniorCDRBound)

	badDR := valid
	badDR.MinSPOTDR = dec("-0.1")
	require.ErrorIs(t, badDR.Validate(), ErrInvalidDRBound)
}
