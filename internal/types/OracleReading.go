package types

import (
	sdkmath "cosmossdk.io/math"
)

// OracleReading is a price or ratio paired with a soft validity flag. The
// value is always populated with the best-effort computation, even when
// upstream conditions make it untrustworthy; callers must check Valid before
// acting on it. Risk and monitoring systems want the attempted number either
// way, so combinators never suppress the value.
type OracleReading struct {
	Value sdkmath.LegacyDec `json:"value"`
	Valid bool              `json:"valid"`
}

// NewOracleReading builds a reading from a value and validity flag.
func NewOracleReading(value sdkmath.LegacyDec, valid bool) OracleReading {
	return OracleReading{Value: value, Valid: valid}
}

// InvalidReading wraps a best-effort value with validity cleared.
func InvalidReading(value sdkmath.LegacyDec) OracleReading {
	return OracleReading{Value: value, Valid: false}
}

// Mul multiplies two readings. The product is computed unconditionally and
// validity is the logical AND of both inputs.
func (r OracleReading) Mul(other OracleReading) OracleReading {
	return OracleReading{
		Value: r.Value.Mul(other.Value),
		Valid: r.Valid && other.Valid,
	}
}

// Quo divides the reading by another, truncating at 18 decimal places.
// Division by zero yields a zero value with validity cleared.
func (r OracleReading) Quo(other OracleReading) OracleReading {
	if other.Value.IsZero() {
		return OracleReading{Value: sdkmath.LegacyZeroDec(), Valid: false}
	}
	return OracleReading{
		Value: r.Value.QuoTruncate(other.Value),
		Valid: r.Valid && other.Valid,
	}
}

// WithValidity folds an additional validity condition into the reading.
func (r OracleReading) WithValidity(valid bool) OracleReading {
	return OracleReading{Value: r.Value, Valid: r.Valid && valid}
}
